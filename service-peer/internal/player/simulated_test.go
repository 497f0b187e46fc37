package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/model"
	"watch-party-sync/service-peer/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]EventKind, 0, len(l.events))
	for _, ev := range l.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestSimulatedPlayer_Clock(t *testing.T) {
	c := &clock{now: t0}
	p := NewSimulatedPlayer(SimulatedOptions{Now: c.Now})
	events := &eventLog{}
	p.SetEventHandler(events.handle)

	p.Play()
	assert.False(t, p.IsPlaying(), "nothing loaded")

	require.NoError(t, p.Load(movie))
	assert.Equal(t, []EventKind{EventBuffering, EventReady}, events.kinds())

	p.Play()
	c.Advance(10 * time.Second)
	assert.Equal(t, 10.0, p.CurrentTime())

	p.SetRate(2)
	c.Advance(5 * time.Second)
	assert.Equal(t, 20.0, p.CurrentTime())

	p.Pause()
	c.Advance(time.Minute)
	assert.Equal(t, 20.0, p.CurrentTime())

	p.Seek(-4)
	assert.Zero(t, p.CurrentTime())
	p.Seek(10_000)
	assert.Equal(t, movie.Duration, p.CurrentTime())
}

func TestSimulatedPlayer_TickReportsEnd(t *testing.T) {
	c := &clock{now: t0}
	p := NewSimulatedPlayer(SimulatedOptions{Now: c.Now})
	events := &eventLog{}
	p.SetEventHandler(events.handle)

	require.NoError(t, p.Load(movie))
	p.Seek(599)
	p.Play()

	p.Tick()
	c.Advance(2 * time.Second)
	p.Tick()

	kinds := events.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventEnded, kinds[len(kinds)-1])
	assert.False(t, p.IsPlaying())
	assert.Equal(t, movie.Duration, p.CurrentTime())
}

func TestSimulatedPlayer_LoadDelayAndFailure(t *testing.T) {
	p := NewSimulatedPlayer(SimulatedOptions{LoadDelay: 50 * time.Millisecond})
	events := &eventLog{}
	p.SetEventHandler(events.handle)

	assert.ErrorIs(t, p.Load(model.Video{URL: "rtmp://x"}), model.ErrInvalidVideoURL)

	require.NoError(t, p.Load(movie))
	assert.Equal(t, []EventKind{EventBuffering}, events.kinds())
	require.Eventually(t, func() bool {
		kinds := events.kinds()
		return kinds[len(kinds)-1] == EventReady
	}, time.Second, 5*time.Millisecond)

	p.Fail(errors.New("stalled"))
	kinds := events.kinds()
	assert.Equal(t, EventFailed, kinds[len(kinds)-1])
	p.Play()
	assert.False(t, p.IsPlaying())
}

func TestAdapter_FollowsEngine(t *testing.T) {
	eng := engine.New(engine.Options{LocalID: "alice", Sync: config.DefaultSyncConfig()})
	defer eng.Close()

	p := NewSimulatedPlayer(SimulatedOptions{})
	a := NewAdapter(p, eng, Options{MinSyncInterval: 10 * time.Millisecond})
	eng.SetSink(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.NoError(t, eng.LoadLocal(ctx, movie))
	require.Eventually(t, func() bool { return a.View().IsReadyToPlay }, time.Second, 5*time.Millisecond)

	_, err := eng.Play(ctx)
	require.NoError(t, err)
	require.Eventually(t, p.IsPlaying, time.Second, 5*time.Millisecond)

	_, err = eng.Seek(ctx, 300)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return p.CurrentTime() >= 299.5 && p.CurrentTime() < 302
	}, time.Second, 5*time.Millisecond)

	// player reports reach the engine without becoming actions
	p.Tick()
	require.Eventually(t, func() bool { return eng.State().CurrentTime >= 299.5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "alice", eng.State().LastChangedBy)

	_, err = eng.Pause(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !p.IsPlaying() }, time.Second, 5*time.Millisecond)
}
