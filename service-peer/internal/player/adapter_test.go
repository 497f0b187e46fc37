package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"watch-party-sync/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0    = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	movie = model.Video{ID: "v1", Title: "Big Buck Bunny", URL: "https://cdn.example.com/bbb.m3u8", Duration: 600}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMirror struct {
	mu    sync.Mutex
	times []float64
}

func (m *recordingMirror) MirrorCurrentTime(t float64) {
	m.mu.Lock()
	m.times = append(m.times, t)
	m.mu.Unlock()
}

func (m *recordingMirror) last() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.times) == 0 {
		return 0, false
	}
	return m.times[len(m.times)-1], true
}

// fakePlayer reports ready straight from Load unless manualReady is set
type fakePlayer struct {
	mu          sync.Mutex
	handler     EventHandler
	manualReady bool
	loads       []model.Video
	playing     bool
	rate        float64
	current     float64
	calls       map[string]int
	seeks       []float64
	onSeek      func(float64)
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{rate: 1, calls: make(map[string]int)}
}

func (p *fakePlayer) SetEventHandler(h EventHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *fakePlayer) emit(ev Event) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	h(ev)
}

func (p *fakePlayer) Load(video model.Video) error {
	p.mu.Lock()
	p.loads = append(p.loads, video)
	p.playing = false
	p.current = 0
	manual := p.manualReady
	p.mu.Unlock()

	p.emit(Event{Kind: EventBuffering, Progress: 0.2})
	if !manual {
		p.emit(Event{Kind: EventReady})
	}
	return nil
}

func (p *fakePlayer) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	p.calls["play"]++
	p.playing = true
	p.mu.Unlock()
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	p.calls["pause"]++
	p.playing = false
	p.mu.Unlock()
}

func (p *fakePlayer) Seek(t float64) {
	p.mu.Lock()
	p.calls["seek"]++
	p.seeks = append(p.seeks, t)
	p.current = t
	hook := p.onSeek
	p.mu.Unlock()
	if hook != nil {
		hook(t)
	}
}

func (p *fakePlayer) SetRate(r float64) {
	p.mu.Lock()
	p.calls["rate"]++
	p.rate = r
	p.mu.Unlock()
}

func (p *fakePlayer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakePlayer) setCurrent(t float64) {
	p.mu.Lock()
	p.current = t
	p.mu.Unlock()
}

func (p *fakePlayer) setPlaying(v bool) {
	p.mu.Lock()
	p.playing = v
	p.mu.Unlock()
}

func newAdapter(p Player) (*Adapter, *clock, *recordingMirror) {
	c := &clock{now: t0}
	m := &recordingMirror{}
	a := NewAdapter(p, m, Options{
		DriftTolerance:  500 * time.Millisecond,
		MinSyncInterval: 100 * time.Millisecond,
		Now:             c.Now,
	})
	return a, c, m
}

// loadFor runs the first sync, which loads the media, and drains the replay it queues
func loadFor(t *testing.T, a *Adapter, c *clock, state model.PlaybackState) {
	t.Helper()
	require.Equal(t, SyncDeferred, a.SyncWithState(state))
	select {
	case <-a.updates:
	default:
		t.Fatal("ready did not replay the deferred state")
	}
	require.True(t, a.View().IsReadyToPlay)
	c.Advance(time.Second)
}

func paused(at float64) model.PlaybackState {
	return model.IdlePlaybackState().WithVideo(movie, "alice", t0).Seek(at, "alice", t0)
}

func TestAdapter_DriftTolerance(t *testing.T) {
	tests := []struct {
		name     string
		desired  float64
		wantSeek bool
	}{
		{name: "in sync", desired: 10},
		{name: "exactly at tolerance", desired: 10.5},
		{name: "just beyond tolerance", desired: 10.501, wantSeek: true},
		{name: "behind beyond tolerance", desired: 9.4, wantSeek: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlayer()
			a, c, _ := newAdapter(p)
			state := paused(tt.desired)
			loadFor(t, a, c, state)

			p.setCurrent(10)
			require.Equal(t, SyncApplied, a.SyncWithState(state))

			if !tt.wantSeek {
				assert.Zero(t, p.count("seek"))
				return
			}
			require.Equal(t, 1, p.count("seek"))
			assert.InDelta(t, tt.desired, p.CurrentTime(), 1e-9)
		})
	}
}

func TestAdapter_DesiredPositionAdvancesWhilePlaying(t *testing.T) {
	p := newFakePlayer()
	a, c, _ := newAdapter(p)
	state := paused(100).WithPlaying(true, "bob", t0)
	loadFor(t, a, c, state)

	// one second after the change the shared position is 101
	p.setCurrent(100)
	require.Equal(t, SyncApplied, a.SyncWithState(state))
	require.Equal(t, 1, p.count("seek"))
	assert.InDelta(t, 101, p.CurrentTime(), 1e-9)
}

func TestAdapter_PlayPauseOnlyOnMismatch(t *testing.T) {
	p := newFakePlayer()
	a, c, _ := newAdapter(p)
	playing := paused(0).WithPlaying(true, "alice", t0)
	loadFor(t, a, c, playing)

	require.Equal(t, SyncApplied, a.SyncWithState(playing))
	assert.Equal(t, 1, p.count("play"))
	assert.Equal(t, StatusPlaying, a.View().Status)

	c.Advance(time.Second)
	p.setCurrent(2)
	require.Equal(t, SyncApplied, a.SyncWithState(playing))
	assert.Equal(t, 1, p.count("play"), "already playing")

	c.Advance(time.Second)
	stopped := playing.WithPlaying(false, "bob", t0)
	require.Equal(t, SyncApplied, a.SyncWithState(stopped))
	assert.Equal(t, 1, p.count("pause"))
	assert.Equal(t, StatusPaused, a.View().Status)
}

func TestAdapter_RateOnlyWhilePlaying(t *testing.T) {
	p := newFakePlayer()
	a, c, _ := newAdapter(p)
	state := paused(0).WithRate(2, "alice", t0)
	loadFor(t, a, c, state)

	require.Equal(t, SyncApplied, a.SyncWithState(state))
	assert.Zero(t, p.count("rate"))
	assert.Equal(t, 1.0, p.Rate())

	c.Advance(time.Second)
	require.Equal(t, SyncApplied, a.SyncWithState(state.WithPlaying(true, "alice", c.Now())))
	assert.Equal(t, 1, p.count("rate"))
	assert.Equal(t, 2.0, p.Rate())
}

func TestAdapter_Reentrancy(t *testing.T) {
	p := newFakePlayer()
	a, c, _ := newAdapter(p)
	state := paused(42)
	loadFor(t, a, c, state)

	var nested SyncResult
	p.onSeek = func(float64) {
		// a player that reports synchronously must not re-enter the sync
		nested = a.SyncWithState(paused(0))
	}

	require.Equal(t, SyncApplied, a.SyncWithState(state))
	assert.Equal(t, SyncReentrant, nested)
	assert.Equal(t, 1, p.count("seek"))
}

func TestAdapter_Throttle(t *testing.T) {
	p := newFakePlayer()
	a, c, _ := newAdapter(p)
	state := paused(0)
	loadFor(t, a, c, state)

	require.Equal(t, SyncApplied, a.SyncWithState(state))
	c.Advance(50 * time.Millisecond)
	assert.Equal(t, SyncThrottled, a.SyncWithState(paused(30)))
	assert.Zero(t, p.count("seek"))

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, SyncApplied, a.SyncWithState(paused(30)))
	assert.Equal(t, 1, p.count("seek"))
}

func TestAdapter_RunRetriesThrottledState(t *testing.T) {
	p := newFakePlayer()
	a := NewAdapter(p, &recordingMirror{}, Options{MinSyncInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	a.Push(paused(0))
	a.Push(paused(5).WithPlaying(true, "alice", time.Now()))
	a.Push(paused(90))

	require.Eventually(t, func() bool {
		return !p.IsPlaying() && p.CurrentTime() >= 89.5 && p.CurrentTime() <= 90.5
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestAdapter_DefersUntilReady(t *testing.T) {
	p := newFakePlayer()
	p.manualReady = true
	a, c, _ := newAdapter(p)

	state := paused(12).WithPlaying(true, "alice", t0)
	assert.Equal(t, SyncDeferred, a.SyncWithState(state))
	require.Len(t, p.loads, 1)
	view := a.View()
	assert.Equal(t, StatusBuffering, view.Status)
	assert.True(t, view.IsBuffering)
	assert.Equal(t, 0.2, view.BufferProgress)
	assert.Zero(t, p.count("play"))

	c.Advance(time.Second)
	assert.Equal(t, SyncDeferred, a.SyncWithState(state), "same video is not loaded twice")
	require.Len(t, p.loads, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	c.Advance(time.Second)
	p.emit(Event{Kind: EventReady})

	require.Eventually(t, p.IsPlaying, time.Second, 5*time.Millisecond)
	assert.True(t, a.View().IsReadyToPlay)
	assert.Equal(t, 1, p.count("seek"), "position caught up on replay")
}

func TestAdapter_FailureIsTerminalUntilReload(t *testing.T) {
	p := newFakePlayer()
	a, c, _ := newAdapter(p)
	state := paused(0)
	loadFor(t, a, c, state)

	p.emit(Event{Kind: EventFailed, Err: errors.New("decoder error")})
	view := a.View()
	assert.Equal(t, StatusFailed, view.Status)
	assert.True(t, view.HasError)
	assert.Equal(t, "decoder error", view.ErrorMessage)

	p.emit(Event{Kind: EventReady})
	assert.Equal(t, StatusFailed, a.View().Status, "ready does not recover a failed player")

	assert.Equal(t, SyncDeferred, a.SyncWithState(state))
	require.Len(t, p.loads, 1)

	require.NoError(t, a.Reload())
	reloaded := <-a.updates
	assert.Equal(t, SyncDeferred, a.SyncWithState(reloaded))
	require.Len(t, p.loads, 2)
	view = a.View()
	assert.False(t, view.HasError)
	assert.Empty(t, view.ErrorMessage)
	assert.True(t, view.IsReadyToPlay)
}

func TestAdapter_ReloadWithoutVideo(t *testing.T) {
	a, _, _ := newAdapter(newFakePlayer())
	assert.ErrorIs(t, a.Reload(), ErrNothingLoaded)
}

func TestAdapter_LoadErrorFails(t *testing.T) {
	a, _, _ := newAdapter(NewSimulatedPlayer(SimulatedOptions{}))
	bad := model.IdlePlaybackState().WithVideo(model.Video{ID: "x", URL: "ftp://nope"}, "alice", t0)

	assert.Equal(t, SyncDeferred, a.SyncWithState(bad))
	view := a.View()
	assert.True(t, view.HasError)
	assert.Equal(t, model.ErrInvalidVideoURL.Error(), view.ErrorMessage)
}

func TestAdapter_EndedLoopsLocally(t *testing.T) {
	p := newFakePlayer()
	a, c, m := newAdapter(p)
	state := paused(590).WithPlaying(true, "alice", t0)
	loadFor(t, a, c, state)
	require.Equal(t, SyncApplied, a.SyncWithState(state))
	require.True(t, p.IsPlaying())
	seeks := p.count("seek")

	p.setPlaying(false)
	p.emit(Event{Kind: EventEnded, Time: 600})

	assert.Equal(t, seeks+1, p.count("seek"))
	assert.Zero(t, p.CurrentTime())
	assert.True(t, p.IsPlaying(), "playback loops while the shared state says playing")
	last, ok := m.last()
	require.True(t, ok)
	assert.Zero(t, last)
	assert.Zero(t, a.View().CurrentTime)
}

func TestAdapter_TimeUpdatesAreMirrored(t *testing.T) {
	p := newFakePlayer()
	a, _, m := newAdapter(p)

	p.emit(Event{Kind: EventTimeUpdate, Time: 12.5})
	last, ok := m.last()
	require.True(t, ok)
	assert.Equal(t, 12.5, last)
	assert.Equal(t, 12.5, a.View().CurrentTime)
}

func TestAdapter_IdleStateUnloads(t *testing.T) {
	p := newFakePlayer()
	a, c, _ := newAdapter(p)
	state := paused(0).WithPlaying(true, "alice", t0)
	loadFor(t, a, c, state)
	require.Equal(t, SyncApplied, a.SyncWithState(state))

	c.Advance(time.Second)
	require.Equal(t, SyncApplied, a.SyncWithState(model.IdlePlaybackState()))
	assert.False(t, p.IsPlaying())
	assert.Equal(t, StatusIdle, a.View().Status)

	c.Advance(time.Second)
	assert.Equal(t, SyncDeferred, a.SyncWithState(state))
	assert.Len(t, p.loads, 2, "the video is loaded again after going idle")
}
