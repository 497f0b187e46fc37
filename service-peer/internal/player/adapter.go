package player

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"watch-party-sync/pkg/config"
	"watch-party-sync/pkg/logger"
	"watch-party-sync/pkg/model"
)

var ErrNothingLoaded = errors.New("no video to reload")

// TimeMirror records the position the local player reports. The engine implements it.
type TimeMirror interface {
	MirrorCurrentTime(seconds float64)
}

// SyncResult tells what SyncWithState did with a snapshot
type SyncResult string

const (
	// SyncApplied means the player now follows the snapshot
	SyncApplied SyncResult = "applied"
	// SyncReentrant means a sync was already running and the snapshot was skipped
	SyncReentrant SyncResult = "reentrant"
	// SyncThrottled means the previous sync was too recent
	SyncThrottled SyncResult = "throttled"
	// SyncDeferred means the media is not ready; the snapshot is replayed once it is
	SyncDeferred SyncResult = "deferred"
)

// Options configures an Adapter
type Options struct {
	DriftTolerance  time.Duration
	MinSyncInterval time.Duration
	Now             func() time.Time
}

// OptionsFromConfig takes the reconciliation settings from the sync config
func OptionsFromConfig(cfg config.SyncConfig) Options {
	return Options{
		DriftTolerance:  cfg.DriftTolerance,
		MinSyncInterval: cfg.MinSyncInterval,
	}
}

// Adapter reconciles a Player with the engine's PlaybackState. It only ever drives
// the player toward the snapshot it is given; player events never turn into actions.
type Adapter struct {
	player    Player
	mirror    TimeMirror
	tolerance float64
	interval  time.Duration
	now       func() time.Time
	log       logger.Scoped

	syncing atomic.Bool
	updates chan model.PlaybackState

	mu       sync.Mutex
	lastSync time.Time
	loaded   *model.Video
	desired  *model.PlaybackState
	pending  bool
	view     View
}

// NewAdapter attaches an adapter to player. Player events are mirrored into mirror.
func NewAdapter(p Player, mirror TimeMirror, opts Options) *Adapter {
	defaults := config.DefaultSyncConfig()
	if opts.DriftTolerance <= 0 {
		opts.DriftTolerance = defaults.DriftTolerance
	}
	if opts.MinSyncInterval <= 0 {
		opts.MinSyncInterval = defaults.MinSyncInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &Adapter{
		player:    p,
		mirror:    mirror,
		tolerance: opts.DriftTolerance.Seconds(),
		interval:  opts.MinSyncInterval,
		now:       opts.Now,
		log:       logger.With(logger.FieldComponent, "player"),
		updates:   make(chan model.PlaybackState, 1),
		view:      View{Status: StatusIdle},
	}
	p.SetEventHandler(a.handleEvent)
	return a
}

// Push hands a snapshot to Run. Only the latest pending snapshot is kept, and Push
// never blocks, so it is safe to call from the engine's actor.
func (a *Adapter) Push(state model.PlaybackState) {
	for {
		select {
		case a.updates <- state:
			return
		default:
		}
		select {
		case <-a.updates:
		default:
		}
	}
}

// offer queues state unless a newer snapshot is already waiting
func (a *Adapter) offer(state model.PlaybackState) {
	select {
	case a.updates <- state:
	default:
	}
}

// Run applies pushed snapshots until ctx is done. A snapshot that was throttled or
// skipped is retried after the sync interval, so the last one always lands.
func (a *Adapter) Run(ctx context.Context) error {
	var (
		latest model.PlaybackState
		retry  *time.Timer
		retryC <-chan time.Time
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case latest = <-a.updates:
		case <-retryC:
			retryC = nil
		}

		switch a.SyncWithState(latest) {
		case SyncThrottled, SyncReentrant:
			if retryC == nil {
				retry = time.NewTimer(a.interval)
				retryC = retry.C
			}
		}
	}
}

// SyncWithState drives the player toward state. Play and pause are only issued on a
// mismatch, a seek only when the player is more than the drift tolerance away from
// where the state says it should be, and the rate only while playing.
func (a *Adapter) SyncWithState(state model.PlaybackState) SyncResult {
	if !a.syncing.CompareAndSwap(false, true) {
		return SyncReentrant
	}
	defer a.syncing.Store(false)

	now := a.now()

	a.mu.Lock()
	if !a.lastSync.IsZero() && now.Sub(a.lastSync) < a.interval {
		a.mu.Unlock()
		return SyncThrottled
	}
	a.lastSync = now
	desired := state
	a.desired = &desired
	a.pending = true
	status := a.view.Status
	needLoad := !state.IsIdle() && !sameVideo(a.loaded, state.Video)
	a.mu.Unlock()

	switch {
	case state.IsIdle():
		a.unload()
		return SyncApplied
	case needLoad:
		a.load(*state.Video)
		return SyncDeferred
	case !status.Ready():
		return SyncDeferred
	}

	a.apply(state, now)
	return SyncApplied
}

func (a *Adapter) apply(state model.PlaybackState, now time.Time) {
	p := a.player

	if state.IsPlaying && !p.IsPlaying() {
		p.Play()
	} else if !state.IsPlaying && p.IsPlaying() {
		p.Pause()
	}

	target := state.PositionAt(now)
	if math.Abs(p.CurrentTime()-target) > a.tolerance {
		a.log.Debugf("drifted to %.2fs, seeking to %.2fs", p.CurrentTime(), target)
		p.Seek(target)
	}

	if state.IsPlaying && p.Rate() != state.PlaybackRate {
		p.SetRate(state.PlaybackRate)
	}

	playing := p.IsPlaying()
	a.mu.Lock()
	a.pending = false
	if a.view.Status.Ready() {
		a.view.Status = StatusPaused
		if playing {
			a.view.Status = StatusPlaying
		}
	}
	a.mu.Unlock()
}

func (a *Adapter) load(video model.Video) {
	a.mu.Lock()
	v := video
	a.loaded = &v
	a.view = View{Status: StatusBuffering, IsBuffering: true}
	a.mu.Unlock()

	a.log.Infof("loading %s", video.URL)
	if err := a.player.Load(video); err != nil {
		a.fail(err)
	}
}

func (a *Adapter) unload() {
	a.mu.Lock()
	wasLoaded := a.loaded != nil
	a.loaded = nil
	a.pending = false
	a.view = View{Status: StatusIdle}
	a.mu.Unlock()

	if wasLoaded && a.player.IsPlaying() {
		a.player.Pause()
	}
}

func (a *Adapter) fail(err error) {
	msg := "playback failed"
	if err != nil {
		msg = err.Error()
	}

	a.mu.Lock()
	a.view.Status = StatusFailed
	a.view.IsBuffering = false
	a.view.IsReadyToPlay = false
	a.view.HasError = true
	a.view.ErrorMessage = msg
	a.mu.Unlock()

	a.log.Errorf(err, "player failed")
}

// Reload loads the current video again. It is the only way out of the failed status
// short of switching videos.
func (a *Adapter) Reload() error {
	a.mu.Lock()
	desired := a.desired
	if desired == nil || desired.IsIdle() {
		a.mu.Unlock()
		return ErrNothingLoaded
	}
	a.loaded = nil
	a.lastSync = time.Time{}
	state := *desired
	a.mu.Unlock()

	a.offer(state)
	return nil
}

func (a *Adapter) handleEvent(ev Event) {
	switch ev.Kind {
	case EventTimeUpdate:
		a.mu.Lock()
		a.view.CurrentTime = ev.Time
		a.mu.Unlock()
		a.mirror.MirrorCurrentTime(ev.Time)

	case EventBuffering:
		a.mu.Lock()
		if a.view.Status != StatusFailed && a.loaded != nil {
			a.view.Status = StatusBuffering
			a.view.IsBuffering = true
			a.view.IsReadyToPlay = false
			a.view.BufferProgress = ev.Progress
		}
		a.mu.Unlock()

	case EventReady:
		playing := a.player.IsPlaying()
		a.mu.Lock()
		if a.view.Status == StatusFailed || a.loaded == nil {
			a.mu.Unlock()
			return
		}
		a.view.Status = StatusPaused
		if playing {
			a.view.Status = StatusPlaying
		}
		a.view.IsBuffering = false
		a.view.IsReadyToPlay = true
		a.view.BufferProgress = 1
		var replay *model.PlaybackState
		if a.pending && a.desired != nil {
			s := *a.desired
			replay = &s
		}
		a.mu.Unlock()

		if replay != nil {
			a.offer(*replay)
		}

	case EventFailed:
		a.fail(ev.Err)

	case EventEnded:
		// each peer loops on its own, nothing is broadcast
		a.player.Seek(0)
		a.mu.Lock()
		a.view.CurrentTime = 0
		resume := a.desired != nil && a.desired.IsPlaying
		a.mu.Unlock()

		a.mirror.MirrorCurrentTime(0)
		if resume && !a.player.IsPlaying() {
			a.player.Play()
		}
	}
}

// View returns what the player chrome should show
func (a *Adapter) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func sameVideo(loaded, want *model.Video) bool {
	if loaded == nil || want == nil {
		return loaded == want
	}
	return loaded.ID == want.ID && loaded.URL == want.URL
}
