package player

import (
	"context"
	"sync"
	"time"

	"watch-party-sync/pkg/model"
)

// SimulatedOptions configures a SimulatedPlayer
type SimulatedOptions struct {
	Now func() time.Time
	// LoadDelay is how long media takes to become ready. Zero reports ready from Load.
	LoadDelay time.Duration
}

// SimulatedPlayer is a Player without media. Its position advances with the clock
// while playing, so peers can be exercised end to end from a terminal.
type SimulatedPlayer struct {
	now       func() time.Time
	loadDelay time.Duration

	mu        sync.Mutex
	handler   EventHandler
	video     *model.Video
	ready     bool
	playing   bool
	rate      float64
	position  float64
	anchor    time.Time
	loadTimer *time.Timer
}

// NewSimulatedPlayer creates a paused player with nothing loaded
func NewSimulatedPlayer(opts SimulatedOptions) *SimulatedPlayer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SimulatedPlayer{
		now:       opts.Now,
		loadDelay: opts.LoadDelay,
		rate:      model.DefaultPlaybackRate,
	}
}

// SetEventHandler implements Player
func (p *SimulatedPlayer) SetEventHandler(handler EventHandler) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

func (p *SimulatedPlayer) emit(ev Event) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Load implements Player. The video becomes ready after LoadDelay.
func (p *SimulatedPlayer) Load(video model.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.loadTimer != nil {
		p.loadTimer.Stop()
		p.loadTimer = nil
	}
	v := video
	p.video = &v
	p.ready = false
	p.playing = false
	p.position = 0
	p.anchor = p.now()
	p.mu.Unlock()

	p.emit(Event{Kind: EventBuffering})

	if p.loadDelay <= 0 {
		p.markReady(&v)
		return nil
	}
	p.mu.Lock()
	p.loadTimer = time.AfterFunc(p.loadDelay, func() { p.markReady(&v) })
	p.mu.Unlock()
	return nil
}

func (p *SimulatedPlayer) markReady(v *model.Video) {
	p.mu.Lock()
	if p.video == nil || p.video.URL != v.URL {
		p.mu.Unlock()
		return
	}
	p.ready = true
	p.mu.Unlock()
	p.emit(Event{Kind: EventReady})
}

// Fail makes the player report a failure, as a decoder error would
func (p *SimulatedPlayer) Fail(err error) {
	p.mu.Lock()
	p.position = p.positionLocked()
	p.anchor = p.now()
	p.playing = false
	p.ready = false
	p.mu.Unlock()
	p.emit(Event{Kind: EventFailed, Err: err})
}

// Play implements Player
func (p *SimulatedPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready || p.playing {
		return
	}
	p.anchor = p.now()
	p.playing = true
}

// Pause implements Player
func (p *SimulatedPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.position = p.positionLocked()
	p.anchor = p.now()
	p.playing = false
}

// Seek implements Player and reports the new position once done
func (p *SimulatedPlayer) Seek(seconds float64) {
	p.mu.Lock()
	if p.video == nil {
		p.mu.Unlock()
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if d := p.video.Duration; d > 0 && seconds > d {
		seconds = d
	}
	p.position = seconds
	p.anchor = p.now()
	p.mu.Unlock()

	p.emit(Event{Kind: EventTimeUpdate, Time: seconds})
}

// SetRate implements Player
func (p *SimulatedPlayer) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.positionLocked()
	p.anchor = p.now()
	p.rate = rate
}

// Rate implements Player
func (p *SimulatedPlayer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// IsPlaying implements Player
func (p *SimulatedPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// CurrentTime implements Player
func (p *SimulatedPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimulatedPlayer) positionLocked() float64 {
	pos := p.position
	if p.playing {
		pos += p.now().Sub(p.anchor).Seconds() * p.rate
	}
	if p.video != nil && p.video.Duration > 0 && pos > p.video.Duration {
		pos = p.video.Duration
	}
	return pos
}

// Tick reports the current position, and end of media once the position reaches
// the video duration. Playback stops at the end, as a real player's would.
func (p *SimulatedPlayer) Tick() {
	p.mu.Lock()
	if p.video == nil || !p.ready {
		p.mu.Unlock()
		return
	}
	pos := p.positionLocked()
	ended := p.playing && p.video.Duration > 0 && pos >= p.video.Duration
	if ended {
		p.position = pos
		p.anchor = p.now()
		p.playing = false
	}
	p.mu.Unlock()

	p.emit(Event{Kind: EventTimeUpdate, Time: pos})
	if ended {
		p.emit(Event{Kind: EventEnded, Time: pos})
	}
}

// Run calls Tick every interval until ctx is done
func (p *SimulatedPlayer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.loadTimer != nil {
				p.loadTimer.Stop()
			}
			p.mu.Unlock()
			return nil
		case <-ticker.C:
			p.Tick()
		}
	}
}
