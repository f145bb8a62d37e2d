package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultTickPeriod is the logical-clock period used to smooth playback
// progress between authoritative updates.
const DefaultTickPeriod = time.Second

// ProgressState is a point-in-time read of estimated playback progress.
type ProgressState struct {
	PositionMs int
	DurationMs int
	IsPlaying  bool
	LastSync   time.Time
}

// ProgressEstimator interpolates playback position between
// authoritative updates. The tick is a presentation smoothing device
// only: it carries no authority, is never sent to the server, and every
// authoritative resync overwrites it exactly.
type ProgressEstimator struct {
	tickPeriod time.Duration

	mu         sync.Mutex
	positionMs int
	durationMs int
	playing    bool
	lastSync   time.Time
	ticking    bool
	cancelTick context.CancelFunc
}

func NewProgressEstimator(tickPeriod time.Duration) *ProgressEstimator {
	if tickPeriod <= 0 {
		tickPeriod = DefaultTickPeriod
	}

	return &ProgressEstimator{tickPeriod: tickPeriod}
}

// Resync overwrites position, duration and playing state with an
// authoritative value (device notification or room event).
func (p *ProgressEstimator) Resync(positionMs, durationMs int, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if positionMs < 0 {
		positionMs = 0
	}

	p.positionMs = positionMs
	p.durationMs = durationMs
	p.playing = playing
	p.lastSync = time.Now()

	if playing {
		p.startTickLocked()
	} else {
		p.stopTickLocked()
	}
}

// SetPlaying flips only the playing flag, keeping the last position.
func (p *ProgressEstimator) SetPlaying(playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing = playing
	if playing {
		p.startTickLocked()
	} else {
		p.stopTickLocked()
	}
}

// SyncPosition overwrites only the position, e.g. after a local seek.
func (p *ProgressEstimator) SyncPosition(positionMs int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if positionMs < 0 {
		positionMs = 0
	}

	p.positionMs = positionMs
	p.lastSync = time.Now()
}

// Reset zeroes all progress and stops the tick.
func (p *ProgressEstimator) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.positionMs = 0
	p.durationMs = 0
	p.playing = false
	p.lastSync = time.Now()
	p.stopTickLocked()
}

// Stop tears the tick down deterministically. A stale tick firing after
// leaving a room is a listener leak.
func (p *ProgressEstimator) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickLocked()
}

// Ticking reports whether the tick goroutine is live.
func (p *ProgressEstimator) Ticking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticking
}

// State returns the current estimate, clamped at read time so the
// extrapolated position never exceeds duration plus one tick period.
func (p *ProgressEstimator) State() ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()

	positionMs := p.positionMs
	if limit := p.durationMs + int(p.tickPeriod/time.Millisecond); p.durationMs > 0 && positionMs > limit {
		positionMs = limit
	}

	return ProgressState{
		PositionMs: positionMs,
		DurationMs: p.durationMs,
		IsPlaying:  p.playing,
		LastSync:   p.lastSync,
	}
}

// advance applies one logical tick. Exposed to the tick goroutine and
// to tests; a tick while paused is a no-op, so a stop/start cycle can
// never double-count.
func (p *ProgressEstimator) advance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return
	}

	p.positionMs += int(p.tickPeriod / time.Millisecond)
}

func (p *ProgressEstimator) startTickLocked() {
	if p.ticking {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.ticking = true
	p.cancelTick = cancel

	go func() {
		ticker := time.NewTicker(p.tickPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.advance()
			}
		}
	}()
}

func (p *ProgressEstimator) stopTickLocked() {
	if !p.ticking {
		return
	}

	p.ticking = false
	p.cancelTick()
	p.cancelTick = nil
}
