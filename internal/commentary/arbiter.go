// Package commentary arbitrates the secondary announcement audio
// channel against the primary stream's volume.
package commentary

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vibesync/client/internal/domain"
)

// DuckedVolume is the primary-stream level while an announcement plays.
const DuckedVolume = 0.2

type State int

const (
	Idle State = iota
	Announcing
)

// VolumeControl is the slice of the playback adapter the arbiter
// needs: read the last commanded level, set a new one.
type VolumeControl interface {
	SetVolume(ctx context.Context, level float64) error
	Volume() float64
}

// NopVolume is used when no playback device is attached; text
// commentary still works, ducking becomes a no-op.
type NopVolume struct{}

func (NopVolume) SetVolume(context.Context, float64) error { return nil }
func (NopVolume) Volume() float64                          { return defaultBaseline }

const defaultBaseline = 0.5

// Announcer plays one audio clip at a time. done is invoked exactly
// once per Play, on natural completion or on any error; Stop suppresses
// the pending done.
type Announcer interface {
	Play(url string, done func(err error))
	Stop()
}

// Speech is the local synthesis fallback for text-only commentary.
type Speech interface {
	Speak(text string) error
}

// Arbiter runs the Idle -> Announcing -> Idle machine. Every
// transition into Announcing snapshots the primary volume before
// ducking and restores exactly that value exactly once, on completion,
// error, or preemption.
type Arbiter struct {
	volumes   VolumeControl
	announcer Announcer
	speech    Speech
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	gen     int
	restore func()
}

func NewArbiter(volumes VolumeControl, announcer Announcer, speech Speech, logger *slog.Logger) *Arbiter {
	return &Arbiter{
		volumes:   volumes,
		announcer: announcer,
		speech:    speech,
		logger:    logger,
	}
}

func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// HandleCommentary processes one commentary event. A new event with an
// audio url arriving while Announcing preempts: the current clip is
// stopped and its volume restored before the new announcement ducks.
func (a *Arbiter) HandleCommentary(ctx context.Context, ev domain.CommentaryEvent) {
	if ev.AudioURL != "" {
		a.announce(ctx, ev.AudioURL)
		return
	}

	if ev.Text != "" {
		// Fallback path, assumed rare and short: no ducking.
		go func() {
			if err := a.speech.Speak(ev.Text); err != nil {
				a.logger.WarnContext(ctx, "speech synthesis failed", "error", err)
			}
		}()
		return
	}
}

func (a *Arbiter) announce(ctx context.Context, audioURL string) {
	a.mu.Lock()

	if a.state == Announcing {
		a.announcer.Stop()
		a.restoreLocked()
	}

	baseline := a.volumes.Volume()
	if err := a.volumes.SetVolume(ctx, DuckedVolume); err != nil {
		a.logger.WarnContext(ctx, "failed to duck volume", "error", err)
	}

	a.state = Announcing
	a.gen++
	gen := a.gen
	a.restore = func() {
		if err := a.volumes.SetVolume(ctx, baseline); err != nil {
			a.logger.WarnContext(ctx, "failed to restore volume", "error", err)
		}
	}
	a.mu.Unlock()

	a.announcer.Play(audioURL, func(err error) {
		a.finish(ctx, gen, err)
	})
}

// finish completes the announcement identified by gen. Stale
// completions from a preempted clip are ignored.
func (a *Arbiter) finish(ctx context.Context, gen int, err error) {
	if err != nil {
		a.logger.WarnContext(ctx, "announcement playback failed", "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen || a.state != Announcing {
		return
	}

	a.restoreLocked()
	a.state = Idle
}

func (a *Arbiter) restoreLocked() {
	if a.restore != nil {
		a.restore()
		a.restore = nil
	}
}
