// Package device defines the capability surface of the external
// playback device and its notification channel.
package device

import "context"

type NotificationKind int

const (
	// Ready carries the device identifier once the handle is usable.
	Ready NotificationKind = iota
	// NotReady signals temporary loss of the device.
	NotReady
	// AuthFailure invalidates the current credential; never retried.
	AuthFailure
	// StateChanged reports the device-observed playback fact.
	StateChanged
)

type Notification struct {
	Kind       NotificationKind
	DeviceID   string
	PositionMs int
	DurationMs int
	IsPlaying  bool
	Message    string
}

// Device is the black-box playback capability. At most one handle is
// active per session; acquiring a new one must disconnect the previous
// handle first.
type Device interface {
	Connect(ctx context.Context) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	// SetVolume takes a level in [0, 1].
	SetVolume(ctx context.Context, level float64) error
	// Volume reports the last commanded level.
	Volume() float64
	Disconnect() error
	Notifications() <-chan Notification
}
