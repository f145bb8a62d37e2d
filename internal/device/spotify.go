package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vibesync/client/internal/spotify"
)

const defaultVolume = 0.5

type iTransport interface {
	ActiveDeviceID(ctx context.Context) (string, error)
	Resume(ctx context.Context, deviceID string) error
	Pause(ctx context.Context, deviceID string) error
	Seek(ctx context.Context, deviceID string, positionMs int) error
	SetVolume(ctx context.Context, deviceID string, percent int) error
	PlayerState(ctx context.Context) (spotify.PlaybackState, error)
}

// ConnectDevice drives a remote playback device through the
// transport-control endpoints and synthesizes state-changed
// notifications by polling the device-reported player state.
type ConnectDevice struct {
	transport    iTransport
	logger       *slog.Logger
	pollInterval time.Duration

	notifications chan Notification

	mu         sync.Mutex
	deviceID   string
	volume     float64
	connected  bool
	authFailed bool
	cancelPoll context.CancelFunc
}

func NewConnectDevice(transport iTransport, pollInterval time.Duration, logger *slog.Logger) *ConnectDevice {
	return &ConnectDevice{
		transport:     transport,
		logger:        logger,
		pollInterval:  pollInterval,
		volume:        defaultVolume,
		notifications: make(chan Notification, 16),
	}
}

func (d *ConnectDevice) Notifications() <-chan Notification {
	return d.notifications
}

func (d *ConnectDevice) notify(n Notification) {
	select {
	case d.notifications <- n:
	default:
		d.logger.Warn("device notification dropped", "kind", n.Kind)
	}
}

// Connect acquires the device handle and starts the poll loop. The
// poll loop is scoped to this handle and stops on Disconnect.
func (d *ConnectDevice) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return errors.New("device already connected")
	}
	d.mu.Unlock()

	id, err := d.transport.ActiveDeviceID(ctx)
	if err != nil {
		if d.failAuth(err) {
			return err
		}
		return fmt.Errorf("failed to acquire device: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	d.deviceID = id
	d.connected = true
	d.authFailed = false
	d.cancelPoll = cancel
	d.mu.Unlock()

	d.notify(Notification{Kind: Ready, DeviceID: id})
	go d.poll(pollCtx)

	return nil
}

// Disconnect releases the handle and stops the poll loop. Safe to call
// on an unconnected device.
func (d *ConnectDevice) Disconnect() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.connected = false
	d.deviceID = ""
	cancel := d.cancelPoll
	d.cancelPoll = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	d.notify(Notification{Kind: NotReady})
	return nil
}

func (d *ConnectDevice) poll(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, err := d.transport.PlayerState(ctx)
			if err != nil {
				if d.failAuth(err) {
					return
				}
				d.logger.Debug("player state poll failed", "error", err)
				continue
			}

			d.notify(Notification{
				Kind:       StateChanged,
				DeviceID:   state.DeviceID,
				PositionMs: state.PositionMs,
				DurationMs: state.DurationMs,
				IsPlaying:  state.IsPlaying,
			})
		}
	}
}

// failAuth emits exactly one auth-failure notification for a stale
// credential and reports whether err was an auth failure.
func (d *ConnectDevice) failAuth(err error) bool {
	if !errors.Is(err, spotify.ErrAuthFailure) {
		return false
	}

	d.mu.Lock()
	already := d.authFailed
	d.authFailed = true
	d.mu.Unlock()

	if !already {
		d.notify(Notification{Kind: AuthFailure, Message: err.Error()})
	}

	return true
}

func (d *ConnectDevice) id() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return "", errors.New("device not connected")
	}

	return d.deviceID, nil
}

func (d *ConnectDevice) Resume(ctx context.Context) error {
	id, err := d.id()
	if err != nil {
		return err
	}

	if err := d.transport.Resume(ctx, id); err != nil {
		d.failAuth(err)
		return err
	}

	return nil
}

func (d *ConnectDevice) Pause(ctx context.Context) error {
	id, err := d.id()
	if err != nil {
		return err
	}

	if err := d.transport.Pause(ctx, id); err != nil {
		d.failAuth(err)
		return err
	}

	return nil
}

func (d *ConnectDevice) Seek(ctx context.Context, positionMs int) error {
	id, err := d.id()
	if err != nil {
		return err
	}

	if err := d.transport.Seek(ctx, id, positionMs); err != nil {
		d.failAuth(err)
		return err
	}

	return nil
}

func (d *ConnectDevice) SetVolume(ctx context.Context, level float64) error {
	if level < 0 || level > 1 {
		return fmt.Errorf("volume level %v out of range", level)
	}

	id, err := d.id()
	if err != nil {
		return err
	}

	if err := d.transport.SetVolume(ctx, id, int(level*100)); err != nil {
		d.failAuth(err)
		return err
	}

	d.mu.Lock()
	d.volume = level
	d.mu.Unlock()

	return nil
}

func (d *ConnectDevice) Volume() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}
