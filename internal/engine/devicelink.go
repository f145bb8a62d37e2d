package engine

import (
	"context"

	"github.com/vibesync/client/internal/device"
)

// AttachDevice binds a playback device to the engine. The notification
// subscription is a scope tied to exactly one (session, device) pair:
// the previous scope is torn down and the previous handle disconnected
// before the new one starts, so two subscriptions never overlap.
func (e *Engine) AttachDevice(dev device.Device) {
	e.mu.Lock()
	prev := e.dev
	prevCancel := e.devCancel
	e.dev = nil
	e.devCancel = nil
	e.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prev != nil {
		if err := prev.Disconnect(); err != nil {
			e.logger.Warn("failed to disconnect previous device", "error", err)
		}
	}

	scopeCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.dev = dev
	e.devCancel = cancel
	e.mu.Unlock()

	go e.consumeNotifications(scopeCtx, dev)
}

// DetachDevice tears down the current subscription scope and
// disconnects the handle. Safe without an attached device.
func (e *Engine) DetachDevice() {
	e.mu.Lock()
	dev := e.dev
	cancel := e.devCancel
	e.dev = nil
	e.devCancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dev != nil {
		if err := dev.Disconnect(); err != nil {
			e.logger.Warn("failed to disconnect device", "error", err)
		}
	}

	e.session.ClearDeviceID()
}

func (e *Engine) attachedDevice() device.Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dev
}

func (e *Engine) consumeNotifications(ctx context.Context, dev device.Device) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-dev.Notifications():
			if !ok {
				return
			}
			e.handleDeviceNotification(n)
		}
	}
}

// handleDeviceNotification merges the device-reported fact into the
// local view. Server events declare intent (what should play); device
// notifications report fact (what actually plays); the estimator trusts
// the fact when present.
func (e *Engine) handleDeviceNotification(n device.Notification) {
	switch n.Kind {
	case device.Ready:
		e.session.SetDeviceID(n.DeviceID)
		e.logger.Info("playback device ready", "device_id", n.DeviceID)

	case device.NotReady:
		e.logger.Warn("playback device went offline", "device_id", n.DeviceID)

	case device.AuthFailure:
		// Credential is invalidated, never retried automatically.
		e.logger.Error("device authentication failure", "message", n.Message)
		e.session.ClearCredential()
		e.session.ClearDeviceID()

	case device.StateChanged:
		e.progress.Resync(n.PositionMs, n.DurationMs, n.IsPlaying)
	}
}
