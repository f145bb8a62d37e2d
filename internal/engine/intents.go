package engine

import (
	"context"
	"fmt"

	"github.com/vibesync/client/internal/domain"
)

// Local intents are fire-and-forget outbound events. None of them
// mutates RoomState directly: the visible change happens only when the
// corresponding authoritative event round-trips back. This trades
// perceived latency for a single source of truth.

type joinRoomPayload struct {
	RoomID      string       `json:"room_id"`
	UserProfile *domain.User `json:"user_profile"`
	Token       string       `json:"token,omitempty"`
}

// Join registers presence in a room with the best-available credential.
// Idempotent: safe to resend on every reconnection. No local state is
// created optimistically; RoomState is populated by the next snapshot.
func (e *Engine) Join(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	e.mu.Lock()
	e.roomID = roomID
	e.mu.Unlock()

	return e.send(EventJoinRoom, joinRoomPayload{
		RoomID:      roomID,
		UserProfile: e.session.Profile(),
		Token:       e.session.BestCredential(),
	})
}

// Leave abandons the room: notifies the server, clears the local view
// and tears the progress tick down deterministically.
func (e *Engine) Leave() error {
	e.mu.Lock()
	roomID := e.roomID
	e.roomID = ""
	e.state = domain.RoomState{}
	e.mu.Unlock()

	e.progress.Reset()
	e.syncDevicePlayback(context.Background(), false)
	e.emitState()

	if roomID == "" {
		return nil
	}

	return e.send(EventLeaveSession, map[string]any{"room_id": roomID})
}

// JoinQueue asks the server to enqueue a track. The local queue stays
// untouched until queue_updated echoes back.
func (e *Engine) JoinQueue(track domain.Track) error {
	roomID := e.RoomID()
	if roomID == "" {
		return ErrNotJoined
	}

	if err := e.validate.ValidateErr(&track); err != nil {
		return fmt.Errorf("invalid track: %w", err)
	}

	return e.send(EventAddToQueue, map[string]any{
		"room_id": roomID,
		"track":   track,
	})
}

// Remove asks the server to drop a queued track by its queue identity.
func (e *Engine) Remove(trackUUID string) error {
	roomID := e.RoomID()
	if roomID == "" {
		return ErrNotJoined
	}

	return e.send(EventRemoveFromQueue, map[string]any{
		"room_id":    roomID,
		"track_uuid": trackUUID,
	})
}

// Skip requests the next track.
func (e *Engine) Skip() error {
	roomID := e.RoomID()
	if roomID == "" {
		return ErrNotJoined
	}

	return e.send(EventSkipSong, map[string]any{"room_id": roomID})
}

// Toggle requests a play/pause flip.
func (e *Engine) Toggle() error {
	roomID := e.RoomID()
	if roomID == "" {
		return ErrNotJoined
	}

	return e.send(EventTogglePlayback, map[string]any{"room_id": roomID})
}

// SetVibe requests a mood shift.
func (e *Engine) SetVibe(vibe string) error {
	roomID := e.RoomID()
	if roomID == "" {
		return ErrNotJoined
	}

	return e.send(EventSetVibe, map[string]any{
		"room_id":   roomID,
		"vibe_text": vibe,
	})
}

// Seek commands the local device directly and resyncs the estimator.
// The protocol has no seek event: position is a device fact, not a
// room-ordering concern.
func (e *Engine) Seek(positionMs int) error {
	if positionMs < 0 {
		positionMs = 0
	}

	e.progress.SyncPosition(positionMs)

	dev := e.attachedDevice()
	if dev == nil {
		return nil
	}

	go func() {
		cmdCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		if err := dev.Seek(cmdCtx, positionMs); err != nil {
			e.logger.Warn("failed to seek device", "position_ms", positionMs, "error", err)
		}
	}()

	return nil
}

func (e *Engine) send(event string, payload any) error {
	if err := e.sender.Send(event, payload); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}

	return nil
}
