// Package engine holds the room-state synchronization and
// playback-coordination machine: it turns the asynchronous,
// possibly-reordered event stream into one consistent local view,
// arbitrating between server-authoritative events and local intents.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vibesync/client/internal/device"
	"github.com/vibesync/client/internal/domain"
	"github.com/vibesync/client/internal/session"
	"github.com/vibesync/client/pkg/validator"
	"github.com/vibesync/client/pkg/wsrouter"
)

var ErrNotJoined = errors.New("no room joined")

const commandTimeout = 10 * time.Second

type iSender interface {
	Send(event string, payload any) error
}

type iTransport interface {
	StartPlayback(ctx context.Context, deviceID, uri string) error
}

// Engine exclusively owns the canonical RoomState and the
// ProgressEstimator of the joined room. Handlers are serialized by the
// engine mutex; every inbound event is treated as idempotent and
// overwriting, never as an incremental delta, because ordering is not
// guaranteed across a reconnect boundary.
type Engine struct {
	sender    iSender
	transport iTransport
	session   *session.Context
	validate  *validator.Validator
	logger    *slog.Logger

	router   *wsrouter.Router
	progress *ProgressEstimator

	mu     sync.Mutex
	roomID string
	state  domain.RoomState

	dev       device.Device
	devCancel context.CancelFunc

	onState      func(domain.RoomState)
	onCommentary func(domain.CommentaryEvent)
}

func NewEngine(sender iSender, sess *session.Context, transport iTransport, logger *slog.Logger) *Engine {
	e := &Engine{
		sender:    sender,
		transport: transport,
		session:   sess,
		validate:  validator.NewValidator(),
		logger:    logger,
		router:    wsrouter.New(),
		progress:  NewProgressEstimator(DefaultTickPeriod),
	}

	e.router.Handle(EventRoomState, e.handleRoomState)
	e.router.Handle(EventUserListUpdated, e.handleUserList)
	e.router.Handle(EventQueueUpdated, e.handleQueueUpdated)
	e.router.Handle(EventVibeUpdated, e.handleVibeUpdated)
	e.router.Handle(EventPlayTrack, e.handlePlayTrack)
	e.router.Handle(EventPlaybackToggled, e.handlePlaybackToggled)
	e.router.Handle(EventStopPlayer, e.handleStopPlayer)
	e.router.Handle(EventDJCommentary, e.handleCommentary)
	e.router.HandleNotFound(func(ctx context.Context, _ json.RawMessage) {
		e.logger.DebugContext(ctx, "unhandled event", "event", wsrouter.GetEventTypeFromCtx(ctx))
	})

	return e
}

// OnStateChanged registers the presentation listener. It receives a
// clone of the canonical state after every reconciled change.
func (e *Engine) OnStateChanged(fn func(domain.RoomState)) {
	e.onState = fn
}

// OnCommentary registers the narrow commentary slice consumed by the
// announcement arbiter.
func (e *Engine) OnCommentary(fn func(domain.CommentaryEvent)) {
	e.onCommentary = fn
}

// HandleEvent dispatches one inbound envelope to its handler.
func (e *Engine) HandleEvent(env wsrouter.Envelope) {
	e.router.Dispatch(context.Background(), env)
}

// Progress returns the current playback progress estimate.
func (e *Engine) Progress() ProgressState {
	return e.progress.State()
}

// Snapshot returns a copy of the canonical room state.
func (e *Engine) Snapshot() domain.RoomState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// RoomID returns the currently joined room, empty when not joined.
func (e *Engine) RoomID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomID
}

// decode unmarshals an event payload defensively: malformed or null
// payloads are ignored as no-ops, never propagated as a fault.
func (e *Engine) decode(ctx context.Context, payload json.RawMessage, v any) bool {
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		e.logger.DebugContext(ctx, "ignoring empty payload", "event", wsrouter.GetEventTypeFromCtx(ctx))
		return false
	}

	if err := json.Unmarshal(payload, v); err != nil {
		e.logger.DebugContext(ctx, "ignoring malformed payload",
			"event", wsrouter.GetEventTypeFromCtx(ctx), "error", err)
		return false
	}

	return true
}

// handleRoomState applies an authoritative snapshot: total replacement
// of current track, playing flag and queue, plus history and users when
// the snapshot carries them. A snapshot always wins over any locally
// assumed value.
func (e *Engine) handleRoomState(ctx context.Context, payload json.RawMessage) {
	var snapshot domain.RoomState
	if !e.decode(ctx, payload, &snapshot) {
		return
	}

	e.mu.Lock()
	e.state.CurrentTrack = snapshot.CurrentTrack
	e.state.IsPlaying = snapshot.IsPlaying
	e.state.Queue = snapshot.Queue
	if snapshot.History != nil {
		e.state.History = snapshot.History
	}
	if snapshot.Users != nil {
		e.state.Users = snapshot.Users
	}
	current := e.state.CurrentTrack
	playing := e.state.IsPlaying
	e.mu.Unlock()

	if current != nil {
		e.progress.Resync(e.progress.State().PositionMs, current.DurationMs, playing)
		e.syncDevicePlayback(ctx, playing)
	} else {
		e.progress.Reset()
	}

	e.emitState()
}

func (e *Engine) handleUserList(ctx context.Context, payload json.RawMessage) {
	var users []domain.User
	if !e.decode(ctx, payload, &users) {
		return
	}

	e.mu.Lock()
	e.state.Users = users
	e.mu.Unlock()

	e.emitState()
}

// handleQueueUpdated replaces the queue wholesale. Last received wins;
// there is no client-side merge, the server is the ordering authority.
func (e *Engine) handleQueueUpdated(ctx context.Context, payload json.RawMessage) {
	var queue []domain.Track
	if !e.decode(ctx, payload, &queue) {
		return
	}

	if queue == nil {
		queue = []domain.Track{}
	}

	e.mu.Lock()
	e.state.Queue = queue
	e.mu.Unlock()

	e.emitState()
}

func (e *Engine) handleVibeUpdated(ctx context.Context, payload json.RawMessage) {
	var data struct {
		Vibe string `json:"vibe"`
	}
	if !e.decode(ctx, payload, &data) {
		return
	}

	e.mu.Lock()
	e.state.ActiveVibe = data.Vibe
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "vibe shift", "vibe", data.Vibe)
	e.emitState()
}

// handlePlayTrack installs the new current track and, when a local
// device and credential are present, fires the transport-control start
// request. The request is fire-and-forget: a failure is logged and the
// local view keeps trusting the server's play instruction, because a
// differently-authorized listener's device may be the one playing.
func (e *Engine) handlePlayTrack(ctx context.Context, payload json.RawMessage) {
	var track domain.Track
	if !e.decode(ctx, payload, &track) {
		return
	}

	e.mu.Lock()
	e.state.CurrentTrack = &track
	e.state.IsPlaying = true
	e.mu.Unlock()

	e.progress.Resync(0, track.DurationMs, true)
	e.logger.InfoContext(ctx, "now playing", "track", track.Name, "artist", track.Artist, "auto_picked", track.IsAutoPicked())

	deviceID := e.session.DeviceID()
	credential := e.session.Credential()
	if e.transport != nil && deviceID != "" && credential != "" {
		go func() {
			cmdCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()

			if err := e.transport.StartPlayback(cmdCtx, deviceID, track.URI); err != nil {
				e.logger.Error("failed to start playback", "track", track.Name, "error", err)
			}
		}()
	}

	e.emitState()
}

func (e *Engine) handlePlaybackToggled(ctx context.Context, payload json.RawMessage) {
	var data struct {
		IsPlaying bool `json:"is_playing"`
	}
	if !e.decode(ctx, payload, &data) {
		return
	}

	e.mu.Lock()
	e.state.IsPlaying = data.IsPlaying
	e.mu.Unlock()

	e.progress.SetPlaying(data.IsPlaying)
	e.syncDevicePlayback(ctx, data.IsPlaying)
	e.emitState()
}

func (e *Engine) handleStopPlayer(ctx context.Context, payload json.RawMessage) {
	e.mu.Lock()
	e.state.CurrentTrack = nil
	e.state.IsPlaying = false
	e.mu.Unlock()

	e.progress.Reset()
	e.syncDevicePlayback(ctx, false)
	e.emitState()
}

func (e *Engine) handleCommentary(ctx context.Context, payload json.RawMessage) {
	var ev domain.CommentaryEvent
	if !e.decode(ctx, payload, &ev) {
		return
	}

	if ev.Text != "" {
		e.logger.InfoContext(ctx, "dj commentary", "text", ev.Text)
	}

	if e.onCommentary != nil {
		e.onCommentary(ev)
	}
}

// syncDevicePlayback mirrors the server-declared playing intent onto
// the attached device. Transport failures are logged and never change
// room state.
func (e *Engine) syncDevicePlayback(ctx context.Context, playing bool) {
	dev := e.attachedDevice()
	if dev == nil {
		return
	}

	go func() {
		cmdCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		var err error
		if playing {
			err = dev.Resume(cmdCtx)
		} else {
			err = dev.Pause(cmdCtx)
		}
		if err != nil {
			e.logger.Warn("failed to sync device playback", "playing", playing, "error", err)
		}
	}()
}

func (e *Engine) emitState() {
	if e.onState == nil {
		return
	}

	e.mu.Lock()
	state := e.state.Clone()
	e.mu.Unlock()

	e.onState(state)
}
