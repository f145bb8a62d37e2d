package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesync/client/internal/device"
	"github.com/vibesync/client/internal/domain"
	"github.com/vibesync/client/internal/session"
	"github.com/vibesync/client/pkg/wsrouter"
)

type sentEvent struct {
	event   string
	payload any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeSender) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{event: event, payload: payload})
	return nil
}

func (f *fakeSender) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		events = append(events, s.event)
	}
	return events
}

type fakeTransport struct {
	mu     sync.Mutex
	starts []string
}

func (f *fakeTransport) StartPlayback(_ context.Context, deviceID, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, deviceID+"|"+uri)
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

type fakeDevice struct {
	mu            sync.Mutex
	notifications chan device.Notification
	volume        float64
	resumes       int
	pauses        int
	seeks         []int
	disconnected  bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		notifications: make(chan device.Notification, 16),
		volume:        0.5,
	}
}

func (f *fakeDevice) Connect(context.Context) error { return nil }

func (f *fakeDevice) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return nil
}

func (f *fakeDevice) Pause(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeDevice) Seek(_ context.Context, positionMs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, positionMs)
	return nil
}

func (f *fakeDevice) SetVolume(_ context.Context, level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = level
	return nil
}

func (f *fakeDevice) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeDevice) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *fakeDevice) Notifications() <-chan device.Notification {
	return f.notifications
}

func (f *fakeDevice) pauseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) *session.Context {
	t.Helper()
	return session.NewContext(session.NewStore(t.TempDir()), discardLogger())
}

func env(t *testing.T, event string, payload any) wsrouter.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return wsrouter.Envelope{Event: event, Payload: data}
}

func track(name, uri, uuid string) domain.Track {
	return domain.Track{
		URI:        uri,
		Name:       name,
		Artist:     "Artist",
		DurationMs: 200000,
		UUID:       uuid,
		AddedBy:    "user-1",
	}
}

func TestSnapshotIsTotalReplacement(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	require.NoError(t, eng.Join("abc"))

	// Local intents issued before the snapshot round-trips back must
	// not survive it.
	require.NoError(t, eng.JoinQueue(track("Local", "spotify:track:l", "")))

	t1 := track("One", "spotify:track:1", "u1")
	t2 := track("Two", "spotify:track:2", "u2")
	current := track("Now", "spotify:track:n", "")
	eng.HandleEvent(env(t, EventRoomState, domain.RoomState{
		CurrentTrack: &current,
		IsPlaying:    true,
		Queue:        []domain.Track{t1, t2},
		Users:        []domain.User{{ID: "user-1", Name: "Ann"}},
	}))

	state := eng.Snapshot()
	require.NotNil(t, state.CurrentTrack)
	assert.Equal(t, "Now", state.CurrentTrack.Name)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, []domain.Track{t1, t2}, state.Queue)
	assert.Len(t, state.Users, 1)

	// Second snapshot wins wholesale; absent users/history stay.
	eng.HandleEvent(env(t, EventRoomState, domain.RoomState{
		CurrentTrack: nil,
		IsPlaying:    false,
		Queue:        []domain.Track{t2},
	}))

	state = eng.Snapshot()
	assert.Nil(t, state.CurrentTrack)
	assert.False(t, state.IsPlaying)
	assert.Equal(t, []domain.Track{t2}, state.Queue)
	assert.Len(t, state.Users, 1, "snapshot without users must not clear them")
}

func TestQueueUpdateReplacesWithoutMerge(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	t1 := track("One", "spotify:track:1", "u1")
	t2 := track("Two", "spotify:track:2", "u2")

	eng.HandleEvent(env(t, EventQueueUpdated, []domain.Track{t1, t2}))
	assert.Len(t, eng.Snapshot().Queue, 2)

	eng.HandleEvent(env(t, EventQueueUpdated, []domain.Track{t1}))
	assert.Equal(t, []domain.Track{t1}, eng.Snapshot().Queue, "no merge, no duplicate retention")

	eng.HandleEvent(env(t, EventQueueUpdated, []domain.Track{}))
	assert.Empty(t, eng.Snapshot().Queue)
}

func TestJoinAndQueueScenario(t *testing.T) {
	sender := &fakeSender{}
	transport := &fakeTransport{}
	sess := newTestSession(t)
	sess.SetCredential("token-1")
	sess.SetDeviceID("device-1")

	eng := NewEngine(sender, sess, transport, discardLogger())
	defer eng.progress.Stop()

	// join room
	require.NoError(t, eng.Join("abc"))
	require.Equal(t, []string{EventJoinRoom}, sender.events())
	t.Log("joined room")

	// server snapshot: idle room
	eng.HandleEvent(env(t, EventRoomState, domain.RoomState{Queue: []domain.Track{}}))
	state := eng.Snapshot()
	assert.Nil(t, state.CurrentTrack)
	assert.False(t, state.IsPlaying)
	assert.Empty(t, state.Queue)
	t.Log("idle snapshot applied")

	// enqueue: outbound only, no optimistic insert
	t1 := track("One", "spotify:track:1", "")
	require.NoError(t, eng.JoinQueue(t1))
	assert.Empty(t, eng.Snapshot().Queue, "queue must stay empty until the server echoes")
	assert.Equal(t, []string{EventJoinRoom, EventAddToQueue}, sender.events())
	t.Log("add_to_queue sent")

	// server echo
	t1.UUID = "u1"
	eng.HandleEvent(env(t, EventQueueUpdated, []domain.Track{t1}))
	assert.Equal(t, []domain.Track{t1}, eng.Snapshot().Queue)
	t.Log("queue echoed back")

	// server starts playback
	eng.HandleEvent(env(t, EventPlayTrack, t1))
	state = eng.Snapshot()
	require.NotNil(t, state.CurrentTrack)
	assert.Equal(t, "One", state.CurrentTrack.Name)
	assert.True(t, state.IsPlaying)

	require.Eventually(t, func() bool { return transport.count() == 1 },
		time.Second, 10*time.Millisecond, "transport-control start must be attempted")
	t.Log("play_track applied")
}

func TestPlayTrackWithoutDeviceSkipsTransport(t *testing.T) {
	sender := &fakeSender{}
	transport := &fakeTransport{}
	eng := NewEngine(sender, newTestSession(t), transport, discardLogger())
	defer eng.progress.Stop()

	eng.HandleEvent(env(t, EventPlayTrack, track("One", "spotify:track:1", "")))

	state := eng.Snapshot()
	require.NotNil(t, state.CurrentTrack)
	assert.True(t, state.IsPlaying, "local view trusts the server even without a device")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, transport.count())
}

func TestMalformedPayloadsAreIgnored(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	t1 := track("One", "spotify:track:1", "u1")
	eng.HandleEvent(env(t, EventQueueUpdated, []domain.Track{t1}))
	before := eng.Snapshot()

	for _, event := range []string{
		EventRoomState, EventUserListUpdated, EventQueueUpdated,
		EventVibeUpdated, EventPlayTrack, EventPlaybackToggled, EventDJCommentary,
	} {
		eng.HandleEvent(wsrouter.Envelope{Event: event, Payload: json.RawMessage(`{broken`)})
		eng.HandleEvent(wsrouter.Envelope{Event: event, Payload: json.RawMessage(`null`)})
		eng.HandleEvent(wsrouter.Envelope{Event: event})
	}

	eng.HandleEvent(wsrouter.Envelope{Event: "no_such_event", Payload: json.RawMessage(`{}`)})

	assert.Equal(t, before, eng.Snapshot(), "malformed payloads must be no-ops")
}

func TestPlaybackToggledMirrorsDevice(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()
	defer eng.DetachDevice()

	dev := newFakeDevice()
	eng.AttachDevice(dev)

	eng.HandleEvent(env(t, EventPlayTrack, track("One", "spotify:track:1", "")))
	assert.True(t, eng.progress.Ticking())

	eng.HandleEvent(env(t, EventPlaybackToggled, map[string]any{"is_playing": false}))

	state := eng.Snapshot()
	assert.False(t, state.IsPlaying)
	assert.False(t, eng.progress.Ticking())
	require.Eventually(t, func() bool { return dev.pauseCount() >= 1 },
		time.Second, 10*time.Millisecond, "pause must be mirrored onto the device")
}

func TestStopPlayerResetsProgress(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	eng.HandleEvent(env(t, EventPlayTrack, track("One", "spotify:track:1", "")))
	assert.True(t, eng.Progress().IsPlaying)

	eng.HandleEvent(wsrouter.Envelope{Event: EventStopPlayer})

	state := eng.Snapshot()
	assert.Nil(t, state.CurrentTrack)
	assert.False(t, state.IsPlaying)

	progress := eng.Progress()
	assert.Zero(t, progress.PositionMs)
	assert.Zero(t, progress.DurationMs)
	assert.False(t, eng.progress.Ticking())
}

func TestLeaveTearsDownDeterministically(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())

	require.NoError(t, eng.Join("abc"))
	eng.HandleEvent(env(t, EventPlayTrack, track("One", "spotify:track:1", "")))
	require.True(t, eng.progress.Ticking())

	require.NoError(t, eng.Leave())

	assert.Empty(t, eng.RoomID())
	assert.Nil(t, eng.Snapshot().CurrentTrack)
	assert.False(t, eng.progress.Ticking(), "a tick still firing after leave is a listener leak")
	assert.Equal(t, []string{EventJoinRoom, EventLeaveSession}, sender.events())

	// Leaving again is a no-op on the wire.
	require.NoError(t, eng.Leave())
	assert.Equal(t, []string{EventJoinRoom, EventLeaveSession}, sender.events())
}

func TestIntentsRequireJoinedRoom(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	assert.ErrorIs(t, eng.Skip(), ErrNotJoined)
	assert.ErrorIs(t, eng.Toggle(), ErrNotJoined)
	assert.ErrorIs(t, eng.Remove("u1"), ErrNotJoined)
	assert.ErrorIs(t, eng.SetVibe("study"), ErrNotJoined)
	assert.ErrorIs(t, eng.JoinQueue(track("One", "spotify:track:1", "")), ErrNotJoined)
	assert.Empty(t, sender.events())
}

func TestJoinQueueValidatesTrack(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	require.NoError(t, eng.Join("abc"))

	err := eng.JoinQueue(domain.Track{Name: "No URI"})
	require.Error(t, err)
	assert.Equal(t, []string{EventJoinRoom}, sender.events(), "invalid intents must not hit the wire")
}

func TestVibeUpdated(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	eng.HandleEvent(env(t, EventVibeUpdated, map[string]any{"vibe": "late night study"}))
	assert.Equal(t, "late night study", eng.Snapshot().ActiveVibe)
}

func TestDeviceNotificationsDriveSession(t *testing.T) {
	sender := &fakeSender{}
	sess := newTestSession(t)
	sess.SetCredential("token-1")

	eng := NewEngine(sender, sess, nil, discardLogger())
	defer eng.progress.Stop()
	defer eng.DetachDevice()

	dev := newFakeDevice()
	eng.AttachDevice(dev)

	dev.notifications <- device.Notification{Kind: device.Ready, DeviceID: "device-1"}
	require.Eventually(t, func() bool { return sess.DeviceID() == "device-1" },
		time.Second, 10*time.Millisecond)

	// Device fact overwrites the estimate.
	dev.notifications <- device.Notification{Kind: device.StateChanged, PositionMs: 61000, DurationMs: 180000, IsPlaying: true}
	require.Eventually(t, func() bool { return eng.Progress().PositionMs == 61000 },
		time.Second, 10*time.Millisecond)

	dev.notifications <- device.Notification{Kind: device.AuthFailure, Message: "token expired"}
	require.Eventually(t, func() bool { return sess.Credential() == "" && sess.DeviceID() == "" },
		time.Second, 10*time.Millisecond, "auth failure must invalidate the credential")
}

func TestAttachDeviceReplacesPreviousScope(t *testing.T) {
	sender := &fakeSender{}
	sess := newTestSession(t)
	eng := NewEngine(sender, sess, nil, discardLogger())
	defer eng.progress.Stop()
	defer eng.DetachDevice()

	dev1 := newFakeDevice()
	dev2 := newFakeDevice()

	eng.AttachDevice(dev1)
	eng.AttachDevice(dev2)

	dev1.mu.Lock()
	disconnected := dev1.disconnected
	dev1.mu.Unlock()
	assert.True(t, disconnected, "previous handle must be disconnected before the new one races it")

	dev2.notifications <- device.Notification{Kind: device.Ready, DeviceID: "device-2"}
	require.Eventually(t, func() bool { return sess.DeviceID() == "device-2" },
		time.Second, 10*time.Millisecond)
}

func TestSeekCommandsDeviceAndResyncsEstimator(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()
	defer eng.DetachDevice()

	dev := newFakeDevice()
	eng.AttachDevice(dev)

	eng.HandleEvent(env(t, EventPlayTrack, track("One", "spotify:track:1", "")))
	require.NoError(t, eng.Seek(30000))

	assert.Equal(t, 30000, eng.Progress().PositionMs)
	require.Eventually(t, func() bool {
		dev.mu.Lock()
		defer dev.mu.Unlock()
		return len(dev.seeks) == 1 && dev.seeks[0] == 30000
	}, time.Second, 10*time.Millisecond)

	assert.Empty(t, sender.events(), "seek is device-directed, not a room event")
}

func TestCommentaryReachesListener(t *testing.T) {
	sender := &fakeSender{}
	eng := NewEngine(sender, newTestSession(t), nil, discardLogger())
	defer eng.progress.Stop()

	var got domain.CommentaryEvent
	eng.OnCommentary(func(ev domain.CommentaryEvent) { got = ev })

	eng.HandleEvent(env(t, EventDJCommentary, domain.CommentaryEvent{
		Text:     "Taking requests",
		AudioURL: "https://cdn.example/clip.mp3",
	}))

	assert.Equal(t, "Taking requests", got.Text)
	assert.Equal(t, "https://cdn.example/clip.mp3", got.AudioURL)
}
