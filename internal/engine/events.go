package engine

// Outbound room-channel events.
const (
	EventJoinRoom        = "join_room"
	EventLeaveSession    = "leave_session"
	EventSetVibe         = "set_vibe"
	EventAddToQueue      = "add_to_queue"
	EventRemoveFromQueue = "remove_from_queue"
	EventSkipSong        = "skip_song"
	EventTogglePlayback  = "toggle_playback"
)

// Inbound room-channel events.
const (
	EventRoomState       = "room_state"
	EventUserListUpdated = "user_list_updated"
	EventQueueUpdated    = "queue_updated"
	EventVibeUpdated     = "vibe_updated"
	EventPlayTrack       = "play_track"
	EventPlaybackToggled = "playback_toggled"
	EventStopPlayer      = "stop_player"
	EventDJCommentary    = "dj_commentary"
)
