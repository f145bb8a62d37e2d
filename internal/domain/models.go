package domain

// SystemUserID marks a track that was selected automatically by the
// server-side DJ rather than queued by a participant.
const SystemUserID = "system"

type Track struct {
	URI          string `json:"uri" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Artist       string `json:"artist"`
	Image        string `json:"image,omitempty"`
	DurationMs   int    `json:"duration_ms" validate:"gt=0"`
	UUID         string `json:"uuid,omitempty"`
	AddedBy      string `json:"added_by,omitempty"`
	AddedByName  string `json:"added_by_name,omitempty"`
	AddedByImage string `json:"added_by_image,omitempty"`
}

// IsAutoPicked reports whether the track was chosen by the DJ. Display
// logic must branch on the sentinel id, never on a missing name.
func (t Track) IsAutoPicked() bool {
	return t.AddedBy == SystemUserID
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// RoomState is the canonical view of a joined room. It is wholly
// replaced by server snapshots and patched only by the narrow update
// events; it is never merged field-by-field from two snapshots.
type RoomState struct {
	CurrentTrack *Track  `json:"current_track"`
	IsPlaying    bool    `json:"is_playing"`
	Queue        []Track `json:"queue"`
	History      []Track `json:"history,omitempty"`
	Users        []User  `json:"users,omitempty"`
	ActiveVibe   string  `json:"active_vibe,omitempty"`
}

// Clone returns a deep copy safe to hand outside the engine.
func (s RoomState) Clone() RoomState {
	out := s
	if s.CurrentTrack != nil {
		track := *s.CurrentTrack
		out.CurrentTrack = &track
	}
	if s.Queue != nil {
		out.Queue = make([]Track, len(s.Queue))
		copy(out.Queue, s.Queue)
	}
	if s.History != nil {
		out.History = make([]Track, len(s.History))
		copy(out.History, s.History)
	}
	if s.Users != nil {
		out.Users = make([]User, len(s.Users))
		copy(out.Users, s.Users)
	}

	return out
}

// CommentaryEvent is a transient DJ interjection. At most one is
// meaningfully active at a time; it is never persisted.
type CommentaryEvent struct {
	Text     string `json:"text,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}
