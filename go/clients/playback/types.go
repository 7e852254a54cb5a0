package playback

// Device is the player the adapter will send commands to.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	IsActive bool   `json:"is_active"`
}

// Item is the track reported by the external player.
type Item struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	ArtworkURL string   `json:"artwork_url,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// Playback is the current playback position.
type Playback struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int64  `json:"progress_ms"`
	PlaylistID string `json:"playlist_id,omitempty"`
	Item       *Item  `json:"item,omitempty"`
}

// Status is the adapter's view of the external player.
type Status struct {
	Connected          bool      `json:"connected"`
	CanControlPlayback bool      `json:"can_control_playback"`
	ActiveDevice       *Device   `json:"active_device,omitempty"`
	Playback           *Playback `json:"playback,omitempty"`
	Warnings           []string  `json:"warnings"`
}

// Action names a playback command.
type Action string

const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionSeek     Action = "seek"
)

// Command is the request body for the command endpoint.
type Command struct {
	SessionID  string `json:"session_id"`
	Action     Action `json:"action"`
	PlaylistID string `json:"playlist_id,omitempty"`
	TrackID    string `json:"track_id,omitempty"`
	PositionMs *int64 `json:"position_ms,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
}

// At returns a copy of c positioned at ms.
func (c Command) At(ms int64) Command {
	c.PositionMs = &ms
	return c
}

// ErrorBody is the structured error the command endpoint returns.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CommandResponse is a Status plus the outcome of the command.
type CommandResponse struct {
	Status
	OK     bool       `json:"ok"`
	Action Action     `json:"action"`
	Error  *ErrorBody `json:"error,omitempty"`
}
