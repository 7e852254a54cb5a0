package playback

const (
	// API Endpoints
	StatusEndpoint  = "/api/spotify/status"
	CommandEndpoint = "/api/spotify/command"

	// Headers
	AuthorizationHeader = "Authorization"

	// Command error codes that put the host into manual control.
	CodeNoActiveDevice  = "no_active_device"
	CodePremiumRequired = "premium_required"
)
