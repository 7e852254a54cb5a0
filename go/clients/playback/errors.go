package playback

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the adapter rejects the credential.
var ErrUnauthorized = errors.New("playback credential rejected")

// CommandError is a command the adapter refused.
type CommandError struct {
	Action  Action
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("playback %s failed: %s", e.Action, e.Code)
	}
	return fmt.Sprintf("playback %s failed: %s: %s", e.Action, e.Code, e.Message)
}

// DeviceUnavailable reports whether the failure means no player can be driven.
func (e *CommandError) DeviceUnavailable() bool {
	return e.Code == CodeNoActiveDevice || e.Code == CodePremiumRequired
}

// IsDeviceUnavailable reports whether err is a device-class command failure.
func IsDeviceUnavailable(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.DeviceUnavailable()
}
