package cleaning

import "errors"

// Caller input errors, surfaced for correction and never retried.
var (
	ErrUnknownZone     = errors.New("unknown zone")
	ErrNoZonesSelected = errors.New("no zones selected")
	ErrDuplicateZone   = errors.New("zone selected twice")
)

// State precondition violations.
var (
	ErrSessionNotActive     = errors.New("session is not active")
	ErrSessionNotPaused     = errors.New("session is not paused")
	ErrSessionTerminal      = errors.New("session already finished")
	ErrSessionAlreadyActive = errors.New("owner already has a session in progress")
	ErrSessionNotFound      = errors.New("session not found")
)

var (
	// ErrSessionBusy means the session lock could not be taken in time or a
	// concurrent writer won the version check. Safe to retry once.
	ErrSessionBusy = errors.New("session is busy")

	// ErrStore wraps persistence failures. The operation did not take effect.
	ErrStore = errors.New("session store failure")
)

// Retryable reports whether err may succeed if the call is repeated shortly.
func Retryable(err error) bool {
	return errors.Is(err, ErrSessionBusy)
}
