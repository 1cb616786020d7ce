package corridor

import "errors"

var (
	// ErrSignalOverrideDenied is returned when a higher or equal priority
	// holder keeps the signal.
	ErrSignalOverrideDenied = errors.New("signal override denied")
	ErrSignalNotFound       = errors.New("signal not found")
	ErrCorridorNotFound     = errors.New("corridor not found")
	// ErrCorridorCleared is returned by updates that arrive after clearing.
	ErrCorridorCleared = errors.New("corridor already cleared")
	// ErrCorridorExpired is returned by updates that arrive after expiry but
	// before the sweep has cleared the corridor.
	ErrCorridorExpired = errors.New("corridor expired")
	ErrInvalidRequest  = errors.New("invalid corridor request")
)
