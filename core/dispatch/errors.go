package dispatch

import "errors"

var (
	// ErrNoResourceAvailable means ranking produced no candidate that could be
	// claimed. The incident is kept and marked failed.
	ErrNoResourceAvailable = errors.New("dispatch: no resource available")
	ErrIncidentNotFound    = errors.New("dispatch: incident not found")
	ErrInvalidRequest      = errors.New("dispatch: invalid request")
	// ErrNotRateable is returned when rating an incident that is not completed
	// or was already rated.
	ErrNotRateable = errors.New("dispatch: incident cannot be rated")
)
