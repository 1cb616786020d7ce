package incident

import (
	"errors"
	"fmt"

	"github.com/kilianp07/resqroute/core/model"
)

var (
	// ErrInvalidTransition is returned for out-of-order or post-terminal transitions.
	ErrInvalidTransition = errors.New("invalid incident transition")
	// ErrStaleTimestamp is returned when a timeline entry would not advance time.
	ErrStaleTimestamp = errors.New("timeline timestamp not after last entry")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	IncidentID string
	From       model.Status
	To         model.Status
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("incident %s: %s -> %s: %v", e.IncidentID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
