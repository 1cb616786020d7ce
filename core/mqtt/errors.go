package mqtt

import "errors"

// ErrMessagingUnavailable is returned when the broker is unreachable.
var ErrMessagingUnavailable = errors.New("messaging unavailable")
