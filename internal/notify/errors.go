package notify

import "errors"

// Policy short-circuits. Pushers return these when delivery is deliberately
// skipped; they are logged at debug level and never retried.
var (
	ErrPermissionDenied = errors.New("notifications disabled by recipient")
	ErrNoDeliveryTarget = errors.New("no delivery target registered")
)
