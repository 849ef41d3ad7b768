package outbox

import "errors"

var (
	// ErrQueued is returned by Publisher.Publish when delivery failed and the
	// message was stored for replay. It is not a loss.
	ErrQueued = errors.New("outbox: publish queued for retry")

	// ErrStore is returned when the backing store fails.
	ErrStore = errors.New("outbox: store failure")

	// ErrInvalidCapacity is returned when a store is created with capacity < 1.
	ErrInvalidCapacity = errors.New("outbox: capacity must be at least 1")
)
