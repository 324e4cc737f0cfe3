package reliability

import "errors"

var (
	// ErrTimeout is returned when a pending ack is not resolved within
	// ack_forget_timeout.
	ErrTimeout = errors.New("reliability: ack timeout")
	// ErrClosed is returned to any outstanding send when the manager is closed.
	ErrClosed = errors.New("reliability: manager closed")
)
