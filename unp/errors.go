package unp

import "errors"

// ErrClosed is returned to an in-flight SendQuery caller when the engine is
// closed while its response waiter is still outstanding, so callers are
// released promptly instead of blocking until response_forget_timeout.
var ErrClosed = errors.New("unp: engine closed")
