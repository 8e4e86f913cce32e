package facade

import (
	"errors"
	"fmt"
)

// ErrWorkerLost is delivered to every pending Future, and every active
// subscription transitions to Closed, when the worker's event channel
// closes without a preceding Dispose call — spec.md §4.5's "worker
// terminates abnormally" case.
var ErrWorkerLost = errors.New("facade: worker lost")

// ErrUnknownSubscription is returned by Unsubscribe when internalID was
// never registered (or was already unsubscribed).
var ErrUnknownSubscription = errors.New("facade: unknown subscription")

// ErrReplyTypeMismatch is returned by Request[T] when a reply decodes
// successfully at the worker layer but does not hold a T — a caller
// programming error (wrong type parameter for the command), not a
// wire-level failure.
var ErrReplyTypeMismatch = errors.New("facade: reply value does not match requested type")

// ReplyError wraps the {code, message} pair the worker boundary
// reports for a failed Reply event, mirroring spec.md §7's error kinds
// (NotConnected, Timeout, DecodeFailure, ServerError, ConnectionClosed).
type ReplyError struct {
	Code    string
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("facade: %s: %s", e.Code, e.Message)
}
