package worker

import "errors"

// ErrUnknownCommandType is returned as a Reply error when SendRequest
// names a CommandType absent from the Registry.
var ErrUnknownCommandType = errors.New("worker: unknown command type")

// ErrUnknownSubscription is returned as a Reply error when Subscribe
// names a SubscriptionName absent from the Registry.
var ErrUnknownSubscription = errors.New("worker: unknown subscription")
