package worker

import (
	"errors"

	"github.com/driftline/wsrpc/pkg/wsrpc/correlator"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
)

// errorCodeAndMessage maps a Correlator-level error to the {code,
// message} shape spec.md §7 requires at the host/worker boundary.
func errorCodeAndMessage(err error) (code, message string) {
	var timeoutErr *correlator.TimeoutError
	var serverErr *correlator.ServerError

	switch {
	case errors.As(err, &timeoutErr):
		return "Timeout", err.Error()
	case errors.As(err, &serverErr):
		return "ServerError", serverErr.Code
	case errors.Is(err, correlator.ErrDecodeFailure):
		return "DecodeFailure", err.Error()
	case errors.Is(err, correlator.ErrConnectionClosed):
		return "ConnectionClosed", err.Error()
	case errors.Is(err, transport.ErrNotConnected):
		return "NotConnected", err.Error()
	default:
		return "Unknown", err.Error()
	}
}
