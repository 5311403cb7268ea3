package wiim

import "errors"

// Domain-specific errors for speaker communication.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNetwork is returned for transport-level failures (connection
	// refused/reset, DNS failure, TLS failure).
	ErrNetwork = errors.New("wiim: network error")

	// ErrTimeout is returned when a request exceeds the configured timeout.
	ErrTimeout = errors.New("wiim: request timed out")

	// ErrHTTPStatus is returned when the device answers with a non-2xx
	// HTTP status. Kept separate from ErrNetwork so callers can apply a
	// different backoff policy.
	ErrHTTPStatus = errors.New("wiim: unexpected http status")

	// ErrParse is returned when the device responds with malformed JSON
	// or a required field is missing.
	ErrParse = errors.New("wiim: malformed device response")

	// ErrCommandRejected is returned when the device accepted a command
	// syntactically but reported a failure instead of "OK".
	ErrCommandRejected = errors.New("wiim: command rejected by device")
)
