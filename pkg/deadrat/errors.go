package deadrat

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the transport. The dispatch loop matches
// on these with errors.Is to pick its recovery strategy.
var (
	// ErrPollTimeout means the long poll elapsed without new data.
	// This is the normal idle return, not a failure.
	ErrPollTimeout = errors.New("deadrat: poll timed out")

	// ErrConnection means the request never reached the server.
	// Recoverable after a backoff.
	ErrConnection = errors.New("deadrat: connection failure")

	// ErrInvalidAPIKey means the server rejected the credentials.
	// Fatal for the dispatch loop.
	ErrInvalidAPIKey = errors.New("deadrat: invalid API key")
)

// StatusError reports a non-200 response that is neither an auth
// failure nor a transport problem.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deadrat: server returned %d: %s", e.Code, e.Body)
}
