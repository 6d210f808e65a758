package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when a turn is started before a session and
	// its remote conversation exist.
	ErrNoSession = errors.New("relay: no active session")

	// ErrNoPendingAuth is returned when a resume is attempted without a prior
	// suspended turn.
	ErrNoPendingAuth = errors.New("relay: no pending credential request")

	// ErrDoubleAuthRequired is returned when the agent asks for credentials
	// again while a resume is already in flight. The agent is not expected to
	// request the same credential twice in one resume, so this is treated as
	// a protocol failure rather than a second suspension.
	ErrDoubleAuthRequired = errors.New("relay: agent requested credentials again during resume")
)

// TransportError reports a failed exchange with the agent endpoint: a
// connection-level failure, a timeout, or a non-2xx response status.
type TransportError struct {
	Status int // non-zero when the endpoint answered with a non-2xx status
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay: agent endpoint returned status %d", e.Status)
	}
	return fmt.Sprintf("relay: agent endpoint unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
