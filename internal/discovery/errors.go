package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by a group query attempt made before the scan
	// settled or while no group is known. Session.Groups retries it.
	ErrNotReady = errors.New("discovery not ready")

	// ErrDiscoveryExhausted is returned by Session.Groups when every attempt
	// found the session not ready
	ErrDiscoveryExhausted = errors.New("no devices could be found on the network")

	// ErrNotStarted is returned when querying a session before Start
	ErrNotStarted = errors.New("discovery session not started")

	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("discovery session already started")

	// ErrSessionClosed is returned when using a closed session
	ErrSessionClosed = errors.New("discovery session closed")
)

// ProbeError reports a failed device information fetch for one candidate
type ProbeError struct {
	Address string
	Err     error
}

// Error implements the error interface
func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying error
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// IsProbeError checks if an error is a probe failure
func IsProbeError(err error) bool {
	var probeErr *ProbeError
	return errors.As(err, &probeErr)
}
