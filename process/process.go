// Package process defines the types and interfaces for controlling one target
// process under dynamic instrumentation: identity captured at attach time,
// address-space queries, remote memory access and the OEP event emitted once a
// packed executable has finished unpacking itself in memory.
package process

import "errors"

var (
	// ErrSessionClosed is returned when an operation is attempted after the
	// controller has terminated the target and released its session.
	ErrSessionClosed = errors.New("session closed")

	// ErrCallTimeout is returned when a remote call against the agent did not
	// complete within the configured deadline.
	ErrCallTimeout = errors.New("remote call timed out")
)

// ProcessID represents a unique identifier for a process
type ProcessID int
