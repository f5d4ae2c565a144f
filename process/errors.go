package process

import "fmt"

// RemoteOperationError is the single error kind surfaced for any fault reported
// by a remote call against the agent: invalid address, process gone, transport
// failure. Reason carries a sub-reason for diagnostics; callers branch on the
// type, not the reason.
type RemoteOperationError struct {
	Op     string // remote operation that failed, e.g. "read_process_memory"
	Reason string
	Err    error
}

func (e *RemoteOperationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("remote operation %s failed: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("remote operation %s failed: %v", e.Op, e.Err)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

// ProtocolViolationError indicates an asynchronous message from the agent whose
// shape the dispatcher does not recognize. It points at an agent/host protocol
// mismatch and is never silently ignored.
type ProtocolViolationError struct {
	Detail string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("agent protocol violation: %s", e.Detail)
}

// SessionSetupError wraps any failure during the linear
// spawn/attach/arm/resume sequence. The whole setup is aborted; there is no
// partial-success state.
type SessionSetupError struct {
	Step string
	Err  error
}

func (e *SessionSetupError) Error() string {
	return fmt.Sprintf("session setup failed at %s: %v", e.Step, e.Err)
}

func (e *SessionSetupError) Unwrap() error {
	return e.Err
}
