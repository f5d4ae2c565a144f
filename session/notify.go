package session

import (
	"errors"
	"sync"
	"time"

	"oepdump/process"
)

// ErrOEPTimeout is returned by OEPNotification.Wait when the target did not
// reach its original entry point within the deadline.
var ErrOEPTimeout = errors.New("timed out waiting for OEP")

// OEPNotification is the one-shot handoff between the event domain and the
// controlling domain. The dispatcher calls Notify from the message-delivery
// goroutine; the controlling caller blocks on Wait and performs the dump from
// its own call stack.
type OEPNotification struct {
	once sync.Once
	ch   chan process.OEPEvent
}

// NewOEPNotification creates an empty, unsignaled notification
func NewOEPNotification() *OEPNotification {
	return &OEPNotification{ch: make(chan process.OEPEvent, 1)}
}

// Notify records the OEP event. Only the first call wins; the event is
// produced exactly once per unpacking run, so later calls are dropped.
func (n *OEPNotification) Notify(base, oep process.ProcessMemoryAddress) {
	n.once.Do(func() {
		n.ch <- process.OEPEvent{Base: base, OEP: oep}
	})
}

// Wait blocks until the OEP event arrives or the timeout elapses. A zero
// timeout blocks indefinitely.
func (n *OEPNotification) Wait(timeout time.Duration) (process.OEPEvent, error) {
	if timeout <= 0 {
		return <-n.ch, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event := <-n.ch:
		return event, nil
	case <-timer.C:
		return process.OEPEvent{}, ErrOEPTimeout
	}
}
