package session

import (
	"errors"
	"testing"

	"oepdump/agent"
	"oepdump/process"
)

type recordedOEP struct {
	base, oep process.ProcessMemoryAddress
}

func newRecordingDispatcher() (*Dispatcher, *[]recordedOEP) {
	var calls []recordedOEP
	d := NewDispatcher(func(base, oep process.ProcessMemoryAddress) {
		calls = append(calls, recordedOEP{base, oep})
	}, nil)
	return d, &calls
}

func TestDispatchOEPReached(t *testing.T) {
	d, calls := newRecordingDispatcher()

	err := d.HandleMessage(agent.Message{
		Type:    agent.MessageSend,
		Payload: &agent.EventPayload{Event: "oep_reached", Base: "0x400000", OEP: "0x401234"},
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(*calls) != 1 {
		t.Fatalf("callback invoked %d times, want 1", len(*calls))
	}
	got := (*calls)[0]
	if got.base != 4194304 || got.oep != 4199476 {
		t.Errorf("callback got (%d, %d), want (4194304, 4199476)", got.base, got.oep)
	}
}

func TestDispatchAgentErrorIsSwallowed(t *testing.T) {
	d, calls := newRecordingDispatcher()

	err := d.HandleMessage(agent.Message{
		Type:        agent.MessageError,
		Description: "ReferenceError: x is not defined",
		Stack:       "at trace (agent.js:42)",
	})
	if err != nil {
		t.Fatalf("agent error message must not propagate, got %v", err)
	}
	if len(*calls) != 0 {
		t.Error("agent error message must not invoke the OEP callback")
	}
}

func TestDispatchUnknownShapes(t *testing.T) {
	cases := []struct {
		name string
		msg  agent.Message
	}{
		{"unknown type", agent.Message{Type: "log"}},
		{"send without payload", agent.Message{Type: agent.MessageSend}},
		{"unknown event", agent.Message{Type: agent.MessageSend, Payload: &agent.EventPayload{Event: "unknown"}}},
		{"bad BASE", agent.Message{Type: agent.MessageSend, Payload: &agent.EventPayload{Event: "oep_reached", Base: "xyz", OEP: "0x1"}}},
		{"bad OEP", agent.Message{Type: agent.MessageSend, Payload: &agent.EventPayload{Event: "oep_reached", Base: "0x1", OEP: ""}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, calls := newRecordingDispatcher()

			err := d.HandleMessage(tc.msg)
			var violation *process.ProtocolViolationError
			if !errors.As(err, &violation) {
				t.Fatalf("error = %v, want *ProtocolViolationError", err)
			}
			if len(*calls) != 0 {
				t.Error("OEP callback invoked for an unrecognized message")
			}
		})
	}
}

func TestSinkDoesNotPanicOnViolation(t *testing.T) {
	d, _ := newRecordingDispatcher()
	sink := d.Sink()
	sink(agent.Message{Type: "garbage"})
}
