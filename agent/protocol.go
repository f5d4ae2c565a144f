// Package agent implements the host side of the channel to the in-process
// instrumentation agent: a newline-delimited JSON protocol carrying
// synchronous remote calls and asynchronous event messages, plus typed
// wrappers for the agent's fixed remote operation surface.
package agent

import "encoding/json"

// Message type discriminators used on the wire
const (
	MessageCall   = "call"
	MessageResult = "result"
	MessageSend   = "send"
	MessageError  = "error"
)

// Message is one frame of the agent protocol. Host to agent frames are always
// "call"; agent to host frames are "result" replies matched by ID, or
// asynchronous "send" and "error" messages.
type Message struct {
	Type   string        `json:"type"`
	ID     uint64        `json:"id,omitempty"`
	Method string        `json:"method,omitempty"`
	Args   []interface{} `json:"args,omitempty"`

	// result fields
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`

	// asynchronous message fields
	Payload     *EventPayload `json:"payload,omitempty"`
	Description string        `json:"description,omitempty"`
	Stack       string        `json:"stack,omitempty"`
}

// EventPayload is the payload of an asynchronous "send" message. BASE and OEP
// are textual hexadecimal addresses, following the agent script's convention.
type EventPayload struct {
	Event string `json:"event"`
	Base  string `json:"BASE,omitempty"`
	OEP   string `json:"OEP,omitempty"`
}

// Export is one entry of the agent's export enumeration, addresses still in
// their textual hexadecimal form. Parsing to integer keys happens in the
// controller, which owns the derived cache.
type Export struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Module  string `json:"module"`
}
