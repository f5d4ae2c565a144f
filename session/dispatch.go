package session

import (
	"fmt"

	"oepdump/agent"
	"oepdump/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// OEPCallback receives the decoded OEP event. It runs on the agent channel's
// reader goroutine and must only record or queue the pair; any dumping happens
// later, outside the dispatcher's call stack, because remote calls are
// forbidden from the message-delivery context.
type OEPCallback func(base, oep process.ProcessMemoryAddress)

// Dispatcher decodes asynchronous agent messages. It recognizes exactly one
// event kind, oep_reached; agent-side script errors are logged and swallowed;
// every other shape is a protocol violation.
type Dispatcher struct {
	notifyOEP OEPCallback
	log       *logger.Logger
}

// NewDispatcher creates a Dispatcher bound to the given OEP callback
func NewDispatcher(notifyOEP OEPCallback, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "dispatch"))
	}
	return &Dispatcher{notifyOEP: notifyOEP, log: log}
}

// HandleMessage decodes one agent message. The returned error is always a
// *process.ProtocolViolationError; recognized messages, including agent error
// reports, return nil.
func (d *Dispatcher) HandleMessage(m agent.Message) error {
	switch m.Type {
	case agent.MessageError:
		// Instrumentation-side script errors are diagnostics, not fatal:
		// surfaced for visibility, never propagated.
		d.log.Warn("Agent script error: ", m.Description)
		if m.Stack != "" {
			d.log.Warn("Agent stack: ", m.Stack)
		}
		return nil

	case agent.MessageSend:
		if m.Payload == nil {
			return &process.ProtocolViolationError{Detail: "send message without payload"}
		}
		if m.Payload.Event != "oep_reached" {
			return &process.ProtocolViolationError{Detail: fmt.Sprintf("unknown event %q", m.Payload.Event)}
		}
		base, err := process.ParseHexAddress(m.Payload.Base)
		if err != nil {
			return &process.ProtocolViolationError{Detail: fmt.Sprintf("oep_reached BASE: %v", err)}
		}
		oep, err := process.ParseHexAddress(m.Payload.OEP)
		if err != nil {
			return &process.ProtocolViolationError{Detail: fmt.Sprintf("oep_reached OEP: %v", err)}
		}
		d.notifyOEP(base, oep)
		return nil
	}

	return &process.ProtocolViolationError{Detail: fmt.Sprintf("unknown message type %q", m.Type)}
}

// Sink adapts the dispatcher to the agent client's message sink. Protocol
// violations cannot propagate out of the delivery goroutine, so they are
// logged at full volume instead of silently dropped.
func (d *Dispatcher) Sink() func(agent.Message) {
	return func(m agent.Message) {
		if err := d.HandleMessage(m); err != nil {
			d.log.Warn("Dispatcher: ", err)
		}
	}
}
