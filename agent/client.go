package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"oepdump/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// RPCError is a fault reported by the agent for a remote call, as opposed to a
// transport failure of the channel itself.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("agent rpc %s: %s", e.Method, e.Message)
}

type callResult struct {
	value  json.RawMessage
	errMsg string
	err    error
}

// Client is the host endpoint of the agent channel. It serializes outgoing
// calls, matches result frames to pending calls by id on a dedicated reader
// goroutine, and forwards asynchronous messages to the registered sink.
//
// The sink runs on the reader goroutine and must not call back into Call: a
// reentrant call would wait on a reply that the blocked reader can never
// deliver.
type Client struct {
	conn    io.ReadWriteCloser
	log     *logger.Logger
	timeout time.Duration

	writeMu sync.Mutex
	enc     *json.Encoder

	mu       sync.Mutex
	pending  map[uint64]chan callResult
	nextID   uint64
	sink     func(Message)
	closed   bool
	closeErr error
}

// Options configures a Client
type Options struct {
	// CallTimeout bounds each synchronous call. Zero means no deadline; a
	// fully disconnected target then blocks until the connection dies.
	CallTimeout time.Duration

	Log *logger.Logger
}

// NewClient wraps an established agent connection and starts the reader
// goroutine. The caller should register a message sink before the agent is
// activated, or early asynchronous messages are dropped with a warning.
func NewClient(conn io.ReadWriteCloser, opts Options) *Client {
	log := opts.Log
	if log == nil {
		log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "agent-rpc"))
	}

	c := &Client{
		conn:    conn,
		log:     log,
		timeout: opts.CallTimeout,
		enc:     json.NewEncoder(conn),
		pending: make(map[uint64]chan callResult),
	}

	go c.readLoop()

	return c
}

// SetMessageSink registers the handler for asynchronous agent messages. The
// handler executes on the reader goroutine.
func (c *Client) SetMessageSink(sink func(Message)) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// Call performs one synchronous remote call and decodes the reply value into
// out (which may be nil for void operations). A fault reported by the agent is
// returned as *RPCError; transport failures and timeouts are returned as-is
// for the caller to classify.
func (c *Client) Call(method string, args []interface{}, out interface{}) error {
	ch := make(chan callResult, 1)

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.enc.Encode(Message{Type: MessageCall, ID: id, Method: method, Args: args})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("write to agent channel failed: %w", err)
	}

	var deadline <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if res.errMsg != "" {
			return &RPCError{Method: method, Message: res.errMsg}
		}
		if out != nil && len(res.value) > 0 {
			if err := json.Unmarshal(res.value, out); err != nil {
				return fmt.Errorf("decoding %s reply: %w", method, err)
			}
		}
		return nil
	case <-deadline:
		c.forget(id)
		return fmt.Errorf("%s: %w", method, process.ErrCallTimeout)
	}
}

// Close tears down the connection and fails every pending call
func (c *Client) Close() error {
	c.teardown(process.ErrSessionClosed)
	return nil
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) teardown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = cause
	pending := c.pending
	c.pending = make(map[uint64]chan callResult)
	c.mu.Unlock()

	c.conn.Close()
	for _, ch := range pending {
		ch <- callResult{err: cause}
	}
}

func (c *Client) readLoop() {
	dec := json.NewDecoder(c.conn)
	for {
		var m Message
		if err := dec.Decode(&m); err != nil {
			c.teardown(fmt.Errorf("agent channel closed: %w", err))
			return
		}

		if m.Type == MessageResult {
			c.mu.Lock()
			ch, ok := c.pending[m.ID]
			delete(c.pending, m.ID)
			c.mu.Unlock()

			if !ok {
				c.log.Warn("Dropping reply for unknown call id ", m.ID)
				continue
			}
			ch <- callResult{value: m.Value, errMsg: m.Error}
			continue
		}

		// Everything that is not a call reply goes to the sink; the
		// dispatcher decides whether the shape is recognized.
		c.mu.Lock()
		sink := c.sink
		c.mu.Unlock()

		if sink == nil {
			c.log.Warn("Dropping agent message, no sink registered: ", m.Type)
			continue
		}
		sink(m)
	}
}
