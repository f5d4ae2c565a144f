package session

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// dialAgent connects to the control port the injected agent opens on the
// loopback interface. The agent needs a moment to come up inside the target,
// so dialing is repeated until the attach deadline.
func dialAgent(port int, timeout time.Duration) (io.ReadWriteCloser, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(timeout)

	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("agent did not open %s within %s: %w", addr, timeout, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
