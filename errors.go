package nfcagent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotConnected is returned when a WebSocket request is issued while no
// connection is open. Requests are never queued across reconnects.
var ErrNotConnected = errors.New("not connected")

// ConnectionError indicates that the agent could not be reached, or that the
// connection dropped while a call was outstanding.
type ConnectionError struct {
	Op  string // Operation that failed, e.g. "read_card"
	Err error  // Underlying error, if any
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: connection error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: connection error", e.Op)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates that no reply arrived within the configured window.
// A reply arriving after the timeout is dropped silently.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply within %s", e.Op, e.Timeout)
}

// CardError carries a structured error message returned by the agent, e.g.
// "no card present" or a hardware fault. It covers both HTTP error bodies and
// WebSocket error frames.
type CardError struct {
	Message string
}

func (e *CardError) Error() string {
	return e.Message
}

// IsNoCard reports whether err is the agent's "no card present" condition.
// The poller treats this as a normal state, not a failure.
func IsNoCard(err error) bool {
	var ce *CardError
	if !errors.As(err, &ce) {
		return false
	}
	return strings.Contains(strings.ToLower(ce.Message), "no card")
}
