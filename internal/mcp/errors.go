package mcp

import (
	"errors"
	"fmt"
)

// ErrConnClosed is reported to any request still awaiting a reply when its
// connection is closed underneath it.
var ErrConnClosed = errors.New("mcp: connection closed")

// LaunchError means the server process could not be started.
type LaunchError struct {
	Server string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch mcp server %q: %v", e.Server, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// HandshakeError means the initialize exchange failed or timed out. The
// connection is left in StateFailed; there is no retry.
type HandshakeError struct {
	Server string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with mcp server %q: %v", e.Server, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ProtocolError means a reply could not be decoded or did not correlate with
// a pending request id.
type ProtocolError struct {
	Server string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp server %q protocol error: %s", e.Server, e.Reason)
}

// ToolError carries a provider-reported tool execution failure payload.
type ToolError struct {
	Server  string
	Tool    string
	Payload string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %q on server %q failed: %s", e.Tool, e.Server, e.Payload)
}

// TimeoutError means a request did not receive its reply within the bound.
type TimeoutError struct {
	Server string
	Op     string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp server %q: %s timed out", e.Server, e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
