package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mcpchat/mcpchat/internal/config"
)

func helperSpec(name string, mode string) config.ServerSpec {
	args := []string{"-test.run=TestMCPHelperProcess", "--", "mcp-stdio-helper"}
	if mode != "" {
		args = append(args, mode)
	}
	return config.ServerSpec{
		Name:    name,
		Command: os.Args[0],
		Args:    args,
		Env: map[string]string{
			"GO_WANT_HELPER_PROCESS": "1",
		},
	}
}

func openHelper(t *testing.T, mode string, timeouts Timeouts) Conn {
	t.Helper()

	launcher := NewStdioLauncher(timeouts)
	conn, err := launcher.Open(context.Background(), helperSpec("helper", mode))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { conn.Close(2 * time.Second) })
	return conn
}

func TestStdioConn_HandshakeListAndInvoke(t *testing.T) {
	conn := openHelper(t, "", Timeouts{})

	if got := conn.State(); got != StateInitializing {
		t.Fatalf("expected state %q after open, got %q", StateInitializing, got)
	}
	if err := conn.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake() error: %v", err)
	}
	if got := conn.State(); got != StateReady {
		t.Fatalf("expected state %q after handshake, got %q", StateReady, got)
	}

	tools, err := conn.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "echo" {
		t.Fatalf("unexpected tool descriptors: %+v", tools)
	}

	result, err := conn.Invoke(context.Background(), "echo", json.RawMessage(`{"message":"hello"}`))
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if result.Content != "echo: hello" {
		t.Fatalf("unexpected tool result: %q", result.Content)
	}
}

func TestStdioConn_InvokeBeforeHandshakeFails(t *testing.T) {
	conn := openHelper(t, "", Timeouts{})

	if _, err := conn.Invoke(context.Background(), "echo", nil); err == nil {
		t.Fatal("expected invoke before handshake to fail")
	}
	if _, err := conn.ListTools(context.Background()); err == nil {
		t.Fatal("expected list tools before handshake to fail")
	}
}

func TestStdioConn_SecondHandshakeRejected(t *testing.T) {
	conn := openHelper(t, "", Timeouts{})

	if err := conn.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake() error: %v", err)
	}
	err := conn.Handshake(context.Background())
	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("expected HandshakeError for repeated handshake, got %v", err)
	}
}

func TestStdioConn_ToolErrorResult(t *testing.T) {
	conn := openHelper(t, "", Timeouts{})
	if err := conn.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake() error: %v", err)
	}

	_, err := conn.Invoke(context.Background(), "fail", json.RawMessage(`{}`))
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Tool != "fail" || toolErr.Server != "helper" {
		t.Fatalf("unexpected ToolError fields: %+v", toolErr)
	}
}

func TestStdioConn_WrongReplyIDIsProtocolError(t *testing.T) {
	conn := openHelper(t, "wrong-id", Timeouts{Handshake: 2 * time.Second})

	err := conn.Handshake(context.Background())
	if err == nil {
		t.Fatal("expected handshake against misbehaving server to fail")
	}
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if got := conn.State(); got != StateFailed {
		t.Fatalf("expected state %q, got %q", StateFailed, got)
	}
}

func TestStdioConn_HandshakeTimeout(t *testing.T) {
	conn := openHelper(t, "silent", Timeouts{Handshake: 200 * time.Millisecond})

	err := conn.Handshake(context.Background())
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Op != "initialize" {
		t.Fatalf("unexpected timed-out op: %q", timeoutErr.Op)
	}
}

func TestStdioConn_CloseFailsPendingAndIsIdempotent(t *testing.T) {
	conn := openHelper(t, "", Timeouts{})
	if err := conn.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake() error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		// The block tool never replies; only Close can release this call.
		_, err := conn.Invoke(context.Background(), "block", nil)
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	conn.Close(time.Second)
	conn.Close(time.Second)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnClosed) {
			t.Fatalf("expected ErrConnClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending invoke was not released by Close")
	}

	if got := conn.State(); got != StateClosed {
		t.Fatalf("expected state %q, got %q", StateClosed, got)
	}
	if _, err := conn.Invoke(context.Background(), "echo", nil); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed after close, got %v", err)
	}
}

func TestStdioConn_LaunchFailure(t *testing.T) {
	launcher := NewStdioLauncher(Timeouts{})
	_, err := launcher.Open(context.Background(), config.ServerSpec{
		Name:    "missing",
		Command: "/nonexistent/mcp-server-binary",
	})
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if launchErr.Server != "missing" {
		t.Fatalf("unexpected server in LaunchError: %q", launchErr.Server)
	}
}

func TestMCPHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	isHelper := false
	for _, arg := range os.Args {
		if arg == "mcp-stdio-helper" {
			isHelper = true
			break
		}
	}
	if !isHelper {
		return
	}

	mode := ""
	for i, arg := range os.Args {
		if arg == "mcp-stdio-helper" && i+1 < len(os.Args) {
			mode = os.Args[i+1]
		}
	}

	runMCPHelperProcess(mode)
	os.Exit(0)
}

func runMCPHelperProcess(mode string) {
	reader := bufio.NewReader(os.Stdin)
	writer := os.Stdout

	for {
		body, err := readFramed(reader)
		if err != nil {
			return
		}

		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			return
		}

		method := strings.TrimSpace(stringValue(req["method"]))
		id, hasID := req["id"]
		if !hasID {
			continue
		}
		if mode == "silent" {
			continue
		}
		if mode == "wrong-id" {
			if n, ok := id.(float64); ok {
				id = n + 1000
			}
		}

		var result any
		switch method {
		case "initialize":
			result = map[string]any{
				"capabilities": map[string]any{},
				"serverInfo": map[string]any{
					"name":    "test-stdio",
					"version": "1.0.0",
				},
			}
		case "tools/list":
			result = map[string]any{
				"tools": []map[string]any{
					{
						"name":        "echo",
						"description": "Echo tool",
					},
					{
						"name":        "fail",
						"description": "Always fails",
					},
				},
			}
		case "tools/call":
			name := ""
			message := ""
			if params, ok := req["params"].(map[string]any); ok {
				name = strings.TrimSpace(stringValue(params["name"]))
				if args, ok := params["arguments"].(map[string]any); ok {
					message = strings.TrimSpace(stringValue(args["message"]))
				}
			}
			switch name {
			case "fail":
				result = map[string]any{
					"isError": true,
					"content": []map[string]any{
						{"type": "text", "text": "tool blew up"},
					},
				}
			case "block":
				continue
			default:
				result = map[string]any{
					"content": []map[string]any{
						{"type": "text", "text": "echo: " + message},
					},
				}
			}
		default:
			result = map[string]any{}
		}

		resp, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      id,
			"result":  result,
		})
		_, _ = io.WriteString(writer, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(resp)))
		_, _ = writer.Write(resp)
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
