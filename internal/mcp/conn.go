package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpchat/mcpchat/internal/config"
)

// State is the connection lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
	StateClosed        State = "closed"
)

// ToolResult is the normalized payload of one tool invocation.
type ToolResult struct {
	Content string
}

// Conn is one tool-provider connection. Requests are correlated by id; the
// baseline callers issue at most one outstanding request per connection.
type Conn interface {
	Name() string
	State() State
	Handshake(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	Invoke(ctx context.Context, tool string, args json.RawMessage) (*ToolResult, error)
	Close(timeout time.Duration)
}

// Launcher opens a connection from a server spec.
type Launcher interface {
	Open(ctx context.Context, spec config.ServerSpec) (Conn, error)
}

// Timeouts bounds the protocol phases. Zero fields fall back to defaults so
// an unresponsive server can never hang the session indefinitely.
type Timeouts struct {
	Handshake time.Duration
	Invoke    time.Duration
	Shutdown  time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Handshake <= 0 {
		t.Handshake = 10 * time.Second
	}
	if t.Invoke <= 0 {
		t.Invoke = 60 * time.Second
	}
	if t.Shutdown <= 0 {
		t.Shutdown = 5 * time.Second
	}
	return t
}

// TimeoutsFromConfig converts configured seconds into Timeouts.
func TimeoutsFromConfig(cfg config.TimeoutsConfig) Timeouts {
	return Timeouts{
		Handshake: time.Duration(cfg.Handshake) * time.Second,
		Invoke:    time.Duration(cfg.Invoke) * time.Second,
		Shutdown:  time.Duration(cfg.Shutdown) * time.Second,
	}.withDefaults()
}

// StdioLauncher launches server processes and talks to them over stdin/stdout
// with Content-Length framed JSON-RPC.
type StdioLauncher struct {
	timeouts Timeouts
}

func NewStdioLauncher(timeouts Timeouts) *StdioLauncher {
	return &StdioLauncher{timeouts: timeouts.withDefaults()}
}

func (l *StdioLauncher) Open(ctx context.Context, spec config.ServerSpec) (Conn, error) {
	command := strings.TrimSpace(spec.Command)
	if command == "" {
		return nil, &LaunchError{Server: spec.Name, Err: errors.New("command is required")}
	}

	cmd := exec.Command(command, spec.Args...)
	cmd.Env = mergeEnv(spec.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LaunchError{Server: spec.Name, Err: fmt.Errorf("create stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Server: spec.Name, Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Server: spec.Name, Err: fmt.Errorf("create stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Server: spec.Name, Err: err}
	}

	conn := &stdioConn{
		name:     spec.Name,
		cmd:      cmd,
		stdin:    stdin,
		stderr:   newTailBuffer(4096),
		timeouts: l.timeouts,
		state:    StateInitializing,
		pending:  make(map[int64]chan pendingReply),
		closed:   make(chan struct{}),
		exitDone: make(chan struct{}),
	}

	// Drain stderr to avoid blocking and retain a bounded tail for diagnostics.
	go io.Copy(conn.stderr, stderr)
	go func() {
		conn.markExited(cmd.Wait())
	}()
	go conn.pump(bufio.NewReader(stdout))

	return conn, nil
}

func mergeEnv(extra map[string]string) []string {
	base := os.Environ()
	if len(extra) == 0 {
		return base
	}

	merged := make(map[string]string, len(base)+len(extra))
	for _, item := range base {
		parts := strings.SplitN(item, "=", 2)
		value := ""
		if len(parts) == 2 {
			value = parts[1]
		}
		merged[parts[0]] = value
	}
	for key, value := range extra {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		merged[trimmedKey] = value
	}

	out := make([]string, 0, len(merged))
	for key, value := range merged {
		out = append(out, key+"="+value)
	}
	return out
}

type pendingReply struct {
	env *rpcEnvelope
	err error
}

type stdioConn struct {
	name     string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stderr   *tailBuffer
	timeouts Timeouts

	nextID atomic.Int64

	writeMu sync.Mutex

	mu            sync.Mutex
	state         State
	pending       map[int64]chan pendingReply
	serverName    string
	serverVersion string

	closed    chan struct{}
	closeOnce sync.Once

	exitMu   sync.RWMutex
	exited   bool
	exitErr  error
	exitDone chan struct{}
}

func (c *stdioConn) Name() string { return c.name }

func (c *stdioConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stdioConn) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = s
}

// ServerInfo returns the provider's advertised name and version, available
// once the handshake succeeded.
func (c *stdioConn) ServerInfo() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverName, c.serverVersion
}

// Handshake performs the initialize exchange. Exactly one attempt is made;
// any failure leaves the connection in StateFailed.
func (c *stdioConn) Handshake(ctx context.Context) error {
	if state := c.State(); state != StateInitializing {
		return &HandshakeError{Server: c.name, Err: fmt.Errorf("handshake not valid in state %q", state)}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.Handshake)
		defer cancel()
	}

	result, rpcErr, err := c.call(ctx, "initialize", initializeParams())
	if err == nil && rpcErr != nil {
		err = errors.New(rpcErr.Message)
	}
	if err != nil {
		c.setState(StateFailed)
		return &HandshakeError{Server: c.name, Err: c.decorate(err)}
	}

	var initResult struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.setState(StateFailed)
		return &HandshakeError{Server: c.name, Err: fmt.Errorf("malformed initialize result: %w", err)}
	}

	if err := c.notify("notifications/initialized", map[string]any{}); err != nil {
		c.setState(StateFailed)
		return &HandshakeError{Server: c.name, Err: c.decorate(err)}
	}

	c.mu.Lock()
	c.serverName = initResult.ServerInfo.Name
	c.serverVersion = initResult.ServerInfo.Version
	if c.state != StateClosed {
		c.state = StateReady
	}
	c.mu.Unlock()
	return nil
}

func (c *stdioConn) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if state := c.State(); state != StateReady {
		if state == StateClosed {
			return nil, fmt.Errorf("mcp server %q: %w", c.name, ErrConnClosed)
		}
		return nil, fmt.Errorf("mcp server %q: list tools not valid in state %q", c.name, state)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.Invoke)
		defer cancel()
	}

	result, rpcErr, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, fmt.Errorf("mcp server %q: tools/list failed: %s", c.name, rpcErr.Message)
	}
	return decodeToolList(c.name, result)
}

func (c *stdioConn) Invoke(ctx context.Context, tool string, args json.RawMessage) (*ToolResult, error) {
	if state := c.State(); state != StateReady {
		if state == StateClosed {
			return nil, fmt.Errorf("mcp server %q: %w", c.name, ErrConnClosed)
		}
		return nil, fmt.Errorf("mcp server %q: invoke not valid in state %q", c.name, state)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.Invoke)
		defer cancel()
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, rpcErr, err := c.call(ctx, "tools/call", map[string]any{
		"name":      strings.TrimSpace(tool),
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, &ToolError{Server: c.name, Tool: tool, Payload: rpcErr.Message}
	}
	return decodeCallResult(c.name, tool, result)
}

// Close shuts the connection down: stdin is closed to signal the server,
// then the process is killed if it has not exited within the timeout.
// Pending requests fail with ErrConnClosed. Close is idempotent and never
// reports an error.
func (c *stdioConn) Close(timeout time.Duration) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		close(c.closed)
		c.failPending(fmt.Errorf("mcp server %q: %w", c.name, ErrConnClosed))

		_ = c.stdin.Close()

		if timeout <= 0 {
			timeout = c.timeouts.Shutdown
		}
		select {
		case <-c.exitDone:
		case <-time.After(timeout):
			if c.cmd.Process != nil {
				_ = c.cmd.Process.Kill()
			}
			c.waitForExit(500 * time.Millisecond)
		}
	})
}

// pump reads framed replies and routes them to pending requests by id.
// Notifications carry no id and are dropped. A reply whose id correlates with
// nothing is a protocol violation and fails the in-flight requests.
func (c *stdioConn) pump(reader *bufio.Reader) {
	for {
		payload, err := readFramed(reader)
		if err != nil {
			c.failPending(c.decorate(err))
			return
		}

		var env rpcEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.failPending(&ProtocolError{Server: c.name, Reason: fmt.Sprintf("decode reply: %v", err)})
			continue
		}
		if len(env.ID) == 0 {
			continue
		}

		id, ok := env.replyID()
		if !ok {
			c.failPending(&ProtocolError{Server: c.name, Reason: fmt.Sprintf("unparseable reply id %s", env.ID)})
			continue
		}

		c.mu.Lock()
		ch, exists := c.pending[id]
		if exists {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if exists {
			ch <- pendingReply{env: &env}
			continue
		}
		c.failPending(&ProtocolError{Server: c.name, Reason: fmt.Sprintf("reply id %d matches no pending request", id)})
	}
}

func (c *stdioConn) call(ctx context.Context, method string, params any) (json.RawMessage, *rpcError, error) {
	if c.State() == StateClosed {
		return nil, nil, fmt.Errorf("mcp server %q: %w", c.name, ErrConnClosed)
	}
	if err := c.processExitError(); err != nil {
		return nil, nil, c.decorate(err)
	}

	id := c.nextID.Add(1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      &id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode json-rpc request: %w", err)
	}

	ch := make(chan pendingReply, 1)
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("mcp server %q: %w", c.name, ErrConnClosed)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = writeFramed(c.stdin, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.unregister(id)
		return nil, nil, c.decorate(err)
	}

	select {
	case <-ctx.Done():
		c.unregister(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, &TimeoutError{Server: c.name, Op: method, Err: ctx.Err()}
		}
		return nil, nil, ctx.Err()
	case <-c.closed:
		c.unregister(id)
		return nil, nil, fmt.Errorf("mcp server %q: %w", c.name, ErrConnClosed)
	case reply := <-ch:
		if reply.err != nil {
			return nil, nil, reply.err
		}
		return reply.env.Result, reply.env.Error, nil
	}
}

func (c *stdioConn) notify(method string, params any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode json-rpc notification: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFramed(c.stdin, payload)
}

func (c *stdioConn) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *stdioConn) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- pendingReply{err: err}
	}
}

func (c *stdioConn) markExited(err error) {
	c.exitMu.Lock()
	defer c.exitMu.Unlock()

	if c.exited {
		return
	}
	c.exited = true
	c.exitErr = err
	close(c.exitDone)
}

func (c *stdioConn) waitForExit(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	select {
	case <-c.exitDone:
	case <-time.After(timeout):
	}
}

func (c *stdioConn) processExitError() error {
	c.exitMu.RLock()
	defer c.exitMu.RUnlock()

	if !c.exited {
		return nil
	}
	if c.exitErr == nil {
		return fmt.Errorf("mcp server %q exited", c.name)
	}
	return fmt.Errorf("mcp server %q exited: %w", c.name, c.exitErr)
}

func (c *stdioConn) decorate(err error) error {
	if err == nil {
		return nil
	}

	stderrTail := strings.TrimSpace(c.stderr.String())
	if processErr := c.processExitError(); processErr != nil {
		if stderrTail != "" {
			return fmt.Errorf("%w; process=%v; stderr=%s", err, processErr, stderrTail)
		}
		return fmt.Errorf("%w; process=%v", err, processErr)
	}

	if stderrTail != "" {
		return fmt.Errorf("%w; stderr=%s", err, stderrTail)
	}
	return err
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 1024
	}
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = append([]byte(nil), b.buf[len(b.buf)-b.max:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
