package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpchat/mcpchat/internal/config"
	"github.com/mcpchat/mcpchat/internal/mcp"
)

// StartError reports which server aborted session startup.
type StartError struct {
	Server string
	Err    error
}

func (e *StartError) Error() string {
	if e.Server == "" {
		return fmt.Sprintf("start session: %v", e.Err)
	}
	return fmt.Sprintf("start session: server %q: %v", e.Server, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Manager owns the connections and the tool registry of one session.
// Startup is all-or-nothing; after a successful Start the registry and the
// connection set are read-only until Stop.
type Manager struct {
	launcher        mcp.Launcher
	duplicatePolicy string
	shutdownBound   time.Duration

	conns    []mcp.Conn
	registry *mcp.Registry
	started  bool
}

// NewManager builds a session manager around a launcher.
func NewManager(launcher mcp.Launcher, duplicatePolicy string, shutdownBound time.Duration) *Manager {
	if duplicatePolicy == "" {
		duplicatePolicy = config.DuplicateLast
	}
	if shutdownBound <= 0 {
		shutdownBound = 5 * time.Second
	}
	return &Manager{
		launcher:        launcher,
		duplicatePolicy: duplicatePolicy,
		shutdownBound:   shutdownBound,
	}
}

// Start opens and handshakes every spec in list order. If any server fails
// to reach Ready, all connections opened so far are closed (including the
// failing one) and a StartError identifies the culprit. On success the tool
// registry is built from the Ready connections, in the same order.
func (m *Manager) Start(ctx context.Context, specs []config.ServerSpec) error {
	if m.started {
		return fmt.Errorf("session already started")
	}

	opened := make([]mcp.Conn, 0, len(specs))
	rollback := func() {
		for _, conn := range opened {
			conn.Close(m.shutdownBound)
		}
	}

	for _, spec := range specs {
		conn, err := m.launcher.Open(ctx, spec)
		if err != nil {
			rollback()
			return &StartError{Server: spec.Name, Err: err}
		}
		opened = append(opened, conn)

		if err := conn.Handshake(ctx); err != nil {
			rollback()
			return &StartError{Server: spec.Name, Err: err}
		}
		slog.Info("mcp server ready", "server", spec.Name)
	}

	registry, err := mcp.BuildRegistry(ctx, opened, m.duplicatePolicy)
	if err != nil {
		rollback()
		return &StartError{Server: "", Err: err}
	}

	m.conns = opened
	m.registry = registry
	m.started = true
	slog.Info("session started", "servers", len(opened), "tools", registry.Len())
	return nil
}

// Stop closes every connection, each bounded by the timeout. Close failures
// never propagate; shutdown always completes.
func (m *Manager) Stop(timeout time.Duration) {
	if timeout <= 0 {
		timeout = m.shutdownBound
	}
	for _, conn := range m.conns {
		conn.Close(timeout)
	}
	m.conns = nil
	m.registry = nil
	m.started = false
	slog.Info("session stopped")
}

// Registry returns the tool registry built at startup.
func (m *Manager) Registry() *mcp.Registry {
	return m.registry
}

// Conns returns the Ready connections in startup order.
func (m *Manager) Conns() []mcp.Conn {
	return m.conns
}

// Started reports whether Start completed successfully.
func (m *Manager) Started() bool {
	return m.started
}
