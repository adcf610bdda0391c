package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolDescriptor describes one tool advertised by a connection. Conn is a
// back-reference to the owning connection; the registry never owns it.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Conn        Conn
}

// Registry maps tool names to descriptors. It is built once per session,
// after every connection reached Ready, and is read-only afterwards.
type Registry struct {
	order []string
	tools map[string]ToolDescriptor
}

// DuplicateToolError reports a tool name advertised by more than one server
// when the duplicate policy forbids it.
type DuplicateToolError struct {
	Tool   string
	First  string
	Second string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q advertised by both %q and %q", e.Tool, e.First, e.Second)
}

// BuildRegistry queries ListTools on each connection in order and aggregates
// the results. With the "last" policy a tool advertised by several servers
// resolves to the connection listed last; with "error" the build fails.
func BuildRegistry(ctx context.Context, conns []Conn, policy string) (*Registry, error) {
	reg := &Registry{tools: make(map[string]ToolDescriptor)}

	for _, conn := range conns {
		descs, err := conn.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools on %q: %w", conn.Name(), err)
		}
		for _, desc := range descs {
			desc.Conn = conn
			existing, dup := reg.tools[desc.Name]
			if dup && policy == "error" {
				return nil, &DuplicateToolError{
					Tool:   desc.Name,
					First:  existing.Conn.Name(),
					Second: conn.Name(),
				}
			}
			if !dup {
				reg.order = append(reg.order, desc.Name)
			}
			reg.tools[desc.Name] = desc
		}
	}
	return reg, nil
}

// Lookup returns the descriptor for a tool name.
func (r *Registry) Lookup(name string) (ToolDescriptor, bool) {
	desc, ok := r.tools[name]
	return desc, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
