package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeConn struct {
	name    string
	tools   []ToolDescriptor
	listErr error

	invoked []string
	result  *ToolResult
}

func (f *fakeConn) Name() string                        { return f.name }
func (f *fakeConn) State() State                        { return StateReady }
func (f *fakeConn) Handshake(ctx context.Context) error { return nil }
func (f *fakeConn) Close(timeout time.Duration)         {}

func (f *fakeConn) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tools, nil
}

func (f *fakeConn) Invoke(ctx context.Context, tool string, args json.RawMessage) (*ToolResult, error) {
	f.invoked = append(f.invoked, tool)
	if f.result != nil {
		return f.result, nil
	}
	return &ToolResult{Content: fmt.Sprintf("%s:%s", f.name, tool)}, nil
}

func TestBuildRegistry_AggregatesInOrder(t *testing.T) {
	fs := &fakeConn{name: "fs", tools: []ToolDescriptor{
		{Name: "read_file", Description: "Read a file"},
		{Name: "write_file", Description: "Write a file"},
	}}
	search := &fakeConn{name: "search", tools: []ToolDescriptor{
		{Name: "web_search", Description: "Search the web"},
	}}

	reg, err := BuildRegistry(context.Background(), []Conn{fs, search}, "last")
	if err != nil {
		t.Fatalf("BuildRegistry() error: %v", err)
	}

	if reg.Len() != 3 {
		t.Fatalf("expected 3 tools, got %d", reg.Len())
	}
	want := []string{"read_file", "write_file", "web_search"}
	got := reg.Names()
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("expected names %v, got %v", want, got)
		}
	}

	desc, ok := reg.Lookup("read_file")
	if !ok || desc.Conn.Name() != "fs" {
		t.Fatalf("read_file should resolve to fs, got %+v", desc)
	}
}

func TestBuildRegistry_DuplicateLastWins(t *testing.T) {
	first := &fakeConn{name: "first", tools: []ToolDescriptor{
		{Name: "search", Description: "from first"},
		{Name: "only_first"},
	}}
	second := &fakeConn{name: "second", tools: []ToolDescriptor{
		{Name: "search", Description: "from second"},
	}}

	reg, err := BuildRegistry(context.Background(), []Conn{first, second}, "last")
	if err != nil {
		t.Fatalf("BuildRegistry() error: %v", err)
	}

	desc, ok := reg.Lookup("search")
	if !ok {
		t.Fatal("search not found")
	}
	if desc.Conn.Name() != "second" {
		t.Fatalf("expected search owned by second, got %q", desc.Conn.Name())
	}

	// Overwriting keeps the original position.
	names := reg.Names()
	if len(names) != 2 || names[0] != "search" || names[1] != "only_first" {
		t.Fatalf("unexpected name order: %v", names)
	}
}

func TestBuildRegistry_DuplicateErrorPolicy(t *testing.T) {
	first := &fakeConn{name: "first", tools: []ToolDescriptor{{Name: "search"}}}
	second := &fakeConn{name: "second", tools: []ToolDescriptor{{Name: "search"}}}

	_, err := BuildRegistry(context.Background(), []Conn{first, second}, "error")
	var dupErr *DuplicateToolError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateToolError, got %v", err)
	}
	if dupErr.Tool != "search" || dupErr.First != "first" || dupErr.Second != "second" {
		t.Fatalf("unexpected DuplicateToolError fields: %+v", dupErr)
	}
}

func TestBuildRegistry_ListFailurePropagates(t *testing.T) {
	broken := &fakeConn{name: "broken", listErr: errors.New("boom")}

	_, err := BuildRegistry(context.Background(), []Conn{broken}, "last")
	if err == nil || !errors.Is(err, broken.listErr) {
		t.Fatalf("expected list error to propagate, got %v", err)
	}
}

func TestToolInfos_CarriesSchemaAndServer(t *testing.T) {
	conn := &fakeConn{name: "fs", tools: []ToolDescriptor{
		{
			Name:        "read_file",
			Description: "Read a file",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
		{
			Name:        "no_schema",
			Description: "Parameterless",
		},
	}}

	reg, err := BuildRegistry(context.Background(), []Conn{conn}, "last")
	if err != nil {
		t.Fatalf("BuildRegistry() error: %v", err)
	}

	infos := reg.ToolInfos()
	if len(infos) != 2 {
		t.Fatalf("expected 2 tool infos, got %d", len(infos))
	}
	if infos[0].Name != "read_file" || infos[0].Desc != "Read a file" {
		t.Fatalf("unexpected tool info: %+v", infos[0])
	}
	if infos[0].ParamsOneOf == nil {
		t.Fatal("expected params for read_file")
	}
	if infos[0].Extra["server"] != "fs" {
		t.Fatalf("expected server extra, got %v", infos[0].Extra)
	}
}
