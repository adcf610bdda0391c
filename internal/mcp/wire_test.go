package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestReplyID_NumberAndString(t *testing.T) {
	env := &rpcEnvelope{ID: json.RawMessage(`7`)}
	if id, ok := env.replyID(); !ok || id != 7 {
		t.Fatalf("numeric id: got %d %v", id, ok)
	}

	env = &rpcEnvelope{ID: json.RawMessage(`"12"`)}
	if id, ok := env.replyID(); !ok || id != 12 {
		t.Fatalf("string id: got %d %v", id, ok)
	}

	env = &rpcEnvelope{ID: json.RawMessage(`"abc"`)}
	if _, ok := env.replyID(); ok {
		t.Fatal("non-numeric string id must not correlate")
	}
}

func TestFraming_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	if err := writeFramed(&buf, payload); err != nil {
		t.Fatalf("writeFramed() error: %v", err)
	}

	got, err := readFramed(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readFramed() error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mangled: %s", got)
	}
}

func TestReadContentLength_MissingHeader(t *testing.T) {
	reader := bufio.NewReader(bytes.NewReader([]byte("X-Other: 1\r\n\r\n")))
	if _, err := readContentLength(reader); err == nil {
		t.Fatal("expected error for missing content-length")
	}
}

func TestDecodeCallResult_StructuredContentFallback(t *testing.T) {
	result := json.RawMessage(`{"content":[],"structuredContent":{"count":3}}`)
	out, err := decodeCallResult("fs", "stat", result)
	if err != nil {
		t.Fatalf("decodeCallResult() error: %v", err)
	}
	if out.Content != `{"count":3}` {
		t.Fatalf("unexpected content: %q", out.Content)
	}
}

func TestDecodeCallResult_IsErrorBecomesToolError(t *testing.T) {
	result := json.RawMessage(`{"isError":true,"content":[{"type":"text","text":"bad input"}]}`)
	_, err := decodeCallResult("fs", "stat", result)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if toolErr.Payload != "bad input" {
		t.Fatalf("unexpected payload: %q", toolErr.Payload)
	}
}

func TestDecodeToolList_SkipsUnnamedTools(t *testing.T) {
	result := json.RawMessage(`{"tools":[{"name":"echo","description":" Echo "},{"name":"  "}]}`)
	descs, err := decodeToolList("fs", result)
	if err != nil {
		t.Fatalf("decodeToolList() error: %v", err)
	}
	if len(descs) != 1 || descs[0].Name != "echo" || descs[0].Description != "Echo" {
		t.Fatalf("unexpected descriptors: %+v", descs)
	}
}
