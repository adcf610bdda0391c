package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2024-11-05"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// replyID normalizes the envelope id for correlation. Servers may echo the id
// back as a number or a string.
func (e *rpcEnvelope) replyID() (int64, bool) {
	if len(e.ID) == 0 {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(e.ID, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(e.ID, &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func writeFramed(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write mcp header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write mcp payload: %w", err)
	}
	return nil
}

func readFramed(reader *bufio.Reader) ([]byte, error) {
	contentLength, err := readContentLength(reader)
	if err != nil {
		return nil, err
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, fmt.Errorf("read mcp payload: %w", err)
	}
	return body, nil
}

func readContentLength(reader *bufio.Reader) (int, error) {
	contentLength := -1
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("read mcp header: %w", err)
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}

		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(parts[0]), "Content-Length") {
			continue
		}

		value, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return 0, fmt.Errorf("invalid content-length header %q: %w", trimmed, err)
		}
		if value <= 0 {
			return 0, fmt.Errorf("invalid content-length value: %d", value)
		}
		contentLength = value
	}

	if contentLength <= 0 {
		return 0, fmt.Errorf("missing content-length header")
	}
	return contentLength, nil
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mcpchat",
			"version": "v0.1.0",
		},
	}
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func decodeToolList(server string, result json.RawMessage) ([]ToolDescriptor, error) {
	var payload struct {
		Tools []wireTool `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, &ProtocolError{Server: server, Reason: fmt.Sprintf("unexpected tools/list result: %v", err)}
	}

	descs := make([]ToolDescriptor, 0, len(payload.Tools))
	for _, t := range payload.Tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		descs = append(descs, ToolDescriptor{
			Name:        name,
			Description: strings.TrimSpace(t.Description),
			InputSchema: t.InputSchema,
		})
	}
	return descs, nil
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func decodeCallResult(server, tool string, result json.RawMessage) (*ToolResult, error) {
	var payload struct {
		Content           []wireContent   `json:"content"`
		IsError           bool            `json:"isError"`
		StructuredContent json.RawMessage `json:"structuredContent"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, &ProtocolError{Server: server, Reason: fmt.Sprintf("unexpected tools/call result: %v", err)}
	}

	text := joinTextContent(payload.Content)
	if payload.IsError {
		if text == "" {
			text = "tool call failed"
		}
		return nil, &ToolError{Server: server, Tool: tool, Payload: text}
	}
	if text == "" && len(payload.StructuredContent) > 0 {
		text = string(payload.StructuredContent)
	}
	return &ToolResult{Content: text}, nil
}

func joinTextContent(items []wireContent) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if !strings.EqualFold(strings.TrimSpace(item.Type), "text") {
			continue
		}
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
