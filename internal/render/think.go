package render

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// SplitThink separates a leading reasoning block from the visible answer.
// Models such as deepseek-r1 wrap their chain of thought in <think> tags;
// when no block is present the content comes back unchanged with found=false.
func SplitThink(content string) (think, response string, found bool) {
	start := strings.Index(content, thinkOpen)
	if start < 0 {
		return "", content, false
	}
	rest := content[start+len(thinkOpen):]
	end := strings.Index(rest, thinkClose)
	if end < 0 {
		return "", content, false
	}

	think = strings.TrimSpace(rest[:end])
	response = strings.TrimSpace(content[:start] + rest[end+len(thinkClose):])
	return think, response, true
}
