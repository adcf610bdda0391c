package render

import (
	"github.com/charmbracelet/glamour"
)

// Renderer turns markdown into styled terminal output.
type Renderer interface {
	Render(string) (string, error)
}

// NewMarkdown builds a glamour renderer sized to the given wrap width.
func NewMarkdown(width int) (Renderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
}

// Parts splits an assistant response into its reasoning block and main
// answer and renders each through r. Rendering failures fall back to the
// raw text so a markdown glitch never swallows a response.
func Parts(content string, r Renderer) (think, main string, hasThink bool) {
	rawThink, rawMain, found := SplitThink(content)

	main = renderOr(rawMain, r)
	if found && rawThink != "" {
		think = renderOr(rawThink, r)
	}
	return think, main, found
}

func renderOr(s string, r Renderer) string {
	out, err := r.Render(s)
	if err != nil {
		return s
	}
	return out
}
