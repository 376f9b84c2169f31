package events

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Renderer turns untrusted registerMessageRenderer output into safe HTML
// for the terminal/UI layer: Markdown extension output is rendered with
// goldmark, then every renderer's HTML output (Markdown-sourced or raw)
// is passed through bluemonday's UGC policy before it reaches the UI.
type Renderer struct {
	markdown goldmark.Markdown
	sanitize *bluemonday.Policy
}

// NewRenderer builds a Renderer with a UGC-safe bluemonday policy.
func NewRenderer() *Renderer {
	return &Renderer{
		markdown: goldmark.New(),
		sanitize: bluemonday.UGCPolicy(),
	}
}

// RenderMarkdown converts Markdown-sourced extension output to sanitized
// HTML.
func (r *Renderer) RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("events: render markdown: %w", err)
	}
	return r.sanitize.Sanitize(buf.String()), nil
}

// SanitizeHTML passes raw extension-produced HTML through the sanitizer
// without a Markdown pass.
func (r *Renderer) SanitizeHTML(html string) string {
	return r.sanitize.Sanitize(html)
}
