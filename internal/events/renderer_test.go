package events

import (
	"strings"
	"testing"
)

func TestRenderMarkdownSanitizesScriptTags(t *testing.T) {
	r := NewRenderer()
	html, err := r.RenderMarkdown("# hi\n\n<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected script tag stripped, got %q", html)
	}
	if !strings.Contains(html, "<h1>") {
		t.Fatalf("expected heading rendered, got %q", html)
	}
}

func TestSanitizeHTMLStripsOnClick(t *testing.T) {
	r := NewRenderer()
	out := r.SanitizeHTML(`<a href="#" onclick="evil()">click</a>`)
	if strings.Contains(out, "onclick") {
		t.Fatalf("expected onclick attribute stripped, got %q", out)
	}
}
