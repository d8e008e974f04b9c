package highlight

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"src/App.tsx":     "tsx",
		"server.js":       "javascript",
		"README.MD":       "markdown",
		"styles.scss":     "scss",
		"notes.unknownxx": "text",
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectLanguage(name), name)
	}
}

func TestHighlightKeepsText(t *testing.T) {
	h := New("")
	out := h.Highlight("const x = 1;", "javascript")
	assert.Contains(t, out, "const")
	assert.Contains(t, out, "1")
}

func TestNewFallsBackToDefaultStyle(t *testing.T) {
	h := New("no-such-style")
	assert.Equal(t, New(DefaultStyle).style, h.style)
}

func TestHighlightFileTruncates(t *testing.T) {
	h := New("monokai")
	content := strings.Repeat("line\n", 10)

	out := h.HighlightFile("a.txt", content, 3)
	assert.Contains(t, out, "   3 │ ")
	assert.NotContains(t, out, "   4 │ ")
	assert.Contains(t, out, "…")

	full := h.HighlightFile("a.txt", "one\ntwo", 0)
	assert.Contains(t, full, "   2 │ ")
	assert.NotContains(t, full, "…")
}
