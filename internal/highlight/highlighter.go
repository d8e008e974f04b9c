// Package highlight renders source files with terminal syntax colors.
package highlight

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// DefaultStyle is used when New is given an unknown or empty style.
const DefaultStyle = "monokai"

// webLanguages pins lexers for the harvested web extensions.
var webLanguages = map[string]string{
	".tsx":  "tsx",
	".ts":   "typescript",
	".jsx":  "jsx",
	".js":   "javascript",
	".css":  "css",
	".json": "json",
	".html": "html",
	".md":   "markdown",
}

// Highlighter colors file previews for a 256-color terminal.
type Highlighter struct {
	style     *chroma.Style
	formatter chroma.Formatter
	gutter    lipgloss.Style
}

// New creates a Highlighter using the named chroma style.
func New(style string) *Highlighter {
	s := styles.Get(style)
	if style == "" || s == nil {
		s = styles.Get(DefaultStyle)
	}
	return &Highlighter{
		style:     s,
		formatter: formatters.Get("terminal256"),
		gutter:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}
}

// Highlight colors code as lang. On any lexer or formatter failure the
// code is returned as is.
func (h *Highlighter) Highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// HighlightWithLineNumbers colors code and prefixes each line with its
// number, counting from startLine.
func (h *Highlighter) HighlightWithLineNumbers(code, lang string, startLine int) string {
	lines := strings.Split(h.Highlight(code, lang), "\n")

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(h.gutter.Render(fmt.Sprintf("%4d", startLine+i)))
		b.WriteString(" │ ")
		b.WriteString(line)
	}
	return b.String()
}

// HighlightFile highlights the contents of name with line numbers,
// showing at most maxLines lines. maxLines <= 0 shows everything.
func (h *Highlighter) HighlightFile(name, content string, maxLines int) string {
	truncated := false
	if maxLines > 0 {
		lines := strings.SplitN(content, "\n", maxLines+1)
		if len(lines) > maxLines {
			content = strings.Join(lines[:maxLines], "\n")
			truncated = true
		}
	}

	out := h.HighlightWithLineNumbers(content, DetectLanguage(name), 1)
	if truncated {
		out += "\n" + h.gutter.Render("  …")
	}
	return out
}

// DetectLanguage names the chroma lexer for filename, or "text".
func DetectLanguage(filename string) string {
	if lang, ok := webLanguages[strings.ToLower(filepath.Ext(filename))]; ok {
		return lang
	}

	base := filepath.Base(filename)
	lexer := lexers.Match(base)
	if lexer == nil {
		lexer = lexers.Match(strings.ToLower(base))
	}
	if lexer == nil {
		return "text"
	}

	cfg := lexer.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}
