package ui

import (
	"errors"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/glamour"

	"archon/internal/client"
	"archon/internal/highlight"
)

// ErrNoCode is returned when copying a reply that carries no code.
var ErrNoCode = errors.New("reply has no code")

// ReplyMarkdown lays out an architect reply as markdown, with the code
// fenced in the language guessed from codeHint (a file name, may be empty).
func ReplyMarkdown(reply *client.ArchitectReply, codeHint string) string {
	var sb strings.Builder
	if reply.Thought != "" {
		sb.WriteString("## Thought\n\n")
		sb.WriteString(strings.TrimSpace(reply.Thought))
		sb.WriteString("\n\n")
	}
	if reply.Plan != "" {
		sb.WriteString("## Plan\n\n")
		sb.WriteString(strings.TrimSpace(reply.Plan))
		sb.WriteString("\n\n")
	}
	if reply.Code != "" {
		lang := ""
		if codeHint != "" {
			if l := highlight.DetectLanguage(codeHint); l != "text" {
				lang = l
			}
		}
		sb.WriteString("## Code\n\n```")
		sb.WriteString(lang)
		sb.WriteString("\n")
		sb.WriteString(strings.TrimRight(reply.Code, "\n"))
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// RenderMarkdown renders markdown for the terminal. width <= 0 disables
// wrapping.
func RenderMarkdown(markdown string, width int) (string, error) {
	if width < 0 {
		width = 0
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(markdown)
}

// RenderReply renders an architect reply for the terminal.
func RenderReply(reply *client.ArchitectReply, width int) (string, error) {
	return RenderMarkdown(ReplyMarkdown(reply, ""), width)
}

// CopyCode puts the reply's code on the system clipboard.
func CopyCode(reply *client.ArchitectReply) error {
	if reply == nil || strings.TrimSpace(reply.Code) == "" {
		return ErrNoCode
	}
	return clipboard.WriteAll(reply.Code)
}
