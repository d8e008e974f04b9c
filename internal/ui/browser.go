// Package ui is the terminal front end: a project tree browser with file
// preview, and rendering helpers for architect replies.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"archon/internal/harvest"
	"archon/internal/highlight"
	"archon/internal/tree"
	"archon/internal/workspace"
)

const previewMaxLines = 500

// treeMsg carries a tree produced by a refresh or toggle.
type treeMsg struct {
	tree tree.Tree
	err  error
}

// previewMsg carries a loaded file for the preview pane.
type previewMsg struct {
	path string
	text string
	ok   bool
}

// scanMsg reports a finished harvest and publish.
type scanMsg struct {
	doc *harvest.Document
	err error
}

type statusTickMsg struct{}

// Browser is the bubbletea model over a workspace session.
type Browser struct {
	ctx         context.Context
	session     *workspace.Session
	styles      *Styles
	highlighter *highlight.Highlighter

	rows   []tree.VisibleNode
	cursor int

	preview     viewport.Model
	previewPath string

	notice string
	err    error
	busy   bool

	width  int
	height int
}

// NewBrowser creates a browser for an already opened session.
func NewBrowser(ctx context.Context, session *workspace.Session) Browser {
	vp := viewport.New(60, 20)
	vp.MouseWheelEnabled = true

	b := Browser{
		ctx:         ctx,
		session:     session,
		styles:      DefaultStyles(),
		highlighter: highlight.New("monokai"),
		preview:     vp,
		width:       100,
		height:      30,
	}
	b.setTree(session.Tree())
	return b
}

// Init implements tea.Model.
func (b Browser) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		b.preview.Width = b.previewWidth() - 4
		b.preview.Height = b.bodyHeight() - 2
		return b, nil

	case treeMsg:
		b.setTree(msg.tree)
		b.err = msg.err
		if errors.Is(msg.err, workspace.ErrStaleTree) {
			b.setTree(b.session.Tree())
			b.err = nil
			b.notice = "tree was refreshed, expand again"
		}
		return b, nil

	case previewMsg:
		b.previewPath = msg.path
		b.preview.SetContent(b.highlighter.HighlightFile(msg.path, msg.text, previewMaxLines))
		b.preview.GotoTop()
		if !msg.ok {
			b.notice = "could not read " + msg.path
		}
		return b, nil

	case scanMsg:
		b.busy = false
		b.err = msg.err
		if msg.doc != nil {
			b.notice = fmt.Sprintf("scanned %d files, %d chars", len(msg.doc.Files), len(msg.doc.Content))
		}
		return b, nil

	case statusTickMsg:
		if b.busy {
			return b, statusTick()
		}
		return b, nil

	case tea.KeyMsg:
		return b.handleKey(msg)
	}
	return b, nil
}

func (b Browser) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	b.notice = ""
	switch msg.String() {
	case "ctrl+c", "q":
		return b, tea.Quit

	case "j", "down":
		if b.cursor < len(b.rows)-1 {
			b.cursor++
		}

	case "k", "up":
		if b.cursor > 0 {
			b.cursor--
		}

	case "enter", "l", "right", " ":
		node := b.selected()
		if node == nil {
			return b, nil
		}
		if node.IsDir() {
			return b, b.toggle(node)
		}
		return b, b.open(node)

	case "r":
		return b, b.refresh()

	case "s":
		if b.busy || b.session.IsScanning() {
			b.notice = "scan already in progress"
			return b, nil
		}
		b.busy = true
		return b, tea.Batch(b.scan(), statusTick())

	case "pgdown", "ctrl+d", "pgup", "ctrl+u":
		var cmd tea.Cmd
		b.preview, cmd = b.preview.Update(msg)
		return b, cmd
	}
	return b, nil
}

func (b *Browser) setTree(t tree.Tree) {
	b.rows = t.Visible()
	if b.cursor >= len(b.rows) {
		b.cursor = max(len(b.rows)-1, 0)
	}
}

func (b Browser) selected() *tree.Node {
	if b.cursor < 0 || b.cursor >= len(b.rows) {
		return nil
	}
	return b.rows[b.cursor].Node
}

func (b Browser) toggle(node *tree.Node) tea.Cmd {
	ctx, s := b.ctx, b.session
	return func() tea.Msg {
		t, err := s.Toggle(ctx, node)
		return treeMsg{tree: t, err: err}
	}
}

func (b Browser) refresh() tea.Cmd {
	ctx, s := b.ctx, b.session
	return func() tea.Msg {
		err := s.Refresh(ctx)
		return treeMsg{tree: s.Tree(), err: err}
	}
}

func (b Browser) open(node *tree.Node) tea.Cmd {
	ctx, s := b.ctx, b.session
	return func() tea.Msg {
		text, ok, _ := s.Select(ctx, node)
		return previewMsg{path: node.Handle.Path(), text: text, ok: ok}
	}
}

func (b Browser) scan() tea.Cmd {
	ctx, s := b.ctx, b.session
	return func() tea.Msg {
		doc, err := s.Scan(ctx)
		return scanMsg{doc: doc, err: err}
	}
}

func statusTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func (b Browser) listWidth() int {
	return b.width * 40 / 100
}

func (b Browser) previewWidth() int {
	return b.width - b.listWidth()
}

func (b Browser) bodyHeight() int {
	return max(b.height-3, 3)
}

// View implements tea.Model.
func (b Browser) View() string {
	title := b.styles.Title.Render("archon")
	if root := b.session.Root(); root != nil {
		title += " " + b.styles.Status.Render(root.Path())
	}

	list := b.styles.Pane.Width(b.listWidth() - 2).Height(b.bodyHeight() - 2).Render(b.renderRows())
	pane := b.styles.Pane.Width(b.previewWidth() - 2).Height(b.bodyHeight() - 2).Render(b.preview.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, pane)

	return lipgloss.JoinVertical(lipgloss.Left, title, body, b.statusLine())
}

func (b Browser) renderRows() string {
	if len(b.rows) == 0 {
		return b.styles.Status.Render("(empty)")
	}

	visible := b.bodyHeight() - 2
	start := 0
	if b.cursor >= visible {
		start = b.cursor - visible + 1
	}
	end := min(start+visible, len(b.rows))

	var sb strings.Builder
	for i := start; i < end; i++ {
		row := b.rows[i]
		sb.WriteString(b.styles.Connector.Render(row.Prefix))

		name := row.Node.Name
		style := b.styles.File
		if row.Node.IsDir() {
			name += "/"
			style = b.styles.Dir
		}
		if i == b.cursor {
			style = b.styles.Selected
		}
		sb.WriteString(style.Render(name))
		if i < end-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (b Browser) statusLine() string {
	var parts []string
	switch {
	case b.busy || b.session.IsScanning():
		parts = append(parts, b.styles.Busy.Render("scanning…"))
	case b.session.IsPublishing():
		parts = append(parts, b.styles.Busy.Render("publishing…"))
	}

	if h, ok := b.session.CacheHandle(); ok {
		parts = append(parts, lipgloss.NewStyle().Foreground(ColorSuccess).Render("cache "+h.Name))
	} else if doc := b.session.Document(); doc != nil {
		parts = append(parts, b.styles.Status.Render(fmt.Sprintf("context %d files", len(doc.Files))))
	}

	if b.err != nil {
		parts = append(parts, b.styles.Error.Render(b.err.Error()))
	} else if b.notice != "" {
		parts = append(parts, b.styles.Status.Render(b.notice))
	}

	parts = append(parts, b.styles.Help.Render("↑/↓ move · enter open · s scan · r refresh · q quit"))
	return strings.Join(parts, "  ")
}
