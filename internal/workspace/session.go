// Package workspace holds one project session: the mirrored tree, the
// latest context document and the context cache handle.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"archon/internal/client"
	"archon/internal/contextcache"
	"archon/internal/fileio"
	"archon/internal/harvest"
	"archon/internal/logging"
	"archon/internal/store"
	"archon/internal/tree"
)

var (
	// ErrNoProject is returned before Open or after Close.
	ErrNoProject = errors.New("no project open")

	// ErrScanInProgress is returned while a harvest is running.
	ErrScanInProgress = harvest.ErrScanInProgress

	// ErrStaleTree is returned when a refresh replaced the tree while an
	// expansion was in flight. The expansion is discarded.
	ErrStaleTree = errors.New("tree was refreshed during expansion")

	// ErrNoReasoner is returned when no reasoning endpoint is configured.
	ErrNoReasoner = errors.New("no reasoning endpoint configured")

	// ErrNotAFile is returned when selecting or saving a directory.
	ErrNotAFile = errors.New("node is not a file")
)

// Session is the state of one open project.
type Session struct {
	id        string
	harvester *harvest.Harvester
	cache     *contextcache.Synchronizer
	reasoner  client.Reasoner

	mu         sync.RWMutex
	root       store.Dir
	tree       tree.Tree
	generation uint64
	doc        *harvest.Document
	selected   store.File
}

// New creates a session. reasoner may be nil for browse-only use.
func New(h *harvest.Harvester, cache *contextcache.Synchronizer, reasoner client.Reasoner) *Session {
	return &Session{
		id:        uuid.New().String(),
		harvester: h,
		cache:     cache,
		reasoner:  reasoner,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Root returns the open project root.
func (s *Session) Root() store.Dir {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Tree returns the current tree. Trees are immutable values.
func (s *Session) Tree() tree.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// Document returns the latest harvested document, or nil.
func (s *Session) Document() *harvest.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Selected returns the file last opened with Select.
func (s *Session) Selected() store.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// CacheHandle returns the current context cache handle.
func (s *Session) CacheHandle() (contextcache.Handle, bool) {
	return s.cache.Handle()
}

// IsScanning reports whether a harvest is running.
func (s *Session) IsScanning() bool { return s.harvester.IsScanning() }

// IsPublishing reports whether a cache publish is in flight.
func (s *Session) IsPublishing() bool { return s.cache.IsPublishing() }

// Open makes root the project and loads its top level. A previous
// project's document and cache handle are discarded.
func (s *Session) Open(ctx context.Context, root store.Dir) error {
	s.mu.Lock()
	s.root = root
	s.doc = nil
	s.selected = nil
	s.tree = nil
	s.cache.Clear()
	s.mu.Unlock()

	logging.Info("project opened", "session", s.id, "root", root.Path())
	return s.Refresh(ctx)
}

// Refresh rebuilds the tree from the root. A refresh always wins over
// expansions still in flight.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	root := s.root
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if root == nil {
		return ErrNoProject
	}

	next, err := tree.Refresh(ctx, root)

	s.mu.Lock()
	defer s.mu.Unlock()
	// A later refresh has already published its tree.
	if s.generation != gen {
		return err
	}
	s.tree = next
	return err
}

// Toggle expands or collapses node. If the tree was refreshed while the
// expansion ran, the result is discarded and ErrStaleTree returned.
// Otherwise the toggled node is grafted onto the current tree, so
// concurrent toggles elsewhere are kept.
func (s *Session) Toggle(ctx context.Context, node *tree.Node) (tree.Tree, error) {
	s.mu.RLock()
	snapshot, gen := s.tree, s.generation
	s.mu.RUnlock()

	next, err := tree.ToggleExpansion(ctx, node, snapshot)
	if errors.Is(err, tree.ErrNodeNotFound) {
		return snapshot, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		logging.Debug("discarding expansion after refresh", "session", s.id, "node", node.Name)
		return s.tree, ErrStaleTree
	}

	toggled, ok := next.Find(node.Handle)
	if !ok {
		return s.tree, err
	}
	grafted, ok := s.tree.Replace(toggled)
	if !ok {
		return s.tree, ErrStaleTree
	}
	s.tree = grafted
	return grafted, err
}

// Reload re-enumerates one directory that changed on disk.
func (s *Session) Reload(ctx context.Context, node *tree.Node) (tree.Tree, error) {
	s.mu.RLock()
	snapshot, gen := s.tree, s.generation
	s.mu.RUnlock()

	next, err := tree.Reload(ctx, node, snapshot)
	if errors.Is(err, tree.ErrNodeNotFound) {
		return snapshot, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return s.tree, ErrStaleTree
	}
	reloaded, ok := next.Find(node.Handle)
	if !ok {
		return s.tree, err
	}
	grafted, ok := s.tree.Replace(reloaded)
	if !ok {
		return s.tree, ErrStaleTree
	}
	s.tree = grafted
	return grafted, err
}

// Select loads a file for viewing. A read failure yields the load-error
// placeholder with ok false.
func (s *Session) Select(ctx context.Context, node *tree.Node) (text string, ok bool, err error) {
	if node == nil {
		return "", false, ErrNotAFile
	}
	f, isFile := store.AsFile(node.Handle)
	if !isFile {
		return "", false, ErrNotAFile
	}

	s.mu.Lock()
	s.selected = f
	s.mu.Unlock()

	text, ok = fileio.LoadForEditor(ctx, f)
	return text, ok, nil
}

// Save overwrites f with text.
func (s *Session) Save(ctx context.Context, f store.File, text string) error {
	if f == nil {
		return ErrNotAFile
	}
	if err := fileio.WriteText(ctx, f, text); err != nil {
		logging.Error("failed to save file", "session", s.id, "path", f.Path(), "error", err)
		return err
	}
	logging.Info("file saved", "session", s.id, "path", f.Path(), "bytes", len(text))
	return nil
}

// CreateFile creates an empty file in the project root and refreshes
// the tree.
func (s *Session) CreateFile(ctx context.Context, name string) (store.File, error) {
	root := s.Root()
	if root == nil {
		return nil, ErrNoProject
	}

	f, err := root.CreateFile(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		return f, err
	}
	return f, nil
}

// Scan harvests the project, stores the document and publishes it to the
// context cache. A publish failure is returned alongside the document,
// which stays usable as inline grounding.
func (s *Session) Scan(ctx context.Context) (*harvest.Document, error) {
	s.mu.RLock()
	root, epoch := s.root, s.cache.Epoch()
	s.mu.RUnlock()
	if root == nil {
		return nil, ErrNoProject
	}

	doc, err := s.harvester.Harvest(ctx, root)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Ignore results for a project that was closed or replaced meanwhile.
	if s.cache.Epoch() != epoch {
		s.mu.Unlock()
		return doc, ErrNoProject
	}
	s.doc = doc
	s.mu.Unlock()

	if err := s.cache.OnHarvest(ctx, doc, epoch); err != nil {
		if errors.Is(err, contextcache.ErrSuperseded) {
			return doc, ErrNoProject
		}
		return doc, err
	}
	return doc, nil
}

// Publish republishes the current document.
func (s *Session) Publish(ctx context.Context) (contextcache.Handle, error) {
	s.mu.RLock()
	doc, epoch := s.doc, s.cache.Epoch()
	s.mu.RUnlock()
	if doc == nil {
		return contextcache.Handle{}, fmt.Errorf("publish: %w", contextcache.ErrEmptyDocument)
	}
	return s.cache.PublishAt(ctx, doc, epoch)
}

// Grounding returns the grounding attached to reasoning requests.
func (s *Session) Grounding() client.Grounding {
	return s.cache.Grounding(s.Document())
}

func (s *Session) readyToReason() error {
	if s.reasoner == nil {
		return ErrNoReasoner
	}
	if s.harvester.IsScanning() {
		return ErrScanInProgress
	}
	return nil
}

// Ask sends prompt to the architect, grounded in the project.
func (s *Session) Ask(ctx context.Context, prompt string) (*client.ArchitectReply, error) {
	if err := s.readyToReason(); err != nil {
		return nil, err
	}
	return s.reasoner.Architect(ctx, client.ArchitectRequest{
		Prompt:    prompt,
		Grounding: s.Grounding(),
	})
}

// Chat sends message after history, with an optional image.
func (s *Session) Chat(ctx context.Context, message string, history []client.Message, image *client.Image) (string, error) {
	if err := s.readyToReason(); err != nil {
		return "", err
	}
	return s.reasoner.Chat(ctx, client.ChatRequest{
		Message:   message,
		History:   history,
		Image:     image,
		Grounding: s.Grounding(),
	})
}

// Close discards the tree, document and cache handle and releases the
// reasoner.
func (s *Session) Close() error {
	s.mu.Lock()
	s.root = nil
	s.tree = nil
	s.doc = nil
	s.selected = nil
	s.generation++
	s.cache.Clear()
	s.mu.Unlock()

	logging.Info("session closed", "session", s.id)
	if s.reasoner != nil {
		return s.reasoner.Close()
	}
	return nil
}
