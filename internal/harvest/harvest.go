// Package harvest walks a project store and concatenates the text of
// its source files into one grounding document.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"archon/internal/config"
	"archon/internal/fileio"
	"archon/internal/logging"
	"archon/internal/metrics"
	"archon/internal/store"
	"archon/internal/tree"
)

// ErrScanInProgress is returned when a harvest is already running.
var ErrScanInProgress = errors.New("scan already in progress")

// SkippedEntry is a file or directory left out of the document.
type SkippedEntry struct {
	Path   string
	Reason string
}

// Document is the concatenated project context.
type Document struct {
	Content   string
	Files     []string // root-relative paths in section order
	Bytes     int
	Skipped   []SkippedEntry
	Truncated bool
}

// IsEmpty reports whether no file section was written.
func (d *Document) IsEmpty() bool {
	return d == nil || len(d.Files) == 0
}

// Harvester builds Documents. A Harvester runs one harvest at a time.
type Harvester struct {
	extensions  map[string]bool
	excludeDirs map[string]bool
	patterns    []string
	maxFile     int64
	maxTotal    int64
	concurrency int64

	scanning atomic.Bool
}

// New creates a Harvester from config.
func New(cfg config.HarvestConfig) *Harvester {
	h := &Harvester{
		extensions:  make(map[string]bool, len(cfg.Extensions)),
		excludeDirs: make(map[string]bool, len(cfg.ExcludeDirs)),
		maxFile:     cfg.MaxFileBytes,
		maxTotal:    cfg.MaxTotalBytes,
		concurrency: int64(cfg.Concurrency),
	}
	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		h.extensions[ext] = true
	}
	for _, d := range cfg.ExcludeDirs {
		h.excludeDirs[d] = true
	}
	for _, p := range cfg.IgnorePatterns {
		if !doublestar.ValidatePattern(p) {
			logging.Warn("ignoring invalid harvest pattern", "pattern", p)
			continue
		}
		h.patterns = append(h.patterns, p)
	}
	if h.concurrency <= 0 {
		h.concurrency = config.DefaultHarvestConcurrency
	}
	return h
}

// IsScanning reports whether a harvest is running.
func (h *Harvester) IsScanning() bool {
	return h.scanning.Load()
}

// fileRef is a file picked for the document, in traversal order.
type fileRef struct {
	path string
	file store.File
}

// listing collects a subtree's files and skips in traversal order.
type listing struct {
	files   []fileRef
	skipped []SkippedEntry
}

func (l *listing) append(o *listing) {
	l.files = append(l.files, o.files...)
	l.skipped = append(l.skipped, o.skipped...)
}

// Harvest walks root and returns its context document. Failures below the
// root are recorded in Document.Skipped; only a failure to enumerate the
// root itself is returned, as an AccessError.
func (h *Harvester) Harvest(ctx context.Context, root store.Dir) (*Document, error) {
	if !h.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer h.scanning.Store(false)

	start := time.Now()
	doc, err := h.harvest(ctx, root)
	if err != nil {
		metrics.RecordHarvest(time.Since(start), 0, 0, false)
		return nil, err
	}
	metrics.RecordHarvest(time.Since(start), doc.Bytes, len(doc.Files), true)

	logging.Info("project context scanned",
		"root", root.Path(),
		"chars", doc.Bytes,
		"files", len(doc.Files),
		"skipped", len(doc.Skipped),
		"truncated", doc.Truncated,
		"duration", time.Since(start))
	return doc, nil
}

func (h *Harvester) harvest(ctx context.Context, root store.Dir) (*Document, error) {
	entries, err := root.Entries(ctx)
	if err != nil {
		var accessErr *store.AccessError
		if !errors.As(err, &accessErr) {
			err = &store.AccessError{Path: root.Path(), Err: err}
		}
		return nil, err
	}

	w := &walker{h: h, sem: semaphore.NewWeighted(h.concurrency)}
	list, err := w.visitEntries(ctx, "", entries)
	if err != nil {
		return nil, err
	}
	return h.assemble(ctx, list)
}

// assemble reads the listed files in order, a window of Concurrency files
// at a time, and concatenates them. Files over MaxFileBytes are cut off
// after MaxFileBytes+1 bytes and skipped; once MaxTotalBytes is reached
// no further file is read.
func (h *Harvester) assemble(ctx context.Context, list *listing) (*Document, error) {
	doc := &Document{Skipped: list.skipped}
	var b strings.Builder

	files := list.files
	for len(files) > 0 && !doc.Truncated {
		window := files[:min(len(files), int(h.concurrency))]
		files = files[len(window):]

		texts := make([]string, len(window))
		errs := make([]error, len(window))
		g, gctx := errgroup.WithContext(ctx)
		for i, ref := range window {
			g.Go(func() error {
				texts[i], errs[i] = fileio.ReadTextLimit(gctx, ref.file, h.maxFile)
				if errs[i] != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, ref := range window {
			if errs[i] != nil {
				doc.Skipped = append(doc.Skipped, h.skipReason(ref.path, errs[i]))
				continue
			}

			header := "\n// File: " + ref.path + "\n"
			size := len(header) + len(texts[i]) + 1
			if h.maxTotal > 0 && int64(b.Len()+size) > h.maxTotal {
				doc.Truncated = true
				for _, rest := range window[i:] {
					doc.Skipped = append(doc.Skipped, SkippedEntry{Path: rest.path, Reason: "document size limit reached"})
				}
				for _, rest := range files {
					doc.Skipped = append(doc.Skipped, SkippedEntry{Path: rest.path, Reason: "document size limit reached"})
				}
				break
			}

			b.WriteString(header)
			b.WriteString(texts[i])
			b.WriteString("\n")
			doc.Files = append(doc.Files, ref.path)
		}
	}

	doc.Content = b.String()
	doc.Bytes = len(doc.Content)
	slices.SortFunc(doc.Skipped, func(a, b SkippedEntry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return doc, nil
}

func (h *Harvester) skipReason(p string, err error) SkippedEntry {
	if errors.Is(err, fileio.ErrTooLarge) {
		return SkippedEntry{Path: p, Reason: fmt.Sprintf("file exceeds %d bytes", h.maxFile)}
	}
	logging.Warn("skipping unreadable file", "path", p, "error", err)
	return SkippedEntry{Path: p, Reason: err.Error()}
}

// walker holds the per-harvest I/O limit.
type walker struct {
	h   *Harvester
	sem *semaphore.Weighted
}

// visitEntries lists one directory's files and walks its subdirectories
// concurrently; their results are stitched back in sort order.
func (w *walker) visitEntries(ctx context.Context, rel string, entries []store.Entry) (*listing, error) {
	tree.SortEntries(entries)

	parts := make([]*listing, len(entries))
	g, gctx := errgroup.WithContext(ctx)

	for i, e := range entries {
		p := rel + "/" + e.Name()
		switch e.Kind() {
		case store.KindDirectory:
			if w.h.excludeDirs[e.Name()] || w.h.ignored(p) {
				continue
			}
			dir, ok := store.AsDir(e)
			if !ok {
				continue
			}
			g.Go(func() error {
				res, err := w.visitDir(gctx, p, dir)
				parts[i] = res
				return err
			})

		case store.KindFile:
			if !w.h.accepts(e.Name()) || w.h.ignored(p) {
				continue
			}
			if f, ok := store.AsFile(e); ok {
				parts[i] = &listing{files: []fileRef{{path: p, file: f}}}
			}
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &listing{}
	for _, part := range parts {
		if part != nil {
			out.append(part)
		}
	}
	return out, nil
}

func (w *walker) visitDir(ctx context.Context, p string, dir store.Dir) (*listing, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	entries, err := dir.Entries(ctx)
	w.sem.Release(1)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warn("skipping unreadable directory", "path", p, "error", err)
		return &listing{skipped: []SkippedEntry{{Path: p, Reason: err.Error()}}}, nil
	}
	return w.visitEntries(ctx, p, entries)
}

// accepts applies the hidden-file rule and the extension allow-set.
func (h *Harvester) accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return h.extensions[path.Ext(name)]
}

// ignored matches p, without its leading slash, against the ignore patterns.
func (h *Harvester) ignored(p string) bool {
	rel := strings.TrimPrefix(p, "/")
	for _, pattern := range h.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
