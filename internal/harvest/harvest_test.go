package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"archon/internal/config"
	"archon/internal/store"
	"archon/internal/store/memfs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func defaultHarvester() *Harvester {
	return New(config.DefaultConfig().Harvest)
}

func TestHarvestEndToEnd(t *testing.T) {
	root := memfs.New("proj")
	root.WriteFile("a/x.ts", "X")
	root.WriteFile("b.md", "B")
	root.WriteFile("node_modules/y.js", "Y")

	h := defaultHarvester()
	doc, err := h.Harvest(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "\n// File: /a/x.ts\nX\n\n// File: /b.md\nB\n", doc.Content)
	assert.Equal(t, []string{"/a/x.ts", "/b.md"}, doc.Files)
	assert.Equal(t, len(doc.Content), doc.Bytes)
	assert.False(t, doc.IsEmpty())
	assert.False(t, h.IsScanning())
}

func TestHarvestFiltering(t *testing.T) {
	root := memfs.New("proj")
	for _, p := range []string{
		"src/app.tsx", "src/app.ts", "src/app.js", "src/app.jsx",
		"src/app.css", "src/app.json", "src/app.html", "src/app.md",
	} {
		root.WriteFile(p, p)
	}
	excluded := []string{
		"src/image.png",
		"src/app.TS",
		"src/.env.ts",
		"src/.hidden.md",
		"go.mod",
		"node_modules/lib/index.js",
		".git/config.json",
		"dist/bundle.js",
		"src/dist/out.js",
		"src/node_modules/x.ts",
	}
	for _, p := range excluded {
		root.WriteFile(p, p)
	}
	root.WriteFile(".vscode/settings.json", "{}")

	doc, err := defaultHarvester().Harvest(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/.vscode/settings.json",
		"/src/app.css", "/src/app.html", "/src/app.js", "/src/app.json",
		"/src/app.jsx", "/src/app.md", "/src/app.ts", "/src/app.tsx",
	}, doc.Files)
	for _, p := range excluded {
		assert.NotContains(t, doc.Content, "// File: /"+p+"\n")
	}
}

func TestHarvestIgnorePatterns(t *testing.T) {
	root := memfs.New("proj")
	root.WriteFile("src/app.ts", "app")
	root.WriteFile("src/app.test.ts", "test")
	root.WriteFile("src/generated/api.ts", "gen")
	root.WriteFile("docs/readme.md", "docs")

	cfg := config.DefaultConfig().Harvest
	cfg.IgnorePatterns = []string{"**/*.test.ts", "src/generated", "[invalid"}
	doc, err := New(cfg).Harvest(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"/docs/readme.md", "/src/app.ts"}, doc.Files)
}

func TestHarvestDeterministic(t *testing.T) {
	root := memfs.New("proj")
	for d := 0; d < 6; d++ {
		for f := 0; f < 5; f++ {
			root.WriteFile(fmt.Sprintf("pkg%d/sub%d/file%d.ts", d, f%2, f), fmt.Sprintf("content %d/%d", d, f))
		}
	}
	root.WriteFile("index.ts", "root")

	cfg := config.DefaultConfig().Harvest
	cfg.Concurrency = 3
	h := New(cfg)

	first, err := h.Harvest(context.Background(), root)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := h.Harvest(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, first.Content, again.Content)
		assert.Equal(t, first.Files, again.Files)
	}
	assert.Len(t, first.Files, 31)
	assert.Equal(t, "/index.ts", first.Files[len(first.Files)-1])
}

func TestHarvestRecordsSkippedEntries(t *testing.T) {
	root := memfs.New("proj")
	root.WriteFile("ok.ts", "ok")
	bad := root.WriteFile("bad.ts", "bad")
	bad.FailRead(errors.New("io error"))
	locked := root.MkdirAll("locked")
	locked.WriteFile("inner.ts", "inner")
	locked.FailEntries(store.ErrPermission)

	doc, err := defaultHarvester().Harvest(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"/ok.ts"}, doc.Files)
	require.Len(t, doc.Skipped, 2)
	assert.Equal(t, "/bad.ts", doc.Skipped[0].Path)
	assert.Equal(t, "/locked", doc.Skipped[1].Path)
	assert.Zero(t, bad.OpenCount())
}

func TestHarvestRootFailure(t *testing.T) {
	root := memfs.New("proj")
	root.FailEntries(errors.New("denied"))

	h := defaultHarvester()
	doc, err := h.Harvest(context.Background(), root)
	assert.Nil(t, doc)
	var accessErr *store.AccessError
	assert.ErrorAs(t, err, &accessErr)
	assert.False(t, h.IsScanning())
}

func TestHarvestEmptyProject(t *testing.T) {
	root := memfs.New("proj")
	root.WriteFile("image.png", "")

	doc, err := defaultHarvester().Harvest(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.Empty(t, doc.Content)
}

func TestHarvestSizeLimits(t *testing.T) {
	root := memfs.New("proj")
	root.WriteFile("a.ts", strings.Repeat("a", 10))
	root.WriteFile("b.ts", strings.Repeat("b", 100))
	root.WriteFile("c.ts", strings.Repeat("c", 10))
	root.WriteFile("d.ts", strings.Repeat("d", 10))

	section := len("\n// File: /a.ts\n") + 10 + 1

	cfg := config.DefaultConfig().Harvest
	cfg.MaxFileBytes = 50
	cfg.MaxTotalBytes = int64(2*section + 5)
	doc, err := New(cfg).Harvest(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"/a.ts", "/c.ts"}, doc.Files)
	assert.True(t, doc.Truncated)
	assert.Equal(t, 2*section, doc.Bytes)

	var skipped []string
	for _, s := range doc.Skipped {
		skipped = append(skipped, s.Path)
	}
	assert.Equal(t, []string{"/b.ts", "/d.ts"}, skipped)
}

// meteredFile counts the opens and bytes read through it.
type meteredFile struct {
	store.File
	opens *atomic.Int64
	read  *atomic.Int64
}

func (f *meteredFile) Open(ctx context.Context) (io.ReadCloser, error) {
	f.opens.Add(1)
	r, err := f.File.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &meteredReader{ReadCloser: r, read: f.read}, nil
}

type meteredReader struct {
	io.ReadCloser
	read *atomic.Int64
}

func (r *meteredReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.read.Add(int64(n))
	return n, err
}

// meteredDir wraps every file of a flat directory in a meteredFile.
type meteredDir struct {
	store.Dir
	opens atomic.Int64
	read  atomic.Int64
}

func (d *meteredDir) Entries(ctx context.Context) ([]store.Entry, error) {
	entries, err := d.Dir.Entries(ctx)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if f, ok := store.AsFile(e); ok {
			entries[i] = &meteredFile{File: f, opens: &d.opens, read: &d.read}
		}
	}
	return entries, nil
}

func TestHarvestStopsReadingOversizedFile(t *testing.T) {
	mem := memfs.New("proj")
	mem.WriteFile("huge.json", strings.Repeat("x", 5<<20))
	mem.WriteFile("small.ts", "ok")
	root := &meteredDir{Dir: mem}

	h := defaultHarvester()
	limit := config.DefaultConfig().Harvest.MaxFileBytes
	doc, err := h.Harvest(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"/small.ts"}, doc.Files)
	require.Len(t, doc.Skipped, 1)
	assert.Equal(t, "/huge.json", doc.Skipped[0].Path)
	assert.Equal(t, fmt.Sprintf("file exceeds %d bytes", limit), doc.Skipped[0].Reason)
	assert.LessOrEqual(t, root.read.Load(), limit+1+int64(len("ok")))
}

func TestHarvestStopsReadingAtTotalLimit(t *testing.T) {
	mem := memfs.New("proj")
	for i := range 20 {
		mem.WriteFile(fmt.Sprintf("f%02d.ts", i), strings.Repeat("z", 100))
	}
	root := &meteredDir{Dir: mem}

	cfg := config.DefaultConfig().Harvest
	cfg.Concurrency = 2
	cfg.MaxTotalBytes = 250
	doc, err := New(cfg).Harvest(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"/f00.ts", "/f01.ts"}, doc.Files)
	assert.True(t, doc.Truncated)
	assert.Len(t, doc.Skipped, 18)
	assert.Equal(t, int64(4), root.opens.Load(), "reading stops after the window that hit the limit")
}

// blockingDir holds Entries until released.
type blockingDir struct {
	store.Dir
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *blockingDir) Entries(ctx context.Context) ([]store.Entry, error) {
	d.once.Do(func() { close(d.entered) })
	<-d.release
	return d.Dir.Entries(ctx)
}

func TestHarvestRejectsReentrantScan(t *testing.T) {
	root := memfs.New("proj")
	root.WriteFile("a.ts", "a")
	blocking := &blockingDir{Dir: root, entered: make(chan struct{}), release: make(chan struct{})}

	h := defaultHarvester()
	done := make(chan error, 1)
	go func() {
		_, err := h.Harvest(context.Background(), blocking)
		done <- err
	}()

	<-blocking.entered
	assert.True(t, h.IsScanning())
	_, err := h.Harvest(context.Background(), root)
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(blocking.release)
	require.NoError(t, <-done)
	assert.False(t, h.IsScanning())
}

func TestHarvestCancelled(t *testing.T) {
	root := memfs.New("proj")
	root.WriteFile("src/a.ts", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := defaultHarvester().Harvest(ctx, root)
	assert.Error(t, err)
}
