package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"archon/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(events []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) has(path string, op Operation) bool {
	for _, ev := range c.snapshot() {
		if ev.Path == path && ev.Operation == op {
			return true
		}
	}
	return false
}

func testConfig() config.WatcherConfig {
	return config.WatcherConfig{Enabled: true, DebounceMs: 40, MaxWatches: 100}
}

func startWatcher(t *testing.T, root string) (*Watcher, *collector) {
	t.Helper()
	w, err := New(root, []string{"node_modules"}, testConfig())
	require.NoError(t, err)

	c := &collector{}
	w.SetOnChange(c.handle)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return w, c
}

func TestDisabledWatcher(t *testing.T) {
	w, err := New(t.TempDir(), nil, config.WatcherConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.False(t, w.IsRunning())
	assert.Zero(t, w.WatchedPaths())
	require.NoError(t, w.Stop())
}

func TestStartSkipsExcludedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "lib"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "react"), 0o755))

	w, _ := startWatcher(t, root)
	assert.True(t, w.IsRunning())
	assert.Equal(t, 3, w.WatchedPaths(), "root, src and src/lib")
}

func TestStartMissingRoot(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), nil, testConfig())
	require.NoError(t, err)
	assert.Error(t, w.Start())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

func TestReportsSettledChanges(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "app.ts")
	require.NoError(t, os.WriteFile(existing, []byte("a"), 0o644))

	_, c := startWatcher(t, root)

	created := filepath.Join(root, "new.ts")
	require.NoError(t, os.WriteFile(created, []byte("x"), 0o644))
	require.NoError(t, os.Remove(existing))

	assert.Eventually(t, func() bool {
		return c.has(created, OpCreate) && c.has(existing, OpDelete)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIgnoresHiddenAndExcluded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "node_modules"), 0o755))

	_, c := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x.js"), []byte("x"), 0o644))
	visible := filepath.Join(root, "visible.ts")
	require.NoError(t, os.WriteFile(visible, []byte("x"), 0o644))

	require.Eventually(t, func() bool { return c.has(visible, OpCreate) }, 2*time.Second, 10*time.Millisecond)
	for _, ev := range c.snapshot() {
		assert.Equal(t, visible, ev.Path)
	}
}

func TestWatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, c := startWatcher(t, root)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return w.WatchedPaths() == 2 }, 2*time.Second, 10*time.Millisecond)

	nested := filepath.Join(sub, "mod.go")
	require.NoError(t, os.WriteFile(nested, []byte("package pkg"), 0o644))
	assert.Eventually(t, func() bool { return c.has(nested, OpCreate) }, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), nil, testConfig())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestDirs(t *testing.T) {
	events := []Event{
		{Path: "/p/src/a.ts"},
		{Path: "/p/src/b.ts"},
		{Path: "/p/README.md"},
	}
	assert.Equal(t, []string{"/p/src", "/p"}, Dirs(events))
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Operation(42).String())
}
