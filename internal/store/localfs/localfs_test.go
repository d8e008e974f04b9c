package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archon/internal/store"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	root, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), root.Name())
	assert.Equal(t, store.KindDirectory, root.Kind())

	_, err = Open(filepath.Join(dir, "missing"))
	var accessErr *store.AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.ErrorIs(t, err, store.ErrNotFound)

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = Open(file)
	assert.ErrorIs(t, err, store.ErrNotDirectory)
}

func TestEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi"), 0644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "src"), filepath.Join(dir, "link")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling")))

	root, err := Open(dir)
	require.NoError(t, err)

	entries, err := root.Entries(context.Background())
	require.NoError(t, err)

	kinds := map[string]store.Kind{}
	var names []string
	for _, e := range entries {
		kinds[e.Name()] = e.Kind()
		names = append(names, e.Name())
	}
	sort.Strings(names)

	assert.Equal(t, []string{"README.md", "link", "src"}, names)
	assert.Equal(t, store.KindDirectory, kinds["src"])
	assert.Equal(t, store.KindDirectory, kinds["link"])
	assert.Equal(t, store.KindFile, kinds["README.md"])
}

func TestWritableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	root, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	f, err := root.CreateFile(ctx, "notes.md")
	require.NoError(t, err)

	w, err := f.OpenWritable(ctx)
	require.NoError(t, err)
	_, err = io.WriteString(w, "line one\nline two\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := f.Open(ctx)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(dir, ".archon-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWritableAbortKeepsContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	root, err := Open(dir)
	require.NoError(t, err)
	f, err := root.CreateFile(context.Background(), "keep.txt")
	require.NoError(t, err)

	w, err := f.OpenWritable(context.Background())
	require.NoError(t, err)
	_, err = io.WriteString(w, "replacement")
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestOpenWritableReadOnlyFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "ro.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0444))

	f := &File{path: path, name: "ro.txt"}
	_, err := f.OpenWritable(context.Background())
	assert.ErrorIs(t, err, store.ErrPermission)
}

func TestCreateFileRejectsNestedNames(t *testing.T) {
	root, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = root.CreateFile(context.Background(), "../escape.txt")
	var writeErr *store.WriteError
	assert.ErrorAs(t, err, &writeErr)
}
