package fileio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archon/internal/store"
	"archon/internal/store/localfs"
	"archon/internal/store/memfs"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := memfs.New("r")
	f := root.WriteFile("a.ts", "old")

	for _, text := range []string{
		"",
		"single line",
		"line one\nline two\n\nline four",
		"unicode ✓ 日本語\n",
	} {
		require.NoError(t, WriteText(ctx, f, text))
		got, err := ReadText(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, text, got)
		assert.Zero(t, f.OpenCount())
	}
}

func TestRoundTripLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("before"), 0644))

	root, err := localfs.Open(dir)
	require.NoError(t, err)
	f, err := root.CreateFile(ctx, "b.md")
	require.NoError(t, err)

	got, err := ReadText(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "before", got)

	require.NoError(t, WriteText(ctx, f, "after\n"))
	got, err = ReadText(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "after\n", got)
}

func TestLastWriteWins(t *testing.T) {
	ctx := context.Background()
	f := memfs.New("r").WriteFile("a.ts", "")

	require.NoError(t, WriteText(ctx, f, "first"))
	require.NoError(t, WriteText(ctx, f, "second"))
	assert.Equal(t, "second", f.Content())
}

func TestReadTextReleasesOnFailure(t *testing.T) {
	ctx := context.Background()
	f := memfs.New("r").WriteFile("a.ts", "content")
	f.FailRead(errors.New("io failure"))

	_, err := ReadText(ctx, f)
	var readErr *store.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Zero(t, f.OpenCount())
}

func TestReadTextOpenFailure(t *testing.T) {
	f := memfs.New("r").WriteFile("a.ts", "content")
	f.FailOpen(store.ErrPermission)

	_, err := ReadText(context.Background(), f)
	var readErr *store.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, store.ErrPermission)
}

func TestWriteTextFailureKeepsContent(t *testing.T) {
	ctx := context.Background()
	f := memfs.New("r").WriteFile("a.ts", "original")
	f.FailWrite(errors.New("disk full"))

	err := WriteText(ctx, f, "replacement")
	var writeErr *store.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "original", f.Content())
	assert.Zero(t, f.OpenCount())
}

func TestLoadForEditor(t *testing.T) {
	ctx := context.Background()
	root := memfs.New("r")
	good := root.WriteFile("good.ts", "export {}")
	bad := root.WriteFile("bad.ts", "x")
	bad.FailOpen(errors.New("gone"))

	text, ok := LoadForEditor(ctx, good)
	assert.True(t, ok)
	assert.Equal(t, "export {}", text)

	text, ok = LoadForEditor(ctx, bad)
	assert.False(t, ok)
	assert.Equal(t, LoadErrorPlaceholder, text)
}

func TestReadTextLimit(t *testing.T) {
	ctx := context.Background()
	root := memfs.New("r")
	f := root.WriteFile("a.json", "0123456789")

	text, err := ReadTextLimit(ctx, f, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", text)

	_, err = ReadTextLimit(ctx, f, 9)
	var readErr *store.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Zero(t, f.OpenCount())
}
