package sftpfs

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archon/internal/store"
)

// newPipeClient serves the local filesystem over an in-process SFTP pipe.
func newPipeClient(t *testing.T) *sftp.Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	server, err := sftp.NewServer(serverConn)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve()
	}()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		server.Close()
		<-done
	})
	return client
}

func TestNewWithClient(t *testing.T) {
	client := newPipeClient(t)
	dir := t.TempDir()

	root, err := NewWithClient(client, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), root.Name())

	_, err = NewWithClient(client, filepath.Join(dir, "missing"))
	var accessErr *store.AccessError
	assert.ErrorAs(t, err, &accessErr)

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = NewWithClient(client, file)
	assert.ErrorIs(t, err, store.ErrNotDirectory)
}

func TestEntriesAndRoundTrip(t *testing.T) {
	client := newPipeClient(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hi"), 0644))

	root, err := NewWithClient(client, dir)
	require.NoError(t, err)
	ctx := context.Background()

	entries, err := root.Entries(ctx)
	require.NoError(t, err)
	kinds := map[string]store.Kind{}
	for _, e := range entries {
		kinds[e.Name()] = e.Kind()
	}
	assert.Equal(t, map[string]store.Kind{
		"README.md": store.KindFile,
		"src":       store.KindDirectory,
	}, kinds)

	f, err := root.CreateFile(ctx, "app.tsx")
	require.NoError(t, err)

	w, err := f.OpenWritable(ctx)
	require.NoError(t, err)
	_, err = io.WriteString(w, "export default App\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "app.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "export default App\n", string(data))

	r, err := f.Open(ctx)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, "export default App\n", string(got))
}

func TestAbortLeavesRemoteUntouched(t *testing.T) {
	client := newPipeClient(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.md"), []byte("original"), 0644))

	root, err := NewWithClient(client, dir)
	require.NoError(t, err)
	f, err := root.CreateFile(context.Background(), "keep.md")
	require.NoError(t, err)

	w, err := f.OpenWritable(context.Background())
	require.NoError(t, err)
	_, err = io.WriteString(w, "replacement")
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	data, err := os.ReadFile(filepath.Join(dir, "keep.md"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestBuildSSHConfigRequiresAuth(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := buildSSHConfig(Config{User: "dev", KeyPath: "/nonexistent/key"})
	assert.Error(t, err)

	cfg, err := buildSSHConfig(Config{User: "dev", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.User)
	assert.Len(t, cfg.Auth, 1)
}
