package resolve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archon/internal/config"
	"archon/internal/store"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Location
	}{
		{"bare path", "/srv/app", Location{Scheme: SchemeFile, Path: "/srv/app"}},
		{"relative path", "app", Location{Scheme: SchemeFile, Path: "app"}},
		{"file url", "file:///srv/app", Location{Scheme: SchemeFile, Path: "/srv/app"}},
		{"sftp", "sftp://dev@example.com/home/dev/app", Location{Scheme: SchemeSFTP, User: "dev", Host: "example.com", Path: "/home/dev/app"}},
		{"sftp port and password", "sftp://dev:pw@example.com:2222/app", Location{Scheme: SchemeSFTP, User: "dev", Password: "pw", Host: "example.com", Port: 2222, Path: "/app"}},
		{"sftp no path", "sftp://example.com", Location{Scheme: SchemeSFTP, Host: "example.com", Path: "."}},
		{"s3", "s3://projects/web/app/", Location{Scheme: SchemeS3, Bucket: "projects", Path: "web/app"}},
		{"s3 bucket root", "s3://projects", Location{Scheme: SchemeS3, Bucket: "projects"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{"", "ftp://host/x", "sftp:///path", "s3:///prefix", "file://"} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestOpenLocal(t *testing.T) {
	dir := t.TempDir()

	root, err := Open(context.Background(), dir, config.StoreConfig{})
	require.NoError(t, err)
	defer root.Close()

	assert.True(t, root.IsLocal())
	assert.Equal(t, filepath.Base(dir), root.Dir.Name())
	assert.Equal(t, dir, root.LocalPath())

	_, err = Open(context.Background(), filepath.Join(dir, "missing"), config.StoreConfig{})
	var accessErr *store.AccessError
	assert.ErrorAs(t, err, &accessErr)
}
