// Package resolve opens a project root from a path or URL.
//
// Supported forms:
//
//	/path/to/project
//	file:///path/to/project
//	sftp://user@host[:port]/path
//	s3://bucket/prefix
package resolve

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"archon/internal/config"
	"archon/internal/store"
	"archon/internal/store/localfs"
	"archon/internal/store/s3fs"
	"archon/internal/store/sftpfs"
)

// Scheme names a store backend.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeSFTP Scheme = "sftp"
	SchemeS3   Scheme = "s3"
)

// Location is a parsed project root.
type Location struct {
	Scheme   Scheme
	User     string
	Password string
	Host     string
	Port     int
	Bucket   string
	Path     string
}

// Parse splits raw into a Location. Bare paths are local.
func Parse(raw string) (*Location, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty project root")
	}
	if !strings.Contains(raw, "://") {
		return &Location{Scheme: SchemeFile, Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid project root %q: %w", raw, err)
	}

	switch Scheme(u.Scheme) {
	case SchemeFile:
		if u.Path == "" {
			return nil, fmt.Errorf("file URL %q has no path", raw)
		}
		return &Location{Scheme: SchemeFile, Path: u.Path}, nil

	case SchemeSFTP:
		if u.Hostname() == "" {
			return nil, fmt.Errorf("sftp URL %q has no host", raw)
		}
		loc := &Location{Scheme: SchemeSFTP, Host: u.Hostname(), Path: u.Path}
		if u.User != nil {
			loc.User = u.User.Username()
			loc.Password, _ = u.User.Password()
		}
		if p := u.Port(); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid port in %q: %w", raw, err)
			}
			loc.Port = port
		}
		if loc.Path == "" {
			loc.Path = "."
		}
		return loc, nil

	case SchemeS3:
		if u.Host == "" {
			return nil, fmt.Errorf("s3 URL %q has no bucket", raw)
		}
		return &Location{Scheme: SchemeS3, Bucket: u.Host, Path: strings.Trim(u.Path, "/")}, nil

	default:
		return nil, fmt.Errorf("unsupported project root scheme %q", u.Scheme)
	}
}

// Root is an opened project root.
type Root struct {
	Dir      store.Dir
	Location *Location
	closer   func() error
}

// IsLocal reports whether the root is on the local filesystem.
func (r *Root) IsLocal() bool {
	return r.Location != nil && r.Location.Scheme == SchemeFile
}

// LocalPath returns the absolute local path, or "" for remote roots.
func (r *Root) LocalPath() string {
	if !r.IsLocal() {
		return ""
	}
	return r.Dir.Path()
}

// Close releases any connection held by the root.
func (r *Root) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Open parses raw and opens the matching backend.
func Open(ctx context.Context, raw string, cfg config.StoreConfig) (*Root, error) {
	loc, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case SchemeSFTP:
		password := loc.Password
		if password == "" {
			password = cfg.SFTP.Password
		}
		conn, err := sftpfs.Dial(ctx, sftpfs.Config{
			Host:           loc.Host,
			Port:           loc.Port,
			User:           loc.User,
			Root:           loc.Path,
			KeyPath:        cfg.SFTP.KeyPath,
			KeyPassphrase:  cfg.SFTP.KeyPassphrase,
			Password:       password,
			Timeout:        cfg.SFTP.Timeout,
			KnownHostsPath: cfg.SFTP.KnownHostsPath,
		})
		if err != nil {
			return nil, err
		}
		return &Root{Dir: conn.Root(), Location: loc, closer: conn.Close}, nil

	case SchemeS3:
		dir, err := s3fs.Open(ctx, s3fs.Config{
			Bucket:       loc.Bucket,
			Prefix:       loc.Path,
			Endpoint:     cfg.S3.Endpoint,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return &Root{Dir: dir, Location: loc}, nil

	default:
		dir, err := localfs.Open(loc.Path)
		if err != nil {
			return nil, err
		}
		return &Root{Dir: dir, Location: loc}, nil
	}
}
