// Package store defines the capability interface over an external
// hierarchical file store: a project root that can be enumerated, read
// and overwritten. Backends live in subpackages (localfs, sftpfs, s3fs,
// memfs).
package store

import (
	"context"
	"io"
)

// Kind tags an entry as a file or a directory.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Entry is an opaque handle to one file or directory in a store.
// Handles are compared by identity; implementations use pointer receivers.
type Entry interface {
	Name() string
	Kind() Kind
	// Path is a backend-specific display path used in logs and errors.
	Path() string
}

// Dir is a directory capability.
type Dir interface {
	Entry
	// Entries enumerates the direct children in backend order.
	Entries(ctx context.Context) ([]Entry, error)
	// CreateFile returns the named child file, creating it empty if absent.
	CreateFile(ctx context.Context, name string) (File, error)
}

// File is a file capability.
type File interface {
	Entry
	// Open returns a reader for the full content. The caller must close it.
	Open(ctx context.Context) (io.ReadCloser, error)
	// OpenWritable returns a writable that replaces the whole content when
	// closed. Abort releases it without changing the file.
	OpenWritable(ctx context.Context) (Writable, error)
}

// Writable is a scoped overwrite of one file.
type Writable interface {
	io.Writer
	// Close commits the written content.
	Close() error
	// Abort discards the written content and releases the resource.
	Abort() error
}

// SameEntry reports whether a and b are the same handle.
func SameEntry(a, b Entry) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b
}

// AsDir returns e as a directory capability.
func AsDir(e Entry) (Dir, bool) {
	if e == nil || e.Kind() != KindDirectory {
		return nil, false
	}
	d, ok := e.(Dir)
	return d, ok
}

// AsFile returns e as a file capability.
func AsFile(e Entry) (File, bool) {
	if e == nil || e.Kind() != KindFile {
		return nil, false
	}
	f, ok := e.(File)
	return f, ok
}
