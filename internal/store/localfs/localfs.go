// Package localfs exposes a local directory as a store.
package localfs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"archon/internal/fileutil"
	"archon/internal/store"
)

// Dir is a local directory handle.
type Dir struct {
	path string
	name string
}

// File is a local file handle.
type File struct {
	path string
	name string
}

// Open returns the directory at root as a store root.
func Open(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &store.AccessError{Path: root, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &store.AccessError{Path: abs, Err: store.Classify(err)}
	}
	if !info.IsDir() {
		return nil, &store.AccessError{Path: abs, Err: store.ErrNotDirectory}
	}
	return &Dir{path: abs, name: filepath.Base(abs)}, nil
}

func (d *Dir) Name() string     { return d.name }
func (d *Dir) Kind() store.Kind { return store.KindDirectory }
func (d *Dir) Path() string     { return d.path }

func (f *File) Name() string     { return f.name }
func (f *File) Kind() store.Kind { return store.KindFile }
func (f *File) Path() string     { return f.path }

// Entries lists the directory. Symlinks are followed one level to learn
// their kind; dangling links and other special files are left out.
func (d *Dir) Entries(ctx context.Context) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, &store.AccessError{Path: d.path, Err: store.Classify(err)}
	}

	entries := make([]store.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		p := filepath.Join(d.path, de.Name())
		mode := de.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			entries = append(entries, &Dir{path: p, name: de.Name()})
		case mode.IsRegular():
			entries = append(entries, &File{path: p, name: de.Name()})
		}
	}
	return entries, nil
}

// CreateFile returns the named child, creating an empty file if absent.
func (d *Dir) CreateFile(ctx context.Context, name string) (store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := filepath.Join(d.path, name)
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || filepath.Dir(p) != d.path {
		return nil, &store.WriteError{Path: p, Err: store.ErrNotFound}
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &store.WriteError{Path: p, Err: store.Classify(err)}
	}
	if err := f.Close(); err != nil {
		return nil, &store.WriteError{Path: p, Err: err}
	}
	return &File{path: p, name: name}, nil
}

// Open opens the file for reading.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := os.Open(f.path)
	if err != nil {
		return nil, store.Classify(err)
	}
	return r, nil
}

// OpenWritable starts an atomic overwrite. The existing file must be
// writable by us; the rename alone would succeed on a read-only file.
func (f *File) OpenWritable(ctx context.Context) (store.Writable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(f.path); err == nil {
		perm = info.Mode().Perm()
		wf, err := os.OpenFile(f.path, os.O_WRONLY, 0)
		if err != nil {
			return nil, store.Classify(err)
		}
		wf.Close()
	}

	w, err := fileutil.NewAtomicWriter(f.path, perm)
	if err != nil {
		return nil, store.Classify(err)
	}
	return &writable{w: w}, nil
}

type writable struct {
	w *fileutil.AtomicWriter
}

func (w *writable) Write(p []byte) (int, error) { return w.w.Write(p) }
func (w *writable) Close() error                { return w.w.Commit() }
func (w *writable) Abort() error                { return w.w.Abort() }
