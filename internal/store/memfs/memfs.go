// Package memfs is an in-memory store backend. It backs tests and the
// --demo project, and supports fault injection per entry.
package memfs

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"

	"archon/internal/store"
)

// fsState is shared by every entry of one tree.
type fsState struct {
	mu sync.Mutex
}

// Dir is an in-memory directory.
type Dir struct {
	fs          *fsState
	name        string
	path        string
	children    []store.Entry
	failEntries error
}

// File is an in-memory file.
type File struct {
	fs        *fsState
	name      string
	path      string
	data      []byte
	failOpen  error
	failRead  error
	failWrite error
	open      int
}

// New creates an empty root directory.
func New(name string) *Dir {
	return &Dir{fs: &fsState{}, name: name, path: "/"}
}

func (d *Dir) Name() string     { return d.name }
func (d *Dir) Kind() store.Kind { return store.KindDirectory }
func (d *Dir) Path() string     { return d.path }

func (f *File) Name() string     { return f.name }
func (f *File) Kind() store.Kind { return store.KindFile }
func (f *File) Path() string     { return f.path }

// Entries returns a copy of the children in insertion order.
func (d *Dir) Entries(ctx context.Context) ([]store.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if d.failEntries != nil {
		return nil, &store.AccessError{Path: d.path, Err: d.failEntries}
	}
	return append([]store.Entry(nil), d.children...), nil
}

// CreateFile returns the named file, creating it empty if absent.
func (d *Dir) CreateFile(ctx context.Context, name string) (store.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" || strings.Contains(name, "/") {
		return nil, &store.WriteError{Path: path.Join(d.path, name), Err: store.ErrNotFound}
	}

	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	if e := d.child(name); e != nil {
		f, ok := e.(*File)
		if !ok {
			return nil, &store.WriteError{Path: e.Path(), Err: store.ErrNotFile}
		}
		return f, nil
	}
	return d.addFile(name), nil
}

// child must be called with the lock held.
func (d *Dir) child(name string) store.Entry {
	for _, e := range d.children {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

func (d *Dir) addFile(name string) *File {
	f := &File{fs: d.fs, name: name, path: path.Join(d.path, name)}
	d.children = append(d.children, f)
	return f
}

func (d *Dir) addDir(name string) *Dir {
	sub := &Dir{fs: d.fs, name: name, path: path.Join(d.path, name)}
	d.children = append(d.children, sub)
	return sub
}

// MkdirAll creates every directory along p and returns the last one.
// It panics if a path component is an existing file; memfs trees are
// built by test setup code.
func (d *Dir) MkdirAll(p string) *Dir {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	return d.mkdirAllLocked(p)
}

func (d *Dir) mkdirAllLocked(p string) *Dir {
	cur := d
	for _, part := range splitPath(p) {
		e := cur.child(part)
		if e == nil {
			cur = cur.addDir(part)
			continue
		}
		sub, ok := e.(*Dir)
		if !ok {
			panic("memfs: " + e.Path() + " is a file")
		}
		cur = sub
	}
	return cur
}

// WriteFile creates or replaces the file at p, creating parents.
func (d *Dir) WriteFile(p, content string) *File {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	dir, name := path.Split(strings.Trim(p, "/"))
	parent := d.mkdirAllLocked(dir)

	var f *File
	if e := parent.child(name); e != nil {
		existing, ok := e.(*File)
		if !ok {
			panic("memfs: " + e.Path() + " is a directory")
		}
		f = existing
	} else {
		f = parent.addFile(name)
	}
	f.data = []byte(content)
	return f
}

// Lookup resolves a slash-separated path relative to d.
func (d *Dir) Lookup(p string) (store.Entry, bool) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	var cur store.Entry = d
	for _, part := range splitPath(p) {
		dir, ok := cur.(*Dir)
		if !ok {
			return nil, false
		}
		next := dir.child(part)
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Remove deletes the named child. Existing handles stay usable but are no
// longer listed.
func (d *Dir) Remove(name string) bool {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()

	for i, e := range d.children {
		if e.Name() == name {
			d.children = append(d.children[:i], d.children[i+1:]...)
			return true
		}
	}
	return false
}

// FailEntries makes Entries fail with err. Nil clears the fault.
func (d *Dir) FailEntries(err error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	d.failEntries = err
}

// FailOpen makes Open fail with err.
func (f *File) FailOpen(err error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.failOpen = err
}

// FailRead makes reads from an opened reader fail with err.
func (f *File) FailRead(err error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.failRead = err
}

// FailWrite makes writes to an opened writable fail with err.
func (f *File) FailWrite(err error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.failWrite = err
}

// Content returns the committed content.
func (f *File) Content() string {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return string(f.data)
}

// OpenCount returns the number of readers and writables not yet released.
func (f *File) OpenCount() int {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.open
}

// Open returns a reader over a snapshot of the content.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if f.failOpen != nil {
		return nil, f.failOpen
	}
	f.open++
	return &reader{f: f, r: bytes.NewReader(append([]byte(nil), f.data...)), fail: f.failRead}, nil
}

// OpenWritable returns a buffered writable committed on Close.
func (f *File) OpenWritable(ctx context.Context) (store.Writable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	f.open++
	return &writable{f: f, fail: f.failWrite}, nil
}

func (f *File) release() {
	f.fs.mu.Lock()
	f.open--
	f.fs.mu.Unlock()
}

type reader struct {
	f      *File
	r      *bytes.Reader
	fail   error
	closed bool
}

func (r *reader) Read(p []byte) (int, error) {
	if r.fail != nil {
		return 0, r.fail
	}
	return r.r.Read(p)
}

func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.f.release()
	return nil
}

type writable struct {
	f    *File
	buf  bytes.Buffer
	fail error
	done bool
}

func (w *writable) Write(p []byte) (int, error) {
	if w.fail != nil {
		return 0, w.fail
	}
	return w.buf.Write(p)
}

func (w *writable) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	w.f.fs.mu.Lock()
	w.f.data = append([]byte(nil), w.buf.Bytes()...)
	w.f.open--
	w.f.fs.mu.Unlock()
	return nil
}

func (w *writable) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.release()
	return nil
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}
