package fileutil

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrFinished is returned when writing to an AtomicWriter that was
// already committed or aborted.
var ErrFinished = errors.New("atomic writer already finished")

// AtomicWriter streams content into a temporary file next to the target
// and renames it over the target on Commit. Readers of the target never
// observe a partial write.
type AtomicWriter struct {
	path    string
	perm    os.FileMode
	tmp     *os.File
	tmpPath string
	done    bool
}

// NewAtomicWriter starts an atomic overwrite of path. The temporary file is
// created in the same directory, which the final rename requires.
func NewAtomicWriter(path string, perm os.FileMode) (*AtomicWriter, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archon-*.tmp")
	if err != nil {
		return nil, err
	}
	return &AtomicWriter{path: path, perm: perm, tmp: tmp, tmpPath: tmp.Name()}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrFinished
	}
	return w.tmp.Write(p)
}

// Commit syncs the temporary file and renames it over the target.
// On failure the temporary file is removed.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return ErrFinished
	}
	w.done = true

	success := false
	defer func() {
		if !success {
			os.Remove(w.tmpPath)
		}
	}()

	if err := w.tmp.Sync(); err != nil {
		w.tmp.Close()
		return err
	}
	if err := w.tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(w.tmpPath, w.perm); err != nil {
		return err
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return err
	}

	success = true
	return nil
}

// Abort discards the temporary file. It is safe to call after Commit.
func (w *AtomicWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	return os.Remove(w.tmpPath)
}

// AtomicWrite writes data to path atomically.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	w, err := NewAtomicWriter(path, perm)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}
