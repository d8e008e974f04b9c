// Package fileio reads and writes whole files as text through store
// handles. Every opened reader or writable is released before returning.
package fileio

import (
	"context"
	"errors"
	"io"

	"archon/internal/logging"
	"archon/internal/store"
)

// LoadErrorPlaceholder is shown in place of a file that could not be read.
const LoadErrorPlaceholder = "// Error loading file contents."

// ErrTooLarge is returned by ReadTextLimit when a file exceeds the limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ReadText returns the full content of f.
func ReadText(ctx context.Context, f store.File) (string, error) {
	return ReadTextLimit(ctx, f, 0)
}

// ReadTextLimit returns the content of f if it is at most limit bytes.
// At most limit+1 bytes are read; a larger file yields a ReadError
// wrapping ErrTooLarge. limit <= 0 reads everything.
func ReadTextLimit(ctx context.Context, f store.File, limit int64) (text string, err error) {
	r, err := f.Open(ctx)
	if err != nil {
		return "", &store.ReadError{Path: f.Path(), Err: err}
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = &store.ReadError{Path: f.Path(), Err: cerr}
		}
	}()

	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", &store.ReadError{Path: f.Path(), Err: err}
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", &store.ReadError{Path: f.Path(), Err: ErrTooLarge}
	}
	return string(data), nil
}

// WriteText replaces the full content of f with text. The new content is
// committed only if every byte was written; otherwise the writable is
// aborted and the file keeps its previous content.
func WriteText(ctx context.Context, f store.File, text string) error {
	w, err := f.OpenWritable(ctx)
	if err != nil {
		return &store.WriteError{Path: f.Path(), Err: err}
	}

	if _, err := io.WriteString(w, text); err != nil {
		if aerr := w.Abort(); aerr != nil {
			err = errors.Join(err, aerr)
		}
		return &store.WriteError{Path: f.Path(), Err: err}
	}

	if err := w.Close(); err != nil {
		return &store.WriteError{Path: f.Path(), Err: err}
	}
	return nil
}

// LoadForEditor reads f for display. On failure it logs the error and
// returns LoadErrorPlaceholder with ok set to false.
func LoadForEditor(ctx context.Context, f store.File) (text string, ok bool) {
	text, err := ReadText(ctx, f)
	if err != nil {
		logging.Warn("failed to load file", "path", f.Path(), "error", err)
		return LoadErrorPlaceholder, false
	}
	return text, true
}
