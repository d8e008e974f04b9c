// Package contextcache keeps the remote context cache in step with the
// latest harvested document.
package contextcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"archon/internal/client"
	"archon/internal/harvest"
	"archon/internal/logging"
	"archon/internal/metrics"
)

var (
	// ErrEmptyDocument is returned when publishing a document with no files.
	ErrEmptyDocument = errors.New("context document is empty")

	// ErrSuperseded is returned when Clear ran while a publish was in
	// flight. The cache that was created is not stored.
	ErrSuperseded = errors.New("context cache publish superseded")
)

// PublishError wraps a failed cache publish.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("context cache publish failed: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Handle identifies a published context cache. The zero value is unset.
type Handle struct {
	Name          string
	CreatedAt     time.Time
	DocumentBytes int
}

// IsSet reports whether the handle names a cache.
func (h Handle) IsSet() bool {
	return h.Name != ""
}

// Synchronizer publishes documents and holds the latest cache handle.
type Synchronizer struct {
	cacher client.Cacher

	publishing atomic.Bool

	mu     sync.RWMutex
	handle Handle
	epoch  uint64
}

// New creates a Synchronizer. A nil cacher disables publishing; documents
// are then always sent inline.
func New(cacher client.Cacher) *Synchronizer {
	return &Synchronizer{cacher: cacher}
}

// Enabled reports whether a caching endpoint is configured.
func (s *Synchronizer) Enabled() bool {
	return s.cacher != nil
}

// IsPublishing reports whether a publish is in flight.
func (s *Synchronizer) IsPublishing() bool {
	return s.publishing.Load()
}

// Handle returns the current cache handle.
func (s *Synchronizer) Handle() (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle, s.handle.IsSet()
}

// Epoch identifies the current generation of handles. Clear starts a
// new one.
func (s *Synchronizer) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Clear forgets the current handle. Publishes started before Clear no
// longer store their result.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	s.handle = Handle{}
	s.epoch++
	s.mu.Unlock()
}

// Publish uploads doc as a new context cache and stores its handle. On
// failure the previous handle is cleared and a PublishError is returned.
func (s *Synchronizer) Publish(ctx context.Context, doc *harvest.Document) (Handle, error) {
	return s.PublishAt(ctx, doc, s.Epoch())
}

// PublishAt is Publish for a document taken at epoch. If the epoch has
// moved on by the time the cache is created, nothing is stored and
// ErrSuperseded is returned.
func (s *Synchronizer) PublishAt(ctx context.Context, doc *harvest.Document, epoch uint64) (Handle, error) {
	if s.cacher == nil {
		return Handle{}, &PublishError{Err: client.ErrCachingUnsupported}
	}
	if doc.IsEmpty() {
		return Handle{}, &PublishError{Err: ErrEmptyDocument}
	}

	s.publishing.Store(true)
	defer s.publishing.Store(false)

	start := time.Now()
	name, err := s.cacher.CreateCache(ctx, doc.Content)
	metrics.RecordPublish(time.Since(start), err == nil)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.handle = Handle{}
		}
		s.mu.Unlock()
		logging.Error("context cache publish failed", "error", err, "bytes", doc.Bytes)
		return Handle{}, &PublishError{Err: err}
	}

	h := Handle{Name: name, CreatedAt: time.Now(), DocumentBytes: doc.Bytes}
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		logging.Warn("discarding context cache of a closed project", "name", name)
		return Handle{}, ErrSuperseded
	}
	s.handle = h
	s.mu.Unlock()

	logging.Info("context cache published", "name", name, "bytes", doc.Bytes, "duration", time.Since(start))
	return h, nil
}

// OnHarvest publishes doc, harvested at epoch, unless it is empty or
// caching is disabled.
func (s *Synchronizer) OnHarvest(ctx context.Context, doc *harvest.Document, epoch uint64) error {
	if doc.IsEmpty() {
		logging.Debug("skipping context cache publish for empty document")
		return nil
	}
	if s.cacher == nil {
		return nil
	}
	_, err := s.PublishAt(ctx, doc, epoch)
	return err
}

// Grounding returns what a reasoning request should carry: the cache
// name when one is set, and the raw document otherwise.
func (s *Synchronizer) Grounding(doc *harvest.Document) client.Grounding {
	if h, ok := s.Handle(); ok {
		return client.Grounding{CacheName: h.Name}
	}
	if doc == nil {
		return client.Grounding{}
	}
	return client.Grounding{Context: doc.Content}
}
