// Package ratelimit throttles reasoning requests with token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket holds up to capacity tokens and refills continuously.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	perSec   float64
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket creates a full bucket of capacity tokens refilling at
// perSec tokens per second.
func NewTokenBucket(capacity, perSec float64) *TokenBucket {
	return newBucket(capacity, perSec, time.Now)
}

func newBucket(capacity, perSec float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		perSec:   perSec,
		last:     now(),
		now:      now,
	}
}

// advance credits the tokens earned since the last call. Caller holds mu.
func (b *TokenBucket) advance() {
	t := b.now()
	if t.After(b.last) {
		b.tokens = min(b.capacity, b.tokens+t.Sub(b.last).Seconds()*b.perSec)
	}
	b.last = t
}

// TryConsume takes n tokens if that many are available.
func (b *TokenBucket) TryConsume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Available reports the tokens currently in the bucket.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	return b.tokens
}

// Return gives back n tokens taken for a request that was then refused.
func (b *TokenBucket) Return(n float64) {
	b.mu.Lock()
	b.tokens = min(b.capacity, b.tokens+n)
	b.mu.Unlock()
}
