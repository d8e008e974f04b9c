package ratelimit

import (
	"sync"
	"time"

	"archon/internal/config"
)

// idleTTL is how long an unused client bucket is kept.
const idleTTL = 10 * time.Minute

type clientBucket struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// Limiter throttles requests per client key, with an optional shared
// budget of estimated model tokens.
type Limiter struct {
	enabled       bool
	requestBurst  float64
	requestRefill float64 // per second
	tokenBucket   *TokenBucket

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastPrune time.Time

	// Statistics
	totalRequests   int64
	blockedRequests int64
}

// Stats holds limiter statistics.
type Stats struct {
	TotalRequests   int64
	BlockedRequests int64
	Clients         int
}

// NewLimiter creates a limiter. TokensPerMinute of 0 disables the token
// budget.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	burst := float64(cfg.BurstSize)
	if burst < 1 {
		burst = 1
	}

	l := &Limiter{
		enabled:       cfg.Enabled && cfg.RequestsPerMinute > 0,
		requestBurst:  burst,
		requestRefill: float64(cfg.RequestsPerMinute) / 60.0,
		clients:       make(map[string]*clientBucket),
		lastPrune:     time.Now(),
	}
	if cfg.TokensPerMinute > 0 {
		// Allow a 10% burst of the per-minute budget.
		l.tokenBucket = NewTokenBucket(float64(cfg.TokensPerMinute)/10.0, float64(cfg.TokensPerMinute)/60.0)
	}
	return l
}

// Allow reports whether a request from key may proceed now.
// estimatedTokens is charged against the shared budget.
func (l *Limiter) Allow(key string, estimatedTokens int64) bool {
	if !l.enabled {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	l.totalRequests++
	if now.Sub(l.lastPrune) > idleTTL {
		l.pruneLocked(now)
	}
	c, ok := l.clients[key]
	if !ok {
		c = &clientBucket{bucket: NewTokenBucket(l.requestBurst, l.requestRefill)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	if !c.bucket.TryConsume(1) {
		l.block()
		return false
	}
	if l.tokenBucket != nil && estimatedTokens > 0 && !l.tokenBucket.TryConsume(float64(estimatedTokens)) {
		c.bucket.Return(1)
		l.block()
		return false
	}
	return true
}

func (l *Limiter) block() {
	l.mu.Lock()
	l.blockedRequests++
	l.mu.Unlock()
}

func (l *Limiter) pruneLocked(now time.Time) {
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > idleTTL {
			delete(l.clients, key)
		}
	}
	l.lastPrune = now
}

// Stats returns current statistics.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TotalRequests:   l.totalRequests,
		BlockedRequests: l.blockedRequests,
		Clients:         len(l.clients),
	}
}

// EstimateTokens roughly estimates the model tokens in text
// (about 4 characters per token).
func EstimateTokens(text string) int64 {
	return int64(len(text)+3) / 4
}
