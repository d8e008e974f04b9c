package config

import "time"

// Default configuration values.
const (
	DefaultModel           = "gemini-2.5-pro"
	DefaultMaxOutputTokens = 8192
	DefaultOllamaBaseURL   = "http://localhost:11434"
	DefaultHTTPTimeout     = 120 * time.Second

	// Harvest limits
	DefaultMaxFileBytes       = 1 << 20
	DefaultHarvestConcurrency = 8

	// Context cache
	DefaultCacheTTL         = time.Hour
	DefaultCacheDisplayName = "archon-context"

	// Watcher
	DefaultDebounceMs = 500
	DefaultMaxWatches = 1000

	// HTTP backend
	DefaultServerAddr  = ":8080"
	DefaultMaxBodySize = 64 << 20

	DefaultRequestsPerMinute = 60
	DefaultRateLimitBurst    = 10

	DefaultSSHTimeout = 30 * time.Second
)

// DefaultExtensions is the allow-set of harvested file extensions.
var DefaultExtensions = []string{".tsx", ".ts", ".js", ".jsx", ".css", ".json", ".html", ".md"}

// DefaultExcludeDirs is the deny-set of directory names skipped by the harvester:
// dependency cache, version control metadata, build output.
var DefaultExcludeDirs = []string{"node_modules", ".git", "dist"}
