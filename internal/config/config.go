package config

import "time"

// Config represents the main application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Model   ModelConfig   `yaml:"model"`
	Harvest HarvestConfig `yaml:"harvest"`
	Cache   CacheConfig   `yaml:"cache"`
	Watcher WatcherConfig `yaml:"watcher"`
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds settings for the remote reasoning and caching endpoints.
type APIConfig struct {
	// Legacy single key, used when GeminiKey is empty.
	APIKey string `yaml:"api_key,omitempty"`

	GeminiKey string `yaml:"gemini_key,omitempty"`
	OllamaKey string `yaml:"ollama_key,omitempty"` // Optional, for remote Ollama servers with auth

	// Overrides the Gemini API endpoint, e.g. for a proxy.
	GeminiBaseURL string `yaml:"gemini_base_url,omitempty"`

	// Ollama server URL (default: http://localhost:11434)
	OllamaBaseURL string `yaml:"ollama_base_url,omitempty"`

	// Reasoning provider: gemini or ollama (default: gemini)
	Provider string `yaml:"provider"`

	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// GetGeminiKey returns the Gemini key, falling back to the legacy field.
func (c *APIConfig) GetGeminiKey() string {
	if c.GeminiKey != "" {
		return c.GeminiKey
	}
	return c.APIKey
}

// GetProvider returns the active provider name.
func (c *APIConfig) GetProvider() string {
	if c.Provider == "" {
		return "gemini"
	}
	return c.Provider
}

// ModelConfig holds model-related settings.
type ModelConfig struct {
	Preset string `yaml:"preset"`

	// Name is used for caching, architect and chat requests alike;
	// a context cache can only be read by the model that created it.
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// HarvestConfig controls which files make up the grounding document.
type HarvestConfig struct {
	Extensions     []string `yaml:"extensions"`
	ExcludeDirs    []string `yaml:"exclude_dirs"`
	IgnorePatterns []string `yaml:"ignore_patterns"` // doublestar globs, root-relative
	MaxFileBytes   int64    `yaml:"max_file_bytes"`  // 0 = unbounded
	MaxTotalBytes  int64    `yaml:"max_total_bytes"` // 0 = unbounded
	Concurrency    int      `yaml:"concurrency"`
}

// CacheConfig holds context cache settings.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TTL         time.Duration `yaml:"ttl"`
	DisplayName string        `yaml:"display_name"`
}

// WatcherConfig holds file watcher settings.
type WatcherConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms"`
	MaxWatches int  `yaml:"max_watches"`
}

// ServerConfig holds settings for the HTTP backend.
type ServerConfig struct {
	Addr        string          `yaml:"addr"`
	AllowOrigin string          `yaml:"allow_origin"`
	MaxBodySize int64           `yaml:"max_body_size"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles the reasoning endpoints per client address.
type RateLimitConfig struct {
	Enabled           bool  `yaml:"enabled"`
	RequestsPerMinute int   `yaml:"requests_per_minute"`
	BurstSize         int   `yaml:"burst_size"`
	TokensPerMinute   int64 `yaml:"tokens_per_minute"` // 0 = no token budget
}

// StoreConfig holds credentials for remote project stores.
type StoreConfig struct {
	SFTP SFTPConfig `yaml:"sftp"`
	S3   S3Config   `yaml:"s3"`
}

// SFTPConfig holds SSH settings for sftp:// project roots.
type SFTPConfig struct {
	KeyPath        string        `yaml:"key_path"`
	KeyPassphrase  string        `yaml:"key_passphrase,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	KnownHostsPath string        `yaml:"known_hosts_path"`
	Timeout        time.Duration `yaml:"timeout"`
}

// S3Config holds settings for s3:// project roots.
type S3Config struct {
	Endpoint     string `yaml:"endpoint"` // empty = AWS default
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key,omitempty"`
	SecretKey    string `yaml:"secret_key,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"` // write archon.log in the config directory
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:      "gemini",
			OllamaBaseURL: DefaultOllamaBaseURL,
			HTTPTimeout:   DefaultHTTPTimeout,
		},
		Model: ModelConfig{
			Name:            DefaultModel,
			Temperature:     1.0,
			MaxOutputTokens: DefaultMaxOutputTokens,
		},
		Harvest: HarvestConfig{
			Extensions:   append([]string(nil), DefaultExtensions...),
			ExcludeDirs:  append([]string(nil), DefaultExcludeDirs...),
			MaxFileBytes: DefaultMaxFileBytes,
			Concurrency:  DefaultHarvestConcurrency,
		},
		Cache: CacheConfig{
			Enabled:     true,
			TTL:         DefaultCacheTTL,
			DisplayName: DefaultCacheDisplayName,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: DefaultDebounceMs,
			MaxWatches: DefaultMaxWatches,
		},
		Server: ServerConfig{
			Addr:        DefaultServerAddr,
			AllowOrigin: "*",
			MaxBodySize: DefaultMaxBodySize,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: DefaultRequestsPerMinute,
				BurstSize:         DefaultRateLimitBurst,
			},
		},
		Store: StoreConfig{
			SFTP: SFTPConfig{
				Timeout: DefaultSSHTimeout,
			},
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}
