package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"archon/internal/fileutil"
)

// Load loads configuration from the default file and environment variables.
func Load() (*Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFrom loads configuration from path (optional) and environment variables.
// A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	if cfg.Model.Preset != "" && !cfg.ApplyPreset(cfg.Model.Preset) {
		return nil, fmt.Errorf("unknown model preset %q (available: %s)", cfg.Model.Preset, strings.Join(ListPresets(), ", "))
	}

	return cfg, nil
}

// GetConfigDir returns the configuration directory.
func GetConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "archon")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "archon")
}

// GetConfigPath returns the path to the config file.
func GetConfigPath() string {
	return getConfigPath()
}

func getConfigPath() string {
	dir := GetConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
// Key priority: ARCHON_API_KEY > GEMINI_API_KEY.
func loadFromEnv(cfg *Config) {
	if apiKey := os.Getenv("ARCHON_API_KEY"); apiKey != "" {
		cfg.API.GeminiKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.API.GeminiKey = apiKey
	}

	if model := os.Getenv("ARCHON_MODEL"); model != "" {
		cfg.Model.Name = model
	}

	if provider := os.Getenv("ARCHON_PROVIDER"); provider != "" {
		cfg.API.Provider = provider
	}

	if level := os.Getenv("ARCHON_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if baseURL := os.Getenv("OLLAMA_HOST"); baseURL != "" {
		if !strings.Contains(baseURL, "://") {
			baseURL = "http://" + baseURL
		}
		cfg.API.OllamaBaseURL = baseURL
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.API.GetProvider() {
	case "gemini":
		if c.API.GetGeminiKey() == "" {
			return ErrMissingAuth
		}
	case "ollama":
		if c.Model.Name == "" {
			return ErrMissingModel
		}
	default:
		return ErrUnknownProvider
	}
	if c.Harvest.Concurrency < 0 {
		return ConfigError("harvest.concurrency must not be negative")
	}
	return nil
}

// Error types for configuration validation.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth     ConfigError = "missing authentication: set GEMINI_API_KEY or api.gemini_key in the config file"
	ErrMissingModel    ConfigError = "missing model name: set model.name or ARCHON_MODEL"
	ErrUnknownProvider ConfigError = "unknown provider: api.provider must be gemini or ollama"
)

// Save writes the configuration to the default config file.
func (c *Config) Save() error {
	configPath := getConfigPath()
	if configPath == "" {
		return fmt.Errorf("could not determine config path")
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path atomically.
func (c *Config) SaveTo(configPath string) error {
	// 0700: the file may contain API keys
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := fileutil.AtomicWrite(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
