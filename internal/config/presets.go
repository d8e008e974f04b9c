package config

import (
	"sort"
	"strings"
)

// ModelPreset defines a model preset configuration.
type ModelPreset struct {
	Provider        string
	Name            string
	Temperature     float32
	MaxOutputTokens int32
}

// ModelPresets contains predefined model configurations.
var ModelPresets = map[string]ModelPreset{
	"architect": {
		Provider:        "gemini",
		Name:            "gemini-2.5-pro",
		Temperature:     1.0,
		MaxOutputTokens: 8192,
	},
	"fast": {
		Provider:        "gemini",
		Name:            "gemini-2.5-flash",
		Temperature:     1.0,
		MaxOutputTokens: 8192,
	},
	"local": {
		Provider:        "ollama",
		Name:            "qwen2.5-coder",
		Temperature:     0.7,
		MaxOutputTokens: 8192,
	},
}

// ApplyPreset applies a model preset to the configuration.
// Returns false if the preset is unknown.
func (c *Config) ApplyPreset(preset string) bool {
	p, ok := ModelPresets[preset]
	if !ok {
		return false
	}

	c.API.Provider = p.Provider
	c.Model.Preset = preset
	c.Model.Name = p.Name
	c.Model.Temperature = p.Temperature
	c.Model.MaxOutputTokens = p.MaxOutputTokens
	return true
}

// ListPresets returns all available preset names, sorted.
func ListPresets() []string {
	presets := make([]string, 0, len(ModelPresets))
	for name := range ModelPresets {
		presets = append(presets, name)
	}
	sort.Strings(presets)
	return presets
}

// DetectProvider determines the provider from a model name.
func DetectProvider(modelName string) string {
	lower := strings.ToLower(modelName)
	if lower == "" || strings.HasPrefix(lower, "gemini") || strings.HasPrefix(lower, "models/") {
		return "gemini"
	}
	return "ollama"
}
