package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Provider     string                    `yaml:"provider"` // key into LLMProviders
	LLMProviders map[string]ProviderConfig `yaml:"llm_providers"`
	Data         DataConfig                `yaml:"data"`
	Remote       RemoteConfig              `yaml:"remote"`
	Sync         SyncConfig                `yaml:"sync"`
	Session      SessionConfig             `yaml:"session"`
	Metrics      MetricsConfig             `yaml:"metrics"`
}

// ProviderConfig represents text-generation provider configuration
type ProviderConfig struct {
	Kind         string   `yaml:"kind"` // openai, gemini or claude
	DisplayName  string   `yaml:"display_name,omitempty"`
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url,omitempty"`
	DefaultModel string   `yaml:"default_model"`
	Models       []string `yaml:"models,omitempty"`
	Enabled      bool     `yaml:"enabled"`
	MaxTokens    int      `yaml:"max_tokens,omitempty"`
	Temperature  float64  `yaml:"temperature,omitempty"`
	Timeout      int      `yaml:"timeout,omitempty"` // seconds
}

// DataConfig represents local storage configuration
type DataConfig struct {
	Dir    string `yaml:"dir"`
	DBPath string `yaml:"db_path"`
	Debug  bool   `yaml:"debug"`
}

// RemoteConfig points at the remote relational store
type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	UserID  string `yaml:"user_id"`
}

// SyncConfig tunes the persistence synchronizer
type SyncConfig struct {
	DebounceMS        int `yaml:"debounce_ms"`
	RemoteConcurrency int `yaml:"remote_concurrency"`
}

// SessionConfig holds the chat session switches
type SessionConfig struct {
	Pro             bool `yaml:"pro"`
	HandsFree       bool `yaml:"hands_free"`
	CooldownMinutes int  `yaml:"cooldown_minutes"`
	HistoryLimit    int  `yaml:"history_limit"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables it
}

// Debounce returns the save debounce interval
func (c SyncConfig) Debounce() time.Duration {
	if c.DebounceMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Cooldown returns the quota cooldown window
func (c SessionConfig) Cooldown() time.Duration {
	if c.CooldownMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Expand paths
	config.Data.Dir = expandPath(config.Data.Dir)
	config.Data.DBPath = expandPath(config.Data.DBPath)

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ActiveProvider returns the selected provider configuration
func (c *Config) ActiveProvider() (string, ProviderConfig, error) {
	pc, ok := c.LLMProviders[c.Provider]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("provider %q is not configured", c.Provider)
	}
	if !pc.Enabled {
		return "", ProviderConfig{}, fmt.Errorf("provider %q is disabled", c.Provider)
	}
	return c.Provider, pc, nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	// Expand ~
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	// Make absolute
	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to current directory
		return "./config/companion.yaml"
	}

	return filepath.Join(configDir, "game-companion", "config.yaml")
}

// DefaultConfig returns the configuration written on first start
func DefaultConfig() *Config {
	return &Config{
		Provider: "gemini",
		LLMProviders: map[string]ProviderConfig{
			"gemini": {
				Kind:         "gemini",
				DisplayName:  "Gemini",
				DefaultModel: "gemini-2.5-flash",
				Models:       []string{"gemini-2.5-flash", "gemini-2.5-pro"},
				MaxTokens:    8192,
				Temperature:  0.7,
				Enabled:      true,
			},
			"openai": {
				Kind:         "openai",
				DisplayName:  "OpenAI",
				BaseURL:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
				Enabled:      false,
			},
			"ollama": {
				Kind:         "openai",
				DisplayName:  "Ollama",
				BaseURL:      "http://localhost:11434/v1",
				DefaultModel: "llama3.2-vision",
				Enabled:      false,
			},
			"claude": {
				Kind:         "claude",
				DisplayName:  "Claude",
				BaseURL:      "https://api.anthropic.com/v1",
				DefaultModel: "claude-3-5-sonnet-20241022",
				MaxTokens:    4096,
				Temperature:  0.7,
				Enabled:      false,
			},
		},
		Data: DataConfig{
			Dir:    "./data",
			DBPath: "./data/companion.db",
		},
		Sync: SyncConfig{
			DebounceMS:        500,
			RemoteConcurrency: 4,
		},
		Session: SessionConfig{
			CooldownMinutes: 60,
			HistoryLimit:    20,
		},
	}
}

// EnsureDefaultConfig creates a default config file if it doesn't exist
func EnsureDefaultConfig() (string, error) {
	configPath := GetConfigPath()

	// Check if config exists
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	if err := SaveConfig(configPath, DefaultConfig()); err != nil {
		return "", err
	}

	return configPath, nil
}
