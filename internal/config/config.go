package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
	Engine          EngineConfig              `mapstructure:"engine"`
	Debug           bool                      `mapstructure:"debug"`
}

// ProviderConfig describes one configured provider. CredentialRef is an
// opaque reference into the credential store; the config file never holds
// the secret itself.
type ProviderConfig struct {
	ID            string  `mapstructure:"id"`
	Kind          string  `mapstructure:"kind"` // anthropic, openai, gemini, openai-compat
	CredentialRef string  `mapstructure:"credential_ref"`
	BaseURL       string  `mapstructure:"base_url"`
	Model         string  `mapstructure:"model"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Temperature   float64 `mapstructure:"temperature"`
}

// EngineConfig tunes the orchestration loop. Zero values fall back to the
// engine defaults.
type EngineConfig struct {
	MaxRounds         int           `mapstructure:"max_rounds"`
	TruncationRetries int           `mapstructure:"truncation_retries"`
	ToolTimeout       time.Duration `mapstructure:"tool_timeout"`
	StallWindow       time.Duration `mapstructure:"stall_window"`
	WindowTurns       int           `mapstructure:"window_turns"`
	ToolResultLimit   int           `mapstructure:"tool_result_limit"`
	ToolArgLimit      int           `mapstructure:"tool_arg_limit"`
	ImageTurns        int           `mapstructure:"image_turns"`
}

// Load reads config.yaml from the config dir (and the working directory as
// a fallback). A missing file yields the defaults.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}
	return loadFrom(configDir)
}

func loadFrom(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")
	v.SetEnvPrefix("QUILL")
	v.AutomaticEnv()

	v.SetDefault("default_provider", "anthropic")
	v.SetDefault("engine.max_rounds", 10)
	v.SetDefault("engine.truncation_retries", 2)
	v.SetDefault("engine.tool_timeout", "20s")
	v.SetDefault("engine.stall_window", "30s")
	v.SetDefault("engine.window_turns", 40)
	v.SetDefault("engine.tool_result_limit", 8000)
	v.SetDefault("engine.tool_arg_limit", 2000)
	v.SetDefault("engine.image_turns", 2)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	for name, provider := range cfg.Providers {
		if provider.ID == "" {
			provider.ID = name
		}
		if provider.Kind == "" {
			provider.Kind = name
		}
		if provider.CredentialRef == "" {
			provider.CredentialRef = "ai-key:" + provider.ID
		}
		cfg.Providers[name] = provider
	}
	return &cfg, nil
}

// Provider returns the named provider config, or the default provider when
// name is empty.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	provider, ok := c.Providers[name]
	if !ok {
		if builtin, found := builtinProvider(name); found {
			return builtin, nil
		}
		return ProviderConfig{}, fmt.Errorf("provider %q not configured", name)
	}
	return provider, nil
}

// builtinProvider supplies working defaults for the well-known kinds so a
// fresh install can talk to a provider after only storing a credential.
func builtinProvider(name string) (ProviderConfig, bool) {
	base := ProviderConfig{ID: name, Kind: name, CredentialRef: "ai-key:" + name}
	switch name {
	case "anthropic":
		base.Model = "claude-sonnet-4-5"
	case "openai":
		base.Model = "gpt-5.2"
	case "gemini":
		base.Model = "gemini-3-flash-preview"
	case "ollama":
		base.Kind = "openai-compat"
		base.BaseURL = "http://localhost:11434/v1"
	default:
		return ProviderConfig{}, false
	}
	return base, true
}

// GetConfigDir returns the XDG config directory for quill. Uses
// $XDG_CONFIG_HOME if set, otherwise ~/.config.
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "quill"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "quill"), nil
}

// GetConfigPath returns the path where the config file should be located.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for quill (debug logs, session
// database). Uses $XDG_DATA_HOME if set, otherwise ~/.local/share.
func GetDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "quill")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "quill-data")
	}
	return filepath.Join(homeDir, ".local", "share", "quill")
}

// Exists returns true if a config file exists.
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
