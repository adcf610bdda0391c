package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Duplicate-tool policies for the registry build.
const (
	DuplicateLast  = "last"
	DuplicateError = "error"
)

// Config root configuration
type Config struct {
	Servers   []ServerSpec    `mapstructure:"servers" json:"servers"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	Chat      ChatConfig      `mapstructure:"chat" json:"chat"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" json:"timeouts"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
}

// ServerSpec describes one MCP server launch. Specs are kept as an ordered
// list: startup order and the duplicate-tool policy both depend on it.
type ServerSpec struct {
	Name    string            `mapstructure:"name" json:"name"`
	Command string            `mapstructure:"command" json:"command"`
	Args    []string          `mapstructure:"args" json:"args,omitempty"`
	Env     map[string]string `mapstructure:"env" json:"env,omitempty"`
	Enabled *bool             `mapstructure:"enabled" json:"enabled,omitempty"`
}

// IsEnabled reports whether the spec should be launched. Enabled defaults to true.
func (s ServerSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ProvidersConfig LLM provider settings
type ProvidersConfig struct {
	OpenRouter ProviderConfig `mapstructure:"openrouter" json:"openrouter"`
	Claude     ProviderConfig `mapstructure:"claude" json:"claude"`
	OpenAI     ProviderConfig `mapstructure:"openai" json:"openai"`
	DeepSeek   ProviderConfig `mapstructure:"deepseek" json:"deepseek"`
	Ollama     ProviderConfig `mapstructure:"ollama" json:"ollama"`
}

// ProviderConfig single provider settings
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key,omitempty"`
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
}

// ChatConfig conversation engine settings
type ChatConfig struct {
	Model          string  `mapstructure:"model" json:"model"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature" json:"temperature"`
	MaxRounds      int     `mapstructure:"max_rounds" json:"max_rounds"`
	DuplicateTools string  `mapstructure:"duplicate_tools" json:"duplicate_tools"`
	SystemPrompt   bool    `mapstructure:"system_prompt" json:"system_prompt"`
}

// TimeoutsConfig protocol timeouts in seconds
type TimeoutsConfig struct {
	Handshake int `mapstructure:"handshake" json:"handshake"`
	Invoke    int `mapstructure:"invoke" json:"invoke"`
	Shutdown  int `mapstructure:"shutdown" json:"shutdown"`
}

// GatewayConfig server settings
type GatewayConfig struct {
	Host  string `mapstructure:"host" json:"host"`
	Port  int    `mapstructure:"port" json:"port"`
	Token string `mapstructure:"token" json:"token,omitempty"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
	File  string `mapstructure:"file" json:"file,omitempty"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Servers:   []ServerSpec{},
		Providers: ProvidersConfig{},
		Chat: ChatConfig{
			Model:          "openai/gpt-4o-mini",
			MaxTokens:      8192,
			Temperature:    0.7,
			MaxRounds:      20,
			DuplicateTools: DuplicateLast,
			SystemPrompt:   true,
		},
		Timeouts: TimeoutsConfig{
			Handshake: 10,
			Invoke:    60,
			Shutdown:  5,
		},
		Gateway: GatewayConfig{
			Host:  "0.0.0.0",
			Port:  8132,
			Token: "",
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigDir returns the mcpchat config directory
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".mcpchat")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads config from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MCPCHAT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i, spec := range c.Servers {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return fmt.Errorf("servers[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("servers[%d]: duplicate server name %q", i, name)
		}
		seen[name] = true
		if spec.IsEnabled() && strings.TrimSpace(spec.Command) == "" {
			return fmt.Errorf("servers[%d] (%s): command is required", i, name)
		}
	}

	ch := &c.Chat
	if ch.MaxRounds < 0 {
		return fmt.Errorf("chat.max_rounds must not be negative, got %d", ch.MaxRounds)
	}
	if ch.MaxRounds == 0 {
		ch.MaxRounds = 20
	}
	if ch.Temperature < 0 || ch.Temperature > 2.0 {
		return fmt.Errorf("chat.temperature must be between 0 and 2.0, got %f", ch.Temperature)
	}
	if ch.MaxTokens <= 0 {
		return fmt.Errorf("chat.max_tokens must be > 0, got %d", ch.MaxTokens)
	}
	policy := strings.ToLower(strings.TrimSpace(ch.DuplicateTools))
	switch policy {
	case "":
		ch.DuplicateTools = DuplicateLast
	case DuplicateLast, DuplicateError:
		ch.DuplicateTools = policy
	default:
		return fmt.Errorf("chat.duplicate_tools must be %q or %q, got %q", DuplicateLast, DuplicateError, ch.DuplicateTools)
	}

	t := &c.Timeouts
	if t.Handshake < 0 || t.Invoke < 0 || t.Shutdown < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if t.Handshake == 0 {
		t.Handshake = 10
	}
	if t.Invoke == 0 {
		t.Invoke = 60
	}
	if t.Shutdown == 0 {
		t.Shutdown = 5
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	return nil
}

// EnabledServers returns the launchable specs in configured order.
func (c *Config) EnabledServers() []ServerSpec {
	out := make([]ServerSpec, 0, len(c.Servers))
	for _, spec := range c.Servers {
		if spec.IsEnabled() {
			out = append(out, spec)
		}
	}
	return out
}
