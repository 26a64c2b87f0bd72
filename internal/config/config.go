// Package config provides YAML-based configuration loading for omni.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/llm"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "omni.yaml"

// Config is the top-level omni configuration, loaded from omni.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Model    ModelConfig    `yaml:"model"`
	Presence PresenceConfig `yaml:"presence"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Export   ExportConfig   `yaml:"export"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// InboxSize is the per-tab buffer of the cross-tab channel.
	InboxSize int `yaml:"inbox_size"`
}

// StorageConfig selects the local key/value backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql or pebble
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// ModelConfig configures the hosted model client.
type ModelConfig struct {
	Name              string        `yaml:"name"`
	Endpoint          string        `yaml:"endpoint"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	ThinkingBudget    int           `yaml:"thinking_budget"`
	FragmentTimeout   time.Duration `yaml:"fragment_timeout"`
	SystemInstruction string        `yaml:"system_instruction"`
}

// PresenceConfig controls the presence heartbeat.
type PresenceConfig struct {
	Schedule string        `yaml:"schedule"`
	TTL      time.Duration `yaml:"ttl"`
}

// MirrorConfig holds optional outbound chat mirrors.
type MirrorConfig struct {
	Slack   ChannelTarget `yaml:"slack"`
	Discord ChannelTarget `yaml:"discord"`
}

// ChannelTarget is a bot token and the channel it posts to.
type ChannelTarget struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Enabled reports whether the target is configured.
func (t ChannelTarget) Enabled() bool { return t.Token != "" }

// ExportConfig configures Gist publishing.
type ExportConfig struct {
	GitHubTokenEnv string `yaml:"github_token_env"`
}

// AuthConfig rate-limits signup and login attempts per client.
type AuthConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// APIKey returns the model API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.Model.APIKeyEnv)
}

// GitHubToken returns the Gist export token from the environment.
func (c *Config) GitHubToken() string {
	return os.Getenv(c.Export.GitHubTokenEnv)
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.InboxSize == 0 {
		c.Server.InboxSize = 64
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "sqlite":
			c.Storage.Path = "omni.db"
		case "pebble":
			c.Storage.Path = "omni-data"
		}
	}
	if c.Model.Name == "" {
		c.Model.Name = llm.DefaultModel
	}
	if c.Model.Endpoint == "" {
		c.Model.Endpoint = llm.DefaultEndpoint
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Model.ThinkingBudget == 0 {
		c.Model.ThinkingBudget = llm.DefaultThinkingBudget
	}
	if c.Model.FragmentTimeout == 0 {
		c.Model.FragmentTimeout = 60 * time.Second
	}
	if c.Model.SystemInstruction == "" {
		c.Model.SystemInstruction = llm.SystemInstruction
	}
	if c.Presence.Schedule == "" {
		c.Presence.Schedule = "@every 30s"
	}
	if c.Presence.TTL == 0 {
		c.Presence.TTL = 2 * time.Minute
	}
	if c.Export.GitHubTokenEnv == "" {
		c.Export.GitHubTokenEnv = "GITHUB_TOKEN"
	}
	if c.Auth.RPS == 0 {
		c.Auth.RPS = 1
	}
	if c.Auth.Burst == 0 {
		c.Auth.Burst = 5
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.InboxSize < 0 {
		errs = append(errs, "server.inbox_size must not be negative")
	}
	switch c.Storage.Driver {
	case "sqlite", "pebble":
		if c.Storage.Path == "" {
			errs = append(errs, "storage.path is required")
		}
	case "mysql":
		if c.Storage.DSN == "" {
			errs = append(errs, "storage.dsn is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not one of sqlite, mysql, pebble", c.Storage.Driver))
	}
	if c.Model.ThinkingBudget < 0 || c.Model.ThinkingBudget > llm.DefaultThinkingBudget {
		errs = append(errs, fmt.Sprintf("model.thinking_budget must be between 0 and %d", llm.DefaultThinkingBudget))
	}
	if c.Model.FragmentTimeout < 0 {
		errs = append(errs, "model.fragment_timeout must not be negative")
	}
	if c.Presence.TTL < 0 {
		errs = append(errs, "presence.ttl must not be negative")
	}
	if c.Mirror.Slack.Enabled() && c.Mirror.Slack.Channel == "" {
		errs = append(errs, "mirror.slack.channel is required when a token is set")
	}
	if c.Mirror.Discord.Enabled() && c.Mirror.Discord.Channel == "" {
		errs = append(errs, "mirror.discord.channel is required when a token is set")
	}
	if c.Auth.RPS < 0 || c.Auth.Burst < 0 {
		errs = append(errs, "auth.rps and auth.burst must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
