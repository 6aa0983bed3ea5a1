// Package config handles lifetracker configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/lifetracker/internal/email"
	"github.com/nugget/lifetracker/internal/prompts"
	"github.com/nugget/lifetracker/internal/store/postgres"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/lifetracker/config.yaml, /etc/lifetracker/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lifetracker", "config.yaml"))
	}

	paths = append(paths, "/etc/lifetracker/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Config holds all lifetracker configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	SMTP       email.Config     `yaml:"smtp"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
	Auth       AuthConfig       `yaml:"auth"`
	MCP        MCPConfig        `yaml:"mcp"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Addr is the host:port the API server binds.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Address, l.Port)
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver     string          `yaml:"driver"` // sqlite (default) or postgres
	SQLitePath string          `yaml:"sqlite_path"`
	Postgres   postgres.Config `yaml:"postgres"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic (default) or ollama
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// MaxIterations bounds model round-trips per chat turn.
	MaxIterations int `yaml:"max_iterations"`
}

// NewsletterConfig tunes the newsletter composer and runner.
type NewsletterConfig struct {
	DefaultPersona string `yaml:"default_persona"`

	// Interval between automatic sends to all subscribers. Zero disables
	// the runner.
	Interval time.Duration `yaml:"interval"`

	HistoryLimit int `yaml:"history_limit"`

	UnsubscribeSecret string `yaml:"unsubscribe_secret"`

	// PublicURL is the externally reachable base URL used in
	// unsubscribe links.
	PublicURL string `yaml:"public_url"`
}

// AuthConfig configures bearer tokens.
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// MCPConfig configures the stdio MCP bridge.
type MCPConfig struct {
	// UserEmail is the account every MCP tool call acts on.
	UserEmail string `yaml:"user_email"`
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "lifetracker.db"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderAnthropic
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case ProviderOllama:
			c.LLM.Model = "qwen3:4b"
		default:
			c.LLM.Model = "claude-sonnet-4-20250514"
		}
	}
	if c.LLM.MaxIterations == 0 {
		c.LLM.MaxIterations = 5
	}
	if c.Newsletter.DefaultPersona == "" {
		c.Newsletter.DefaultPersona = string(prompts.PersonaMentor)
	}
	if c.Newsletter.HistoryLimit == 0 {
		c.Newsletter.HistoryLimit = 3
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	c.SMTP.ApplyDefaults()
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q unknown (valid: sqlite, postgres)", c.Storage.Driver)
	}

	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("llm.provider %q unknown (valid: anthropic, ollama)", c.LLM.Provider)
	}
	if c.LLM.MaxIterations < 1 {
		return fmt.Errorf("llm.max_iterations must be at least 1")
	}

	if _, err := prompts.ParsePersona(c.Newsletter.DefaultPersona); err != nil {
		return fmt.Errorf("newsletter.default_persona: %w", err)
	}
	if c.Newsletter.Interval < 0 {
		return fmt.Errorf("newsletter.interval must not be negative")
	}
	if c.Newsletter.PublicURL != "" && c.Newsletter.UnsubscribeSecret == "" {
		return fmt.Errorf("newsletter.unsubscribe_secret is required when newsletter.public_url is set")
	}

	if err := c.SMTP.Validate(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
