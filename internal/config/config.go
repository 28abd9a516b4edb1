// ABOUTME: Configuration loading and parsing for mesa-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mesa-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assistant AssistantConfig `yaml:"assistant"`
	Backend   BackendConfig   `yaml:"backend"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Database  DatabaseConfig  `yaml:"database"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Report    ReportConfig    `yaml:"report"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the inbound webhook listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// OutboundURL is the channel connector endpoint outbound messages are
	// posted to. Empty means log-only delivery.
	OutboundURL string `yaml:"outbound_url"`
}

// AssistantConfig holds generative assistant call configuration
type AssistantConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	AssistantID   string `yaml:"assistant_id"`
	ControlPrompt string `yaml:"control_prompt"`
	MaxAttempts   int    `yaml:"max_attempts"`

	Timeout time.Duration `yaml:"-"`
	Backoff time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
	BackoffRaw string `yaml:"backoff"`
}

// BackendConfig holds reservation backend configuration
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// DispatchConfig holds command processing configuration
type DispatchConfig struct {
	MaxFeedbackDepth int    `yaml:"max_feedback_depth"`
	Timezone         string `yaml:"timezone"`
}

// DatabaseConfig holds the ledger database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DedupeConfig holds inbound message deduplication configuration
type DedupeConfig struct {
	MaxSize int `yaml:"max_size"`

	TTL time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// ReportConfig holds operator notification configuration
type ReportConfig struct {
	OperatorConversation string `yaml:"operator_conversation"`
	WebhookURL           string `yaml:"webhook_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values the file may omit.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Assistant.Timeout == 0 {
		c.Assistant.Timeout = 2 * time.Minute
	}
	if c.Assistant.Backoff == 0 {
		c.Assistant.Backoff = 2 * time.Second
	}
	if c.Assistant.MaxAttempts == 0 {
		c.Assistant.MaxAttempts = 5
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.Dispatch.MaxFeedbackDepth == 0 {
		c.Dispatch.MaxFeedbackDepth = 5
	}
	if c.Dispatch.Timezone == "" {
		c.Dispatch.Timezone = "America/Argentina/Buenos_Aires"
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 10 * time.Minute
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 10000
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Assistant.BaseURL == "" {
		return fmt.Errorf("assistant.base_url is required")
	}
	if c.Assistant.AssistantID == "" {
		return fmt.Errorf("assistant.assistant_id is required")
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := time.LoadLocation(c.Dispatch.Timezone); err != nil {
		return fmt.Errorf("dispatch.timezone %q is invalid: %w", c.Dispatch.Timezone, err)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Assistant.TimeoutRaw != "" {
		cfg.Assistant.Timeout, err = time.ParseDuration(cfg.Assistant.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing assistant.timeout %q: %w", cfg.Assistant.TimeoutRaw, err)
		}
	}

	if cfg.Assistant.BackoffRaw != "" {
		cfg.Assistant.Backoff, err = time.ParseDuration(cfg.Assistant.BackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing assistant.backoff %q: %w", cfg.Assistant.BackoffRaw, err)
		}
	}

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}
