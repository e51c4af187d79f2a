package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config represents the complete forgehook configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	State    StateConfig    `yaml:"state"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Provider ProviderConfig `yaml:"provider"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig defines the inbound webhook listener.
type WebhookConfig struct {
	Listen string `yaml:"listen"`

	// MaxBodySize accepts plain byte counts or KB/MB/GB suffixes (e.g. "1MB").
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// ProviderConfig defines the source-control provider this service ingests from.
type ProviderConfig struct {
	// Key is the provider identity stored on installation and repository rows.
	Key string `yaml:"key"`

	// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
	SignatureHeader string `yaml:"signature_header"`

	// EventHeader carries the event type label (push, pull_request).
	EventHeader string `yaml:"event_header"`

	// SkipCommitMarker suppresses ingestion of commits whose message
	// contains it (merge-commit convention shared with other providers).
	SkipCommitMarker string `yaml:"skip_commit_marker"`

	// CallbackURL is the externally reachable webhook endpoint, used when
	// registering hooks on repositories.
	CallbackURL string `yaml:"callback_url,omitempty"`
}

// Defaults applied when fields are omitted.
const (
	DefaultListen           = "127.0.0.1:8464"
	DefaultMaxBodySize      = 1048576 // 1 MB
	DefaultProviderKey      = "integrations:gitea"
	DefaultSignatureHeader  = "X-Gitea-Signature"
	DefaultEventHeader      = "X-Gitea-Event"
	DefaultSkipCommitMarker = "#skip-forgehook"
)

// Load reads and parses configuration from a file. Environment variables
// referenced as ${VAR} are expanded before parsing.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "forgehook"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "INFO"
	}
	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = DefaultListen
	}
	if cfg.Provider.Key == "" {
		cfg.Provider.Key = DefaultProviderKey
	}
	if cfg.Provider.SignatureHeader == "" {
		cfg.Provider.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.Provider.EventHeader == "" {
		cfg.Provider.EventHeader = DefaultEventHeader
	}
	if cfg.Provider.SkipCommitMarker == "" {
		cfg.Provider.SkipCommitMarker = DefaultSkipCommitMarker
	}
}

func validate(cfg *Config) error {
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if _, err := ParseMaxBodySize(cfg.Webhook.MaxBodySize); err != nil {
		return fmt.Errorf("webhook.max_body_size %q: %w", cfg.Webhook.MaxBodySize, err)
	}
	if cfg.Provider.CallbackURL != "" {
		u, err := url.Parse(cfg.Provider.CallbackURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("provider.callback_url %q is not an absolute URL", cfg.Provider.CallbackURL)
		}
	}
	return nil
}

// ParseMaxBodySize parses size strings like "1MB", "512KB", "2048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func ParseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(size)
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		size = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result < 0 { // Check for overflow
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
