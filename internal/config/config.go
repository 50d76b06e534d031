package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"
)

// Config models concierge.yml.
type Config struct {
	Matching struct {
		MinScore             float64 `yaml:"min_score"`
		MaxCandidatesPerLine int     `yaml:"max_candidates_per_line"`
	} `yaml:"matching"`
	Compiler struct {
		Currency string `yaml:"currency"`
	} `yaml:"compiler"`
	Cache struct {
		CatalogEntries int `yaml:"catalog_entries"`
	} `yaml:"cache"`
	Handoff struct {
		OpsChannel string `yaml:"ops_channel"`
	} `yaml:"handoff"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Server   struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// WebhookConfig is one alert delivery target. Events empty means all events.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with concierge config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Matching.MinScore < 0 {
		return fmt.Errorf("config.matching.min_score must be >= 0")
	}
	if c.Matching.MaxCandidatesPerLine < 1 {
		return fmt.Errorf("config.matching.max_candidates_per_line must be >= 1")
	}
	if _, err := currency.ParseISO(strings.TrimSpace(c.Compiler.Currency)); err != nil {
		return fmt.Errorf("config.compiler.currency must be an ISO 4217 code: %w", err)
	}
	if c.Cache.CatalogEntries < 1 {
		return fmt.Errorf("config.cache.catalog_entries must be >= 1")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has an empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "concierge.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `matching:
  # candidates scoring below this are ignored
  min_score: 40
  max_candidates_per_line: 3

compiler:
  currency: USD

cache:
  catalog_entries: 64

handoff:
  ops_channel: front-desk

server:
  addr: 127.0.0.1:8080
  base_path: /v1

# webhooks:
#   - url: https://hooks.example.com/concierge
#     secret: change-me
#     events: [order.created, order.escalated]
#     timeout_seconds: 5
webhooks: []
`
