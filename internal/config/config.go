package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models taskline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Webhooks struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"webhooks"`
	Mail struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		From string `yaml:"from"`
	} `yaml:"mail"`
	DueSoon struct {
		WindowHours     int `yaml:"window_hours"`
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"due_soon"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Webhooks.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.webhooks.timeout_seconds must be positive")
	}
	if c.DueSoon.WindowHours < 0 {
		return fmt.Errorf("config.due_soon.window_hours must not be negative")
	}
	if c.DueSoon.IntervalSeconds < 0 {
		return fmt.Errorf("config.due_soon.interval_seconds must not be negative")
	}
	if c.Mail.Host != "" && c.Mail.From == "" {
		return fmt.Errorf("config.mail.from is required when mail.host is set")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// DefaultYAML returns the annotated default config template.
func DefaultYAML() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
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

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret: ""
  allow_legacy_actor_header: false

webhooks:
  timeout_seconds: 5

mail:
  host: ""
  port: 25
  from: ""

due_soon:
  window_hours: 24
  interval_seconds: 60
`
