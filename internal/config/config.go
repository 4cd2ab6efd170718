package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models phaseline.yml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Phases    PhaseDefaults   `yaml:"phases"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
}

type DatabaseConfig struct {
	Workspace   string        `yaml:"workspace"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PhaseDefaults are the global transition thresholds a project's
// PhaseConfiguration may override.
type PhaseDefaults struct {
	DefaultTimezone string        `yaml:"default_timezone"`
	ActiveGrace     time.Duration `yaml:"active_grace"`
	PostShowGrace   time.Duration `yaml:"post_show_grace"`
}

// ReadinessConfig.Minimums enables the "configured" status for a category
// once its count reaches the minimum. Zero disables it.
type ReadinessConfig struct {
	Minimums map[string]int `yaml:"minimums"`
}

type SchedulerConfig struct {
	Workers     int           `yaml:"workers"`
	TickTimeout time.Duration `yaml:"tick_timeout"`
	Interval    time.Duration `yaml:"interval"`
}

type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	Stdout  bool `yaml:"stdout"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "off": true}

var validCategories = map[string]bool{"locations": true, "roles": true, "team": true, "talent": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Log.Level != "" && !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("config.log.level %q is not a log level", c.Log.Level)
	}
	if tz := c.Phases.DefaultTimezone; tz != "" {
		if tz == "Local" {
			return fmt.Errorf("config.phases.default_timezone %q is not a zone identifier", tz)
		}
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("config.phases.default_timezone: %w", err)
		}
	}
	if c.Phases.ActiveGrace < 0 {
		return fmt.Errorf("config.phases.active_grace must not be negative")
	}
	if c.Phases.PostShowGrace < 0 {
		return fmt.Errorf("config.phases.post_show_grace must not be negative")
	}
	for cat, min := range c.Readiness.Minimums {
		if !validCategories[cat] {
			return fmt.Errorf("config.readiness.minimums has unknown category %s", cat)
		}
		if min < 0 {
			return fmt.Errorf("config.readiness.minimums.%s must not be negative", cat)
		}
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("config.scheduler.workers must not be negative")
	}
	if c.Scheduler.TickTimeout < 0 || c.Scheduler.Interval < 0 {
		return fmt.Errorf("config.scheduler durations must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d].events contains an empty entry", i)
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
	return filepath.Join(workspace, "phaseline.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config on top of the defaults and validates it.
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

// Minimum returns the configured minimum for a readiness category.
func (r ReadinessConfig) Minimum(category string) int {
	return r.Minimums[category]
}

const defaultTemplate = `database:
  workspace: .
  busy_timeout: 5s

server:
  addr: 127.0.0.1:8080
  base_path: /v1

log:
  level: info
  json: false

phases:
  default_timezone: UTC
  active_grace: 0s
  post_show_grace: 0s

readiness:
  minimums: {}

scheduler:
  workers: 4
  tick_timeout: 2m
  interval: 0s

telemetry:
  enabled: false
  stdout: false

webhooks: []
`
