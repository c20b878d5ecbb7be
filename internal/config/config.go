// Package config loads the ingester's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Service struct {
		Name       string `yaml:"name"`
		HealthPort int    `yaml:"health_port"`
	} `yaml:"service"`

	Source struct {
		DatabaseURL         string `yaml:"database_url"`
		NetworkPassphrase   string `yaml:"network_passphrase"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	} `yaml:"source"`

	History struct {
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"history"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads and parses a YAML configuration file, applying defaults for
// unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Service.Name == "" {
		cfg.Service.Name = "stellar-history-ingester"
	}
	if cfg.Service.HealthPort == 0 {
		cfg.Service.HealthPort = 8088
	}
	if cfg.Source.PollIntervalSeconds == 0 {
		cfg.Source.PollIntervalSeconds = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Source.DatabaseURL == "" {
		return nil, fmt.Errorf("source.database_url is required")
	}
	if cfg.History.DatabaseURL == "" {
		return nil, fmt.Errorf("history.database_url is required")
	}
	if cfg.Source.NetworkPassphrase == "" {
		return nil, fmt.Errorf("source.network_passphrase is required")
	}

	return &cfg, nil
}
