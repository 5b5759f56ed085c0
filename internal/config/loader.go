package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands ${VAR} environment references,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a Config with all defaults applied, used when no config
// file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 17420
	}
	if cfg.Engine.DataDir == "" {
		cfg.Engine.DataDir = filepath.Join(WeftPath(), "tasks")
	}
	if cfg.Engine.Store == "" {
		cfg.Engine.Store = "file"
	}
	if cfg.Engine.SQLitePath == "" {
		cfg.Engine.SQLitePath = filepath.Join(WeftPath(), "weft.db")
	}
	if cfg.Engine.StepTimeout == 0 {
		cfg.Engine.StepTimeout = Duration(5 * time.Minute)
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Assessment.StrengthThreshold == 0 {
		cfg.Assessment.StrengthThreshold = 0.9
	}
	if cfg.Assessment.ImprovementThreshold == 0 {
		cfg.Assessment.ImprovementThreshold = 0.7
	}
	for i := range cfg.Schedules {
		if cfg.Schedules[i].Cooldown == 0 {
			cfg.Schedules[i].Cooldown = Duration(time.Minute)
		}
	}
}
