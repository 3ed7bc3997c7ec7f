// Package config handles application configuration for both the node and
// the relay server (spec.md §6.1, ambient and out of scope for hardening
// but still present), grounded on the teacher's struct-of-sub-configs shape
// in Klingon-tech/klingnet-chain's config/config.go.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AccountSeed is one entry of the initial_state map (spec.md §6
// "initial_state (map identifier → {balance, stake})").
type AccountSeed struct {
	Balance float64 `yaml:"balance"`
	Stake   float64 `yaml:"stake"`
}

// ServerConfig holds the relay's listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StepConfig holds the relay's periodic clock-tick interval.
type StepConfig struct {
	IntervalSeconds float64 `yaml:"interval"`
}

// SyncConfig holds the node's startup bootstrap-sync timeout.
type SyncConfig struct {
	TimeoutSeconds float64 `yaml:"timeout"`
}

// VoteConfig holds the node's block-ratification voting parameters.
type VoteConfig struct {
	Enabled        bool    `yaml:"enabled"`
	TimeoutSeconds float64 `yaml:"timeout"`
	Threshold      float64 `yaml:"threshold"`
}

// DetectorConfig holds the double-spend detector's tunables (spec.md §4.5
// "Configuration").
type DetectorConfig struct {
	DetectionWindowSeconds float64 `yaml:"detection_window"`
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	AlertLogPath           string  `yaml:"alert_log_path"` // "" disables the sqlite audit log
}

// LogConfig mirrors the teacher's LogConfig shape, generalized with an
// optional rotation size for the lumberjack writer.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Config is the top-level configuration for either a node or relay
// process; a deployment typically only populates the sections it uses.
type Config struct {
	NodeID       string                 `yaml:"node_id"`
	Server       ServerConfig           `yaml:"server"`
	Step         StepConfig             `yaml:"step"`
	Sync         SyncConfig             `yaml:"sync"`
	Vote         VoteConfig             `yaml:"vote"`
	Detector     DetectorConfig         `yaml:"detector"`
	Log          LogConfig              `yaml:"log"`
	InitialState map[string]AccountSeed `yaml:"initial_state"`
	DataDir      string                 `yaml:"data_dir"`
	RelayAddr    string                 `yaml:"relay_addr"` // node's dial target
}

// Load reads and parses a YAML configuration file, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Step.IntervalSeconds <= 0 {
		c.Step.IntervalSeconds = 5
	}
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = 2
	}
	if c.Vote.TimeoutSeconds <= 0 {
		c.Vote.TimeoutSeconds = 5
	}
	if c.Vote.Threshold <= 0 {
		c.Vote.Threshold = 0.66
	}
	if c.Detector.DetectionWindowSeconds <= 0 {
		c.Detector.DetectionWindowSeconds = 60
	}
	if c.Detector.SimilarityThreshold <= 0 {
		c.Detector.SimilarityThreshold = 0.5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
}

// Validate checks the invariants spec.md §7's FatalConfigError exists to
// catch: a missing listen address or an out-of-range vote threshold exits
// the process with a non-zero code rather than running in a broken state.
func (c *Config) Validate() error {
	if c.Server.Port != 0 && c.Server.Host == "" {
		return fmt.Errorf("server.host is required when server.port is set")
	}
	if c.Vote.Threshold < 0 || c.Vote.Threshold > 1 {
		return fmt.Errorf("vote.threshold must be in [0,1], got %v", c.Vote.Threshold)
	}
	if c.Detector.SimilarityThreshold < 0 || c.Detector.SimilarityThreshold > 1 {
		return fmt.Errorf("detector.similarity_threshold must be in [0,1], got %v", c.Detector.SimilarityThreshold)
	}
	for id, seed := range c.InitialState {
		if seed.Balance < 0 || seed.Stake < 0 {
			return fmt.Errorf("initial_state[%s]: balance and stake must be non-negative", id)
		}
	}
	return nil
}
