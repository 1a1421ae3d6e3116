// Package config holds the replaybench configuration.
package config

import "fmt"

// Config holds all benchmark configuration.
type Config struct {
	// Rollout settings
	Transitions int `mapstructure:"transitions"`
	StateDim    int `mapstructure:"state_dim"`
	NumActions  int `mapstructure:"num_actions"`
	Horizon     int `mapstructure:"horizon"`
	Workers     int `mapstructure:"workers"`

	// Buffer settings
	Capacity   int   `mapstructure:"capacity"`
	Seed       int64 `mapstructure:"seed"`
	SampleSize int   `mapstructure:"sample_size"`

	// Persistence
	SnapshotPath string `mapstructure:"snapshot_path"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Transitions:  2048,
		StateDim:     4,
		NumActions:   2,
		Horizon:      50,
		Workers:      1,
		Capacity:     0, // unbounded
		Seed:         42,
		SampleSize:   32,
		SnapshotPath: "replay.snapshot",
		LogLevel:     "info",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Transitions <= 0 {
		return fmt.Errorf("transitions must be positive")
	}
	if c.StateDim <= 0 {
		return fmt.Errorf("state_dim must be positive")
	}
	if c.NumActions <= 0 {
		return fmt.Errorf("num_actions must be positive")
	}
	if c.Horizon < 2 {
		return fmt.Errorf("horizon must be at least 2")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must not be negative")
	}
	if c.SampleSize <= 0 {
		return fmt.Errorf("sample_size must be positive")
	}
	if c.SnapshotPath == "" {
		return fmt.Errorf("snapshot_path is required")
	}
	return nil
}
