// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Zero values are filled in by
// defaults before validation.
type Config struct {
	Listen string      `yaml:"listen"`
	Log    LogConfig   `yaml:"log"`
	Cache  CacheConfig `yaml:"cache"`
	Queue  QueueConfig `yaml:"queue"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type QueueConfig struct {
	// Store is the path of the durable queue database.
	Store string `yaml:"store"`
	// Prefix namespaces the queue names of this deployment.
	Prefix string `yaml:"prefix"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen: ":8082",
		Log:    LogConfig{Level: "info"},
		Cache:  CacheConfig{TTL: 15 * time.Second},
		Queue:  QueueConfig{Store: "sandgraph-queue.db"},
	}
}

// Load reads path, overlays it on the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Queue.Store == "" {
		return fmt.Errorf("config: queue store path must not be empty")
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
