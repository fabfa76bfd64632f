package ratelimiter

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Redis describes how to reach the coordination store. Addrs with more
// than one entry configures a ShardedStore, one shard per address, via
// BuildStore.
type Redis struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

// Config is the full configuration surface: the master enable switch, the
// ring length, and the set of resources with verbose per-slot logging
// turned on. Per-call QPS is not part of Config; it is supplied fresh on
// every TryAcquire, since it may change without a restart.
type Config struct {
	Enabled         bool     `yaml:"enabled"`
	WindowSize      int      `yaml:"window_size"`
	LogResourceKeys []string `yaml:"log_resource_keys"`
	Redis           Redis    `yaml:"redis"`
}

// Load reads a Config from a YAML file at path, applying defaults for
// anything left unset (a non-positive window size becomes 30, an empty
// address list becomes localhost:6379); values are not otherwise checked. Configuration absent or malformed
// never panics; Load returns an error and the caller decides whether to
// fall back to DefaultConfig.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// DefaultConfig returns the defaults: disabled (fail-open), a 30-second
// window, and no verbose logging.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    false,
		WindowSize: 30,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 30
	}
	if len(cfg.Redis.Addrs) == 0 {
		cfg.Redis.Addrs = []string{"localhost:6379"}
	}
}
