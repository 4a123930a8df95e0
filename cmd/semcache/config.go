package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds the serve command's settings. Flags override file values.
type Config struct {
	Addr        string        `yaml:"addr"`
	TTL         time.Duration `yaml:"ttl"`
	MaxEntries  int           `yaml:"max_entries"`
	Threshold   string        `yaml:"threshold"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
	Compression bool          `yaml:"compression"`
}

func defaultConfig() Config {
	return Config{
		Addr:        ":8080",
		TTL:         30 * time.Minute,
		MaxEntries:  1000,
		Threshold:   "strong",
		WaitTimeout: 30 * time.Second,
		Compression: true,
	}
}

// loadConfig reads a YAML config file, falling back to defaults for any
// field the file leaves unset. An empty path returns pure defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return cfg, nil
}
