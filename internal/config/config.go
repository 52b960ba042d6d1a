// Package config loads the TOML configuration shared by the command
// adapter and the bfctl host.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jcalabro/growbloom"
)

// Config is the top-level configuration.
type Config struct {
	Filter  FilterConfig  `toml:"filter"`
	Storage StorageConfig `toml:"storage"`
	Metrics MetricsConfig `toml:"metrics"`
}

// FilterConfig holds the defaults used when a filter is created implicitly.
type FilterConfig struct {
	// DefaultErrorRate is used when BF.SET creates a filter.
	DefaultErrorRate float64 `toml:"default_error_rate"`
}

// StorageConfig locates the snapshot database.
type StorageConfig struct {
	// Path of the buntdb file; ":memory:" keeps everything in memory.
	Path string `toml:"path"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Filter:  FilterConfig{DefaultErrorRate: growbloom.DefaultErrorRate},
		Storage: StorageConfig{Path: "growbloom.db"},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that cannot be clamped.
func (c Config) Validate() error {
	if r := c.Filter.DefaultErrorRate; !(r > 0 && r < 1) {
		return fmt.Errorf("config: filter.default_error_rate %v: %w", r, growbloom.ErrInvalidErrorRate)
	}
	if c.Storage.Path == "" {
		return errors.New("config: storage.path is empty")
	}
	return nil
}
