// Package config loads the novacore.yaml settings file for the cmd/novacore
// binary: buffer pool capacity, data directory and log level.
package config

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

// Config is the full set of settings the cmd/novacore binary reads out of
// novacore.yaml. The storage/lock/txn core itself never depends on viper;
// only this package does.
type Config struct {
	BufferPool struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"buffer_pool"`
	Storage struct {
		DataDir string `mapstructure:"data_dir"`
	} `mapstructure:"storage"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads and parses a novacore.yaml config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("buffer_pool.capacity", 128)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &cfg, nil
}

// SlogLevel maps the configured textual log level to a slog.Level,
// defaulting to Info on an unrecognised value.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
