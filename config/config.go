// Package config defines the configuration surface of the kurodb storage
// engine and a YAML loader for it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/WhatTheGQlee/kurodb/pkg/logger"
	"github.com/WhatTheGQlee/kurodb/pkg/telemetry"
)

// EngineConfig holds the knobs of the storage engine core.
type EngineConfig struct {
	// DataFile is the path of the paged data file.
	DataFile string `yaml:"data_file"`
	// WALDir is the directory that holds the write-ahead log file.
	WALDir string `yaml:"wal_dir"`
	// PageSize is the fixed page size in bytes.
	PageSize int `yaml:"page_size"`
	// PoolSize is the number of frames in the buffer pool.
	PoolSize int `yaml:"pool_size"`
	// ReplacerK is the K of the LRU-K replacement policy.
	ReplacerK int `yaml:"replacer_k"`
}

// Config is the root configuration document.
type Config struct {
	Engine    EngineConfig     `yaml:"engine"`
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			DataFile:  "kurodb.db",
			WALDir:    "wal",
			PageSize:  4096,
			PoolSize:  64,
			ReplacerK: 2,
		},
		Logger: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Telemetry: telemetry.Config{
			Enabled:        false,
			ServiceName:    "kurodb",
			PrometheusPort: 9187,
		},
	}
}

// Load reads a YAML configuration file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
