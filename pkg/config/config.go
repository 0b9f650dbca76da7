// Package config loads server settings from a YAML file, with sane defaults
// when the file or individual keys are absent.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// ListenAddress is the TCP bind address for the fitness protocol.
	ListenAddress string `yaml:"listen_address"`

	// DatabasePath is the SQLite file backing the store.
	DatabasePath string `yaml:"database_path"`

	// NutritionPath is the JSON file of nutrition plans, created with
	// defaults on first run if missing.
	NutritionPath string `yaml:"nutrition_path"`

	// ReadChunkSize bounds a single read from a client connection.
	ReadChunkSize int `yaml:"read_chunk_size"`

	// AcceptPollInterval bounds how long the accept loop blocks before
	// re-checking for shutdown.
	AcceptPollInterval time.Duration `yaml:"accept_poll_interval"`

	Websocket WebsocketConfig `yaml:"websocket"`
}

type WebsocketConfig struct {
	// Enabled turns the WebSocket gateway on.
	Enabled bool `yaml:"enabled"`

	ListenAddress  string `yaml:"listen_address"`
	ListenEndpoint string `yaml:"listen_endpoint"`

	// AllowAllHosts skips Origin checking on upgrade.
	AllowAllHosts bool `yaml:"allow_all_hosts"`

	AllowlistedHosts []string `yaml:"allowlisted_hosts"`
	DenylistedHosts  []string `yaml:"denylisted_hosts"`
}

func Default() Config {
	return Config{
		ListenAddress:      "0.0.0.0:9000",
		DatabasePath:       "fitness.db",
		NutritionPath:      "nutrition_plans.json",
		ReadChunkSize:      1024,
		AcceptPollInterval: time.Second,
		Websocket: WebsocketConfig{
			ListenAddress:  "0.0.0.0:9001",
			ListenEndpoint: "/fitness",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.ListenAddress == "" {
		return cfg, fmt.Errorf("config %s: listen_address must not be empty", path)
	}
	if cfg.DatabasePath == "" {
		return cfg, fmt.Errorf("config %s: database_path must not be empty", path)
	}
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = Default().ReadChunkSize
	}
	if cfg.AcceptPollInterval <= 0 {
		cfg.AcceptPollInterval = Default().AcceptPollInterval
	}

	return cfg, nil
}
