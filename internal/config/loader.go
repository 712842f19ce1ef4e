// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Loader handles on-disk HJSON tuning-config loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the on-disk tuning config at path. A missing
// file is not an error — on-disk config is optional tuning on top of
// the environment-variable-driven primary config (spec §6) — it
// returns a zero Config instead.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse hjson: %w", err)
	}

	// Round-trip through encoding/json for type-safe struct decoding —
	// hjson-go only decodes into interface{} trees directly.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads the on-disk tuning config, applies env-var
// overrides (spec §6's primary config surface), then fills in defaults
// for anything still unset.
func (l *Loader) LoadWithDefaults(path string) (*Config, error) {
	cfg, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches the current directory for an on-disk tuning file,
// preferring HJSON.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{"noaide.hjson", "noaide.json"}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("config: no tuning file found (looked for %v)", candidates)
}

// applyDefaults fills in every field the on-disk file and environment
// left unset.
func applyDefaults(cfg *Config) {
	if len(cfg.Watch.Paths) == 0 {
		cwd, err := os.Getwd()
		if err == nil {
			cfg.Watch.Paths = []string{cwd}
		}
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = "100ms"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./noaide.db"
	}

	if cfg.Transport.Port == 0 {
		cfg.Transport.Port = 4433
	}
	if cfg.Transport.ReplayCapacity == 0 {
		cfg.Transport.ReplayCapacity = 1000
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Bus.DedupRingCapacity == 0 {
		cfg.Bus.DedupRingCapacity = 1000
	}
}
