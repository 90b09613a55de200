// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

var validate = validator.New()

// Load reads, decodes and validates a configuration file. Validation
// failures surface as core.ErrConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %v: %w", err, core.ErrConfig)
	}
	applyDefaults(cfg)
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %v: %w", err, core.ErrConfig)
	}
	if err := checkBackend(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Timeout <= 0 {
		cfg.Database.Timeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func checkBackend(cfg *Config) error {
	switch cfg.Database.Kind {
	case "badger":
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for the badger backend: %w", core.ErrConfig)
		}
	case "http":
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for the http backend: %w", core.ErrConfig)
		}
	}
	names := map[string]bool{}
	for _, t := range cfg.Tasks {
		if names[t.Name] {
			return fmt.Errorf("duplicate task name %q: %w", t.Name, core.ErrConfig)
		}
		names[t.Name] = true
	}
	return nil
}
