// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/issacting93/Cartographer/services/atlas/constraints"
)

// Thresholds holds the tunable text-matching floors of the constraint
// tracker. Zero values mean the package defaults.
type Thresholds struct {
	RepairMatch      float64 `yaml:"repair_match"`
	ViolationJaccard float64 `yaml:"violation_jaccard"`
	ViolationOverlap float64 `yaml:"violation_overlap"`
}

// Config is the pipeline configuration, loaded from YAML with env
// overrides on top.
type Config struct {
	// Model names the semantic classifier model.
	Model string `yaml:"model"`

	// Concurrency bounds conversations in flight during a batch run.
	Concurrency int `yaml:"concurrency"`

	// MinTurns is the minimum message count per conversation.
	MinTurns int `yaml:"min_turns"`

	// RequestsPerSecond rate-limits the classifier. <= 0 disables.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// MaxInFlight bounds concurrent classifier calls.
	MaxInFlight int64 `yaml:"max_in_flight"`

	// CacheDir is the result cache directory. Empty disables caching.
	CacheDir string `yaml:"cache_dir"`

	Thresholds Thresholds `yaml:"thresholds"`
}

// DefaultConfig returns the defaults the original tuning was done with.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		Concurrency:       DefaultConcurrency,
		MinTurns:          DefaultMinTurns,
		RequestsPerSecond: 5,
		MaxInFlight:       20,
		Thresholds: Thresholds{
			RepairMatch:      constraints.DefaultRepairThreshold,
			ViolationJaccard: constraints.DefaultViolationJaccard,
			ViolationOverlap: constraints.DefaultViolationOverlap,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults, then applies env
// overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CARTOGRAPHER_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CARTOGRAPHER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("CARTOGRAPHER_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
}

// Tracker builds a constraint tracker with the configured thresholds.
func (c Config) Tracker() constraints.Tracker {
	return constraints.Tracker{
		RepairThreshold:  c.Thresholds.RepairMatch,
		ViolationJaccard: c.Thresholds.ViolationJaccard,
		ViolationOverlap: c.Thresholds.ViolationOverlap,
	}
}
