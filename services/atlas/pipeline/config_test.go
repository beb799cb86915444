// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issacting93/Cartographer/services/atlas/constraints"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultMinTurns, cfg.MinTurns)
	assert.Equal(t, constraints.DefaultRepairThreshold, cfg.Thresholds.RepairMatch)
	assert.Equal(t, constraints.DefaultViolationJaccard, cfg.Thresholds.ViolationJaccard)
	assert.Equal(t, constraints.DefaultViolationOverlap, cfg.Thresholds.ViolationOverlap)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: gpt-4o
concurrency: 4
thresholds:
  repair_match: 0.25
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 0.25, cfg.Thresholds.RepairMatch)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultMinTurns, cfg.MinTurns)
	assert.Equal(t, constraints.DefaultViolationOverlap, cfg.Thresholds.ViolationOverlap)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CARTOGRAPHER_MODEL", "gpt-4.1-mini")
	t.Setenv("CARTOGRAPHER_CONCURRENCY", "3")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", cfg.Model)
	assert.Equal(t, 3, cfg.Concurrency)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigTracker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.RepairMatch = 0.3
	tr := cfg.Tracker()
	assert.Equal(t, 0.3, tr.RepairThreshold)
	assert.Equal(t, constraints.DefaultViolationJaccard, tr.ViolationJaccard)
	assert.Equal(t, constraints.DefaultViolationOverlap, tr.ViolationOverlap)
}
