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

	"github.com/issacting93/Cartographer/services/atlas/core"
)

func TestLoadConversationMessagesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"id": "abc",
		"messages": [
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi"}
		]
	}`), 0644))

	raw, err := LoadConversation(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", raw.ID)
	require.Len(t, raw.Messages, 2)
	assert.Equal(t, core.RoleUser, raw.Messages[0].Role)
}

func TestLoadConversationConversationKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session_42.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"conversation": [
			{"role": "user", "content": "hello"}
		]
	}`), 0644))

	raw, err := LoadConversation(path)
	require.NoError(t, err)
	// No id in the file: filename stem wins.
	assert.Equal(t, "session_42", raw.ID)
	require.Len(t, raw.Messages, 1)
}

func TestLoadConversationErrors(t *testing.T) {
	_, err := LoadConversation(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = LoadConversation(bad)
	assert.Error(t, err)
}

func TestResolveConversationFallback(t *testing.T) {
	sourceDir := t.TempDir()
	path := filepath.Join(sourceDir, "conv.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"messages":[{"role":"user","content":"x"}]}`), 0644))

	raw, err := ResolveConversation("/stale/conv.json", sourceDir)
	require.NoError(t, err)
	assert.Len(t, raw.Messages, 1)

	_, err = ResolveConversation("/stale/other.json", sourceDir)
	assert.ErrorIs(t, err, ErrRawNotFound)

	// Empty message lists count as missing too.
	empty := filepath.Join(sourceDir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"messages":[]}`), 0644))
	_, err = ResolveConversation(empty, "")
	assert.ErrorIs(t, err, ErrRawNotFound)
}

func TestLoadEnriched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enriched.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"id": "conv1",
			"file_path": "/data/conv1.json",
			"classification": {
				"task_goal": "write a report",
				"primary_constraints": ["must be under 500 words"],
				"evidence": {"constraint_turns": [0]},
				"stability_class": "stable"
			},
			"taxonomy": {"architecture": "single_deliverable", "constraint_hardness": "hard"},
			"source": "export",
			"domain": "writing"
		}
	]`), 0644))

	entries, err := LoadEnriched(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	cls := entries[0].ToClassification()
	assert.Equal(t, "write a report", cls.TaskGoal)
	assert.Equal(t, []string{"must be under 500 words"}, cls.PrimaryConstraints)
	assert.Equal(t, []int{0}, cls.Evidence.ConstraintTurns)
	assert.Equal(t, "stable", cls.StabilityClass)
	assert.Equal(t, "single_deliverable", cls.TaskArchitecture)
	assert.Equal(t, "hard", cls.ConstraintHardness)
	assert.Equal(t, "export", cls.Source)
	assert.Equal(t, "writing", cls.Domain)
}

func TestSample(t *testing.T) {
	entries := []EnrichedEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}

	assert.Len(t, Sample(entries, 2), 2)
	assert.Equal(t, entries, Sample(entries, 0))
	assert.Equal(t, entries, Sample(entries, 10))

	// Sampling must not reorder the caller's slice.
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "d", entries[3].ID)
}
