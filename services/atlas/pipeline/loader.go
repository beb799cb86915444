// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/issacting93/Cartographer/services/atlas/core"
)

// EntryClassification is the per-conversation classification block of an
// enriched record.
type EntryClassification struct {
	TaskGoal           string        `json:"task_goal"`
	PrimaryConstraints []string      `json:"primary_constraints"`
	Evidence           core.Evidence `json:"evidence"`
	StabilityClass     string        `json:"stability_class"`
}

// EntryTaxonomy carries the upstream taxonomy labels.
type EntryTaxonomy struct {
	Architecture       string `json:"architecture"`
	ConstraintHardness string `json:"constraint_hardness"`
}

// EnrichedEntry is one record of the upstream task-classification output.
// FilePath points at the raw conversation JSON.
type EnrichedEntry struct {
	ID             string              `json:"id"`
	FilePath       string              `json:"file_path"`
	Classification EntryClassification `json:"classification"`
	Taxonomy       EntryTaxonomy       `json:"taxonomy"`
	Source         string              `json:"source"`
	Domain         string              `json:"domain"`
}

// ToClassification flattens the entry into the core classification record
// the pipeline stages consume.
func (e EnrichedEntry) ToClassification() core.Classification {
	return core.Classification{
		TaskGoal:           e.Classification.TaskGoal,
		PrimaryConstraints: e.Classification.PrimaryConstraints,
		Evidence:           e.Classification.Evidence,
		StabilityClass:     e.Classification.StabilityClass,
		TaskArchitecture:   e.Taxonomy.Architecture,
		ConstraintHardness: e.Taxonomy.ConstraintHardness,
		Source:             e.Source,
		Domain:             e.Domain,
	}
}

// LoadEnriched reads the enriched classification file: a JSON array of
// entries.
func LoadEnriched(path string) ([]EnrichedEntry, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read enriched data: %w", err)
	}
	var entries []EnrichedEntry
	if err := json.Unmarshal(buf, &entries); err != nil {
		return nil, fmt.Errorf("parse enriched data: %w", err)
	}
	return entries, nil
}

// Sample returns n entries drawn without replacement. n <= 0 or n >= len
// returns the input unchanged.
func Sample(entries []EnrichedEntry, n int) []EnrichedEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	shuffled := append([]EnrichedEntry(nil), entries...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

// RawConversation is a raw conversation file after loading.
type RawConversation struct {
	ID       string
	Messages []core.Message
}

// rawFile tolerates both "messages" and "conversation" as the turn list
// key, matching the two upstream export formats.
type rawFile struct {
	ID           string         `json:"id"`
	Messages     []core.Message `json:"messages"`
	Conversation []core.Message `json:"conversation"`
}

// LoadConversation reads one raw conversation JSON file. A missing id falls
// back to the filename stem.
func LoadConversation(path string) (*RawConversation, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	var raw rawFile
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("parse conversation: %w", err)
	}

	msgs := raw.Messages
	if len(msgs) == 0 {
		msgs = raw.Conversation
	}
	id := raw.ID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &RawConversation{ID: id, Messages: msgs}, nil
}

// ResolveConversation loads the raw conversation from its recorded path,
// falling back to the same filename under sourceDir. Both failing, or a
// conversation with no messages, is ErrRawNotFound.
func ResolveConversation(filePath, sourceDir string) (*RawConversation, error) {
	raw, err := LoadConversation(filePath)
	if (err != nil || len(raw.Messages) == 0) && sourceDir != "" && filePath != "" {
		raw, err = LoadConversation(filepath.Join(sourceDir, filepath.Base(filePath)))
	}
	if err != nil || len(raw.Messages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRawNotFound, filePath)
	}
	return raw, nil
}
