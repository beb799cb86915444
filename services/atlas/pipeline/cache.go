// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Cache persists per-conversation pipeline results in an embedded BadgerDB
// so a rerun over the same corpus skips already-processed conversations.
// Safe for concurrent use.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (or creates) a persistent cache at path.
func OpenCache(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// OpenCacheInMemory opens a cache that lives only for the process. Used in
// tests and single-shot runs.
func OpenCacheInMemory() (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(conversationID string) []byte {
	return []byte("result/" + conversationID)
}

// Get returns the cached result for a conversation, if present.
func (c *Cache) Get(conversationID string) (*Result, bool, error) {
	var out *Result
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(conversationID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r Result
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode cached result: %w", err)
			}
			out = &r
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache read %s: %w", conversationID, err)
	}
	return out, out != nil, nil
}

// Put stores a result, replacing any previous entry for the conversation.
func (c *Cache) Put(conversationID string, r *Result) error {
	buf, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(conversationID), buf)
	})
	if err != nil {
		return fmt.Errorf("cache write %s: %w", conversationID, err)
	}
	return nil
}

// Delete removes a conversation's cached result. Missing keys are not an
// error.
func (c *Cache) Delete(conversationID string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(conversationID))
	})
	if err != nil {
		return fmt.Errorf("cache delete %s: %w", conversationID, err)
	}
	return nil
}
