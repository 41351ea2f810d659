// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// StoreConfig configures the durable bug record store.
type StoreConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// DefaultStoreConfig returns production defaults: on-disk, synchronous.
func DefaultStoreConfig(path string) StoreConfig {
	return StoreConfig{Path: path, SyncWrites: true}
}

// InMemoryStoreConfig returns a configuration for tests: in-memory, async.
func InMemoryStoreConfig() StoreConfig {
	return StoreConfig{InMemory: true}
}

// Store persists bug records in BadgerDB, keyed by bug ID and indexed by
// artifact and status through key prefixes.
//
// Key layout:
//
//	bug/<artifact>/<bug_id>  -> BugRecord JSON
//
// Thread Safety: Safe for concurrent use; Badger transactions provide
// snapshot isolation.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) the bug record store.
//
// Outputs:
//
//	*Store - The opened store. Callers must Close it.
//	error - Non-nil if the database cannot be opened.
func OpenStore(config StoreConfig) (*Store, error) {
	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, fmt.Errorf("%w: path required for persistent store", ErrInvalidInput)
		}
		opts = badger.DefaultOptions(config.Path).WithSyncWrites(config.SyncWrites)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening bug store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes (or overwrites) a bug record.
func (s *Store) Put(record BugRecord) error {
	if record.BugID == "" || record.Artifact == "" {
		return fmt.Errorf("%w: record needs bug ID and artifact", ErrInvalidInput)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling bug record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(record.Artifact, record.BugID), data)
	})
	if err != nil {
		return fmt.Errorf("writing bug record %s: %w", record.BugID, err)
	}
	return nil
}

// PutAll writes a batch of records in one transaction per batch limit.
func (s *Store) PutAll(records []BugRecord) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, record := range records {
		if record.BugID == "" || record.Artifact == "" {
			return fmt.Errorf("%w: record needs bug ID and artifact", ErrInvalidInput)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling bug record: %w", err)
		}
		if err := wb.Set(recordKey(record.Artifact, record.BugID), data); err != nil {
			return fmt.Errorf("batching bug record %s: %w", record.BugID, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing bug records: %w", err)
	}
	slog.Debug("Persisted bug records", "count", len(records))
	return nil
}

// Get reads a bug record by artifact and bug ID.
//
// Outputs:
//
//	*BugRecord - The stored record.
//	error - ErrBugNotFound when absent.
func (s *Store) Get(artifact, bugID string) (*BugRecord, error) {
	var record BugRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(artifact, bugID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrBugNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading bug record %s: %w", bugID, err)
	}
	return &record, nil
}

// ListByArtifact returns all records for an artifact, optionally filtered
// by status. An empty status means no filter.
func (s *Store) ListByArtifact(artifact string, status Status) ([]BugRecord, error) {
	prefix := []byte("bug/" + sanitize(artifact) + "/")

	var records []BugRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record BugRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if status == "" || record.Status == status {
					records = append(records, record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing bug records for %s: %w", artifact, err)
	}
	return records, nil
}

// recordKey builds the storage key for a record.
func recordKey(artifact, bugID string) []byte {
	return []byte("bug/" + sanitize(artifact) + "/" + bugID)
}

// sanitize keeps the key prefix scheme unambiguous for artifact paths.
func sanitize(artifact string) string {
	return strings.ReplaceAll(artifact, "/", "_")
}
