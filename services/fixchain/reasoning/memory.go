// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process reasoning store with brute-force cosine
// similarity search. It implements the same append-only contract as the
// Weaviate store and exists for tests and single-process offline runs.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  []Entry
}

// NewMemoryStore creates an in-memory reasoning store.
func NewMemoryStore(embedder Embedder) (*MemoryStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}
	return &MemoryStore{embedder: embedder}, nil
}

// Store appends a new entry and returns its ID.
func (s *MemoryStore) Store(ctx context.Context, entry Entry) (string, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if len(entry.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, entry.Content)
		if err != nil {
			return "", fmt.Errorf("embedding entry content: %w", err)
		}
		entry.Embedding = vec
	}
	if len(entry.Embedding) != s.embedder.Dimensions() {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Embedding), s.embedder.Dimensions())
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return entry.ID, nil
}

// Search returns up to k entries by descending cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, query Query) ([]Entry, error) {
	vector := query.Embedding
	if len(vector) == 0 {
		if query.Text == "" {
			return nil, fmt.Errorf("%w: query needs text or embedding", ErrInvalidEntry)
		}
		vec, err := s.embedder.Embed(ctx, query.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		vector = vec
	}

	k := query.K
	if k <= 0 {
		k = DefaultSearchK
	}

	s.mu.RLock()
	candidates := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !matchesFilter(e, query.Filter) {
			continue
		}
		scored := e
		scored.Score = cosine(vector, e.Embedding)
		candidates = append(candidates, scored)
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// PurgeByBug removes all entries for a bug.
func (s *MemoryStore) PurgeByBug(_ context.Context, bugID string) (int, error) {
	if bugID == "" {
		return 0, fmt.Errorf("%w: bugID must not be empty", ErrInvalidEntry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	purged := 0
	for _, e := range s.entries {
		if e.Metadata.BugID == bugID {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return purged, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// matchesFilter applies the zero-value-skipping filter semantics.
func matchesFilter(e Entry, f *Filter) bool {
	if f == nil {
		return true
	}
	if f.Kind != "" && e.Metadata.Kind != f.Kind {
		return false
	}
	if f.BugID != "" && e.Metadata.BugID != f.BugID {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, want := range f.Tags {
			for _, have := range e.Tags {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// cosine computes cosine similarity between two vectors. Mismatched lengths
// or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
