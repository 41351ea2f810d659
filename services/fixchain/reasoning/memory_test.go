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
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(NewHashingEmbedder(64))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func testEntry(bugID, kind, content string) Entry {
	return Entry{
		Content: content,
		Tags:    []string{kind},
		Metadata: Metadata{
			BugID:   bugID,
			Round:   1,
			Kind:    kind,
			Tool:    "bandit",
			Outcome: "fixed",
		},
	}
}

func TestMemoryStore_StoreAssignsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Store(context.Background(), testEntry("bug_1", "security", "replaced string concat with parameterized query"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if id == "" {
		t.Error("Store() should assign a non-empty ID")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_StoreRejectsEmptyContent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Store(context.Background(), Entry{})
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Store() error = %v, want ErrEmptyContent", err)
	}
}

func TestMemoryStore_StoreRejectsDimensionMismatch(t *testing.T) {
	store := newTestStore(t)

	entry := testEntry("bug_1", "security", "some rationale")
	entry.Embedding = make([]float32, 3) // store expects 64

	if _, err := store.Store(context.Background(), entry); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Store() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestMemoryStore_SearchRanksBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		testEntry("bug_1", "security", "fixed sql injection by using parameterized query in user lookup"),
		testEntry("bug_2", "performance", "cached the expensive computation result"),
		testEntry("bug_3", "security", "escaped html output to stop xss"),
	}
	for _, e := range entries {
		if _, err := store.Store(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	results, err := store.Search(ctx, Query{
		Text: "sql injection in user lookup query",
		K:    2,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (K cap)", len(results))
	}
	if results[0].Metadata.BugID != "bug_1" {
		t.Errorf("top result = %s, want bug_1 (highest token overlap)", results[0].Metadata.BugID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results must be ordered by descending score")
	}
}

func TestMemoryStore_SearchFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Store(ctx, testEntry("bug_1", "security", "patched the injection"))
	store.Store(ctx, testEntry("bug_2", "logic", "fixed the off by one"))
	store.Store(ctx, testEntry("bug_2", "logic", "second attempt on the off by one"))

	t.Run("by kind", func(t *testing.T) {
		results, err := store.Search(ctx, Query{
			Text:   "fix",
			Filter: &Filter{Kind: "logic"},
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.Metadata.Kind != "logic" {
				t.Errorf("result kind = %s, want logic", r.Metadata.Kind)
			}
		}
		if len(results) != 2 {
			t.Errorf("len(results) = %d, want 2", len(results))
		}
	})

	t.Run("by bug", func(t *testing.T) {
		results, err := store.Search(ctx, Query{
			Text:   "fix",
			Filter: &Filter{BugID: "bug_1"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].Metadata.BugID != "bug_1" {
			t.Errorf("results = %v, want only bug_1's entry", results)
		}
	})

	t.Run("by tag", func(t *testing.T) {
		results, err := store.Search(ctx, Query{
			Text:   "fix",
			Filter: &Filter{Tags: []string{"security"}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 {
			t.Errorf("len(results) = %d, want 1", len(results))
		}
	})
}

func TestMemoryStore_SearchNeedsTextOrVector(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Search(context.Background(), Query{}); err == nil {
		t.Error("Search() with neither text nor embedding should fail")
	}
}

func TestMemoryStore_SearchEmptyStore(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), Query{Text: "anything"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestMemoryStore_PurgeByBug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Store(ctx, testEntry("bug_1", "security", "first attempt"))
	store.Store(ctx, testEntry("bug_1", "security", "second attempt"))
	store.Store(ctx, testEntry("bug_2", "logic", "unrelated"))

	purged, err := store.PurgeByBug(ctx, "bug_1")
	if err != nil {
		t.Fatalf("PurgeByBug() error = %v", err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	// Purge is the only deletion path and it is idempotent.
	purged, err = store.PurgeByBug(ctx, "bug_1")
	if err != nil {
		t.Fatal(err)
	}
	if purged != 0 {
		t.Errorf("second purge = %d, want 0", purged)
	}
}

func TestMemoryStore_PurgeRequiresBugID(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.PurgeByBug(context.Background(), ""); err == nil {
		t.Error("PurgeByBug(\"\") should fail")
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"mismatched lengths", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); got != tt.want {
				t.Errorf("cosine() = %f, want %f", got, tt.want)
			}
		})
	}
}
