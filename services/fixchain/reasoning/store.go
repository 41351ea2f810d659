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

import "context"

// DefaultSearchK is the default result bound for similarity search.
const DefaultSearchK = 5

// Query describes one similarity search.
//
// Exactly one of Text or Embedding should be set. When Text is set, the
// store embeds it with its configured embedder before searching.
type Query struct {
	// Text is the query text to embed and search with.
	Text string

	// Embedding is a pre-computed query vector.
	Embedding []float32

	// K bounds the number of results. Zero means DefaultSearchK.
	K int

	// Filter restricts results by metadata. Nil means no filtering.
	Filter *Filter
}

// Filter restricts search results by entry metadata. Zero-valued fields are
// not applied.
type Filter struct {
	// Kind matches Metadata.Kind exactly.
	Kind string

	// BugID matches Metadata.BugID exactly.
	BugID string

	// Tags matches entries carrying any of the given tags.
	Tags []string
}

// Store is the append-only reasoning store contract.
//
// Entries are immutable once written; there is no update operation.
// Corrections are new entries with a superseding tag. Writes require no
// locking (append-only, concurrent writers are safe) and reads are
// snapshot reads.
type Store interface {
	// Store persists a new entry and returns its ID. Fails with
	// ErrStorageUnavailable when the backend cannot be reached; the
	// caller must treat that as non-fatal.
	Store(ctx context.Context, entry Entry) (string, error)

	// Search returns up to k entries ordered by descending similarity.
	// An empty result is a valid, non-error outcome.
	Search(ctx context.Context, query Query) ([]Entry, error)

	// PurgeByBug removes all entries for a bug. This is the only
	// deletion path, reserved for explicit administrative use.
	PurgeByBug(ctx context.Context, bugID string) (int, error)
}
