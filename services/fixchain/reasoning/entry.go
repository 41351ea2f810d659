// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reasoning implements the append-only reasoning store consumed by
// the iteration controller: entries record the rationale behind one fix
// attempt and are retrieved by embedding similarity on later rounds so
// repeated runs improve over time.
package reasoning

import (
	"fmt"
	"time"
)

// DefaultDimensions is the embedding dimension of the reference system.
const DefaultDimensions = 384

// TagSuperseded marks an entry that corrects an earlier one. Entries are
// immutable; corrections are written as new entries carrying this tag plus
// a "supersedes:<id>" tag.
const TagSuperseded = "superseded"

// Metadata carries the structured context of one fix attempt.
type Metadata struct {
	// BugID is the stable identifier of the bug this reasoning concerns.
	BugID string `json:"bug_id,omitempty"`

	// TestName is the name of the check that surfaced the bug.
	TestName string `json:"test_name,omitempty"`

	// Round is the 1-based remediation round of the attempt.
	Round int `json:"round,omitempty"`

	// Kind is the finding kind (syntax, security, ...), used as a
	// retrieval filter.
	Kind string `json:"kind,omitempty"`

	// Tool is the analyzer that reported the finding.
	Tool string `json:"tool,omitempty"`

	// Outcome records how the attempt ended (fixed, rejected, no_patch, ...).
	Outcome string `json:"outcome,omitempty"`

	// SourceFile is the file the finding pointed at.
	SourceFile string `json:"source_file,omitempty"`

	// Confidence is the strategy's confidence in the attempt, in [0,1].
	Confidence float64 `json:"confidence,omitempty"`

	// TokenUsage is the number of tokens the strategy consumed.
	TokenUsage int `json:"token_usage,omitempty"`
}

// Entry is one stored record of an analysis/fix attempt's rationale.
//
// Entries are immutable once written: the store is append-only, there is no
// update operation, and deletion happens only through an explicit
// administrative purge keyed by bug ID.
type Entry struct {
	// ID is the store-assigned identifier. Empty until stored.
	ID string `json:"id,omitempty"`

	// Content is the free-text rationale.
	Content string `json:"content"`

	// Embedding is the fixed-dimension vector of Content. May be empty on
	// input when the store embeds on write.
	Embedding []float32 `json:"embedding,omitempty"`

	// Tags categorize the entry for filtered retrieval.
	Tags []string `json:"tags,omitempty"`

	// Metadata is the structured attempt context.
	Metadata Metadata `json:"metadata"`

	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Score is the similarity score attached to search results. Zero on
	// stored entries.
	Score float64 `json:"score,omitempty"`
}

// Validate checks the entry invariants prior to storage.
func (e Entry) Validate() error {
	if e.Content == "" {
		return ErrEmptyContent
	}
	if e.Metadata.Confidence < 0 || e.Metadata.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f outside [0,1]", ErrInvalidEntry, e.Metadata.Confidence)
	}
	return nil
}
