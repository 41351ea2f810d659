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

import "errors"

// Sentinel errors for the reasoning package.
var (
	// ErrStorageUnavailable indicates the backing store could not be
	// reached. Callers must treat it as non-fatal: retrieval degrades to
	// an empty context set and persistence is skipped for the round.
	ErrStorageUnavailable = errors.New("reasoning store unavailable")

	// ErrEmptyContent indicates an entry with no rationale text.
	ErrEmptyContent = errors.New("entry content must not be empty")

	// ErrInvalidEntry indicates an entry violating a data invariant.
	ErrInvalidEntry = errors.New("invalid reasoning entry")

	// ErrDimensionMismatch indicates an embedding whose length does not
	// match the store's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingFailed indicates the embedding provider failed.
	ErrEmbeddingFailed = errors.New("embedding failed")
)
