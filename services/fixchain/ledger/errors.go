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

import "errors"

// Sentinel errors for the ledger package.
var (
	// ErrInvalidTransition indicates an illegal bug status move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBugNotFound indicates no record exists for the given bug ID.
	ErrBugNotFound = errors.New("bug not found")

	// ErrInvalidInput indicates invalid input to a ledger function.
	ErrInvalidInput = errors.New("invalid input")
)
