// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import "errors"

// Sentinel errors for the model package.
var (
	// ErrInvalidFinding indicates a finding violates a data-model invariant.
	ErrInvalidFinding = errors.New("invalid finding")

	// ErrInvalidPatch indicates a patch is malformed or empty.
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrPatchConflict indicates a patch hunk does not apply to the
	// current file content.
	ErrPatchConflict = errors.New("patch conflict")
)
