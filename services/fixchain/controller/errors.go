// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controller

import "errors"

// Sentinel errors for the controller package.
var (
	// ErrInvalidInput indicates invalid session inputs (empty analyzer
	// battery, nil strategy, bad round cap).
	ErrInvalidInput = errors.New("invalid input")

	// ErrArtifactBusy indicates another session already owns the
	// artifact. The artifact under test is exclusively owned by one
	// session for its duration.
	ErrArtifactBusy = errors.New("artifact already owned by another session")

	// ErrRollbackFailed indicates the artifact could not be restored to
	// its pre-round snapshot. This is the one fatal error in the
	// remediation loop: it violates the never-leave-partial-state
	// invariant, so the session aborts loudly.
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrSnapshotFailed indicates the pre-round snapshot could not be
	// taken. The round cannot proceed safely without one.
	ErrSnapshotFailed = errors.New("snapshot failed")
)
