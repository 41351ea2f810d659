// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger tracks bug lifecycle records across the rounds of one
// remediation session and persists them durably between sessions.
package ledger

import (
	"fmt"
	"time"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// Status is the lifecycle state of a tracked bug.
type Status string

const (
	// StatusDetected means the bug was seen but no fix has been tried.
	StatusDetected Status = "detected"

	// StatusFixAttempted means at least one patch was tried and the bug
	// is still present.
	StatusFixAttempted Status = "fix_attempted"

	// StatusFixed means the finding disappeared in the post-fix scan.
	StatusFixed Status = "fixed"

	// StatusVerified means the finding stayed absent for one additional
	// full round after being fixed.
	StatusVerified Status = "verified"

	// StatusRejected means the same patch failed the configured number
	// of consecutive times.
	StatusRejected Status = "rejected"

	// StatusReintroduced means a previously fixed/verified finding
	// reappeared in a later round.
	StatusReintroduced Status = "reintroduced"
)

// forwardTransitions encodes the legal status moves. All moves are forward
// except reintroduced, which is reachable only from fixed/verified, and the
// re-entry from reintroduced back into the fix pipeline.
var forwardTransitions = map[Status][]Status{
	StatusDetected:     {StatusFixAttempted},
	StatusFixAttempted: {StatusFixAttempted, StatusFixed, StatusRejected},
	StatusFixed:        {StatusVerified, StatusReintroduced},
	StatusVerified:     {StatusReintroduced},
	StatusReintroduced: {StatusFixAttempted},
	StatusRejected:     {},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range forwardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AttemptOutcome describes how one fix attempt ended.
type AttemptOutcome string

const (
	// OutcomeFixed means the finding disappeared in the post-fix scan.
	OutcomeFixed AttemptOutcome = "fixed"

	// OutcomeFailed means a patch was applied but the finding persisted.
	OutcomeFailed AttemptOutcome = "failed"

	// OutcomeNoPatch means the strategy produced no patch.
	OutcomeNoPatch AttemptOutcome = "no_patch"

	// OutcomeRolledBack means the round's patches were reverted after a
	// degraded regression classification.
	OutcomeRolledBack AttemptOutcome = "rolled_back"
)

// FixAttempt is one entry in a bug's ordered fix history.
type FixAttempt struct {
	// Round is the 1-based round the attempt happened in.
	Round int `json:"round"`

	// Outcome records how the attempt ended.
	Outcome AttemptOutcome `json:"outcome"`

	// PatchDigest identifies the attempted patch content. Empty when no
	// patch was produced.
	PatchDigest string `json:"patch_digest,omitempty"`

	// ReasoningEntryID links to the persisted rationale, when stored.
	ReasoningEntryID string `json:"reasoning_entry_id,omitempty"`
}

// BugRecord tracks one logical bug across its lifecycle. Records are owned
// exclusively by the BugLedger and archived only at session teardown, never
// mid-run.
type BugRecord struct {
	// BugID is the stable identity derived from the first-seen finding's
	// structural key.
	BugID string `json:"bug_id"`

	// StructuralKey is the kind+location+detector key the record tracks.
	StructuralKey string `json:"structural_key"`

	// Artifact is the artifact root this bug belongs to.
	Artifact string `json:"artifact"`

	// FirstDetectedRound is the round the bug was first seen in.
	FirstDetectedRound int `json:"first_detected_round"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// FixHistory is the ordered list of attempted patches.
	FixHistory []FixAttempt `json:"fix_history,omitempty"`

	// Severity is the severity of the first-seen finding.
	Severity model.Severity `json:"severity"`

	// SourceLocation is where the first-seen finding pointed.
	SourceLocation model.Location `json:"source_location"`

	// FixedAtRound is the round the bug was last marked fixed. Zero when
	// never fixed.
	FixedAtRound int `json:"fixed_at_round,omitempty"`

	// Warnings holds soft-failure notes attached to this bug (retrieval
	// degraded, persistence skipped, ...). Never silently dropped.
	Warnings []string `json:"warnings,omitempty"`

	// UpdatedAt is the last modification time.
	UpdatedAt time.Time `json:"updated_at"`
}

// transition moves the record to next, enforcing the lifecycle invariant.
func (r *BugRecord) transition(next Status) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (bug %s)", ErrInvalidTransition, r.Status, next, r.BugID)
	}
	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Open reports whether the bug still needs fixing.
func (r *BugRecord) Open() bool {
	switch r.Status {
	case StatusDetected, StatusFixAttempted, StatusReintroduced:
		return true
	}
	return false
}
