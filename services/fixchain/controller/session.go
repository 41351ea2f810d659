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

import (
	"github.com/fixchain/fixchain/services/fixchain/ledger"
	"github.com/fixchain/fixchain/services/fixchain/regression"
)

// TerminalReason states why a session stopped.
type TerminalReason string

const (
	// TerminalNone means the session is still running.
	TerminalNone TerminalReason = "none"

	// TerminalConverged means a scan found no findings. This is the only
	// success terminal.
	TerminalConverged TerminalReason = "converged"

	// TerminalCapReached means findings remained after the final allowed
	// round. An expected outcome, not an error.
	TerminalCapReached TerminalReason = "cap_reached"

	// TerminalRegressionAbort means a round degraded the artifact and was
	// rolled back. A controlled stop, not an exception.
	TerminalRegressionAbort TerminalReason = "regression_abort"

	// TerminalCancelled means the session-level cancellation signal fired.
	// The artifact is left in its last committed state.
	TerminalCancelled TerminalReason = "cancelled"
)

// iterationState is the controller's working state for one artifact.
type iterationState struct {
	roundNumber       int
	maxRounds         int
	newBugsIntroduced int
	terminalReason    TerminalReason
}

// RoundSummary reports what one round did.
type RoundSummary struct {
	// Round is the 1-based round number.
	Round int `json:"round"`

	// FindingsBefore is the size of the round's initial scan.
	FindingsBefore int `json:"findings_before"`

	// FindingsAfter is the size of the post-fix scan.
	FindingsAfter int `json:"findings_after"`

	// PatchesApplied is how many patches were committed this round.
	PatchesApplied int `json:"patches_applied"`

	// Resolved and Introduced are the regression comparison counts.
	Resolved   int `json:"resolved"`
	Introduced int `json:"introduced"`

	// Verdict is the regression classification of the round.
	Verdict regression.Verdict `json:"verdict"`

	// Warnings records the round's soft failures (analyzer drops,
	// retrieval degradation, skipped persistence). Never silently
	// dropped.
	Warnings []string `json:"warnings,omitempty"`
}

// SessionResult is the outcome handed back to the orchestrating caller.
type SessionResult struct {
	// Artifact is the artifact root the session operated on.
	Artifact string `json:"artifact"`

	// TerminalReason states why the session stopped. Always set.
	TerminalReason TerminalReason `json:"terminal_reason"`

	// RoundsExecuted is how many rounds ran. Never exceeds the cap.
	RoundsExecuted int `json:"rounds_executed"`

	// Bugs is every bug record tracked during the session.
	Bugs []ledger.BugRecord `json:"bugs"`

	// CumulativeNewBugsIntroduced counts reintroductions of previously
	// fixed bugs. Surfaced to users as "fix caused regression".
	CumulativeNewBugsIntroduced int `json:"cumulative_new_bugs_introduced"`

	// TotalFindingsResolved sums resolved findings over committed rounds.
	TotalFindingsResolved int `json:"total_findings_resolved"`

	// Rounds holds per-round summaries in execution order.
	Rounds []RoundSummary `json:"rounds"`
}
