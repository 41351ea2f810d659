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

import (
	"errors"
	"testing"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

func sessionLedger() *Ledger {
	return NewLedger(Config{Artifact: "services/app"})
}

func injectionFinding() model.Finding {
	return model.Finding{
		Kind:        model.KindSecurity,
		Severity:    model.SeverityHigh,
		Location:    model.Location{File: "app.py", Line: 42},
		Description: "possible SQL injection",
		Detector:    "bandit",
	}
}

func TestLedger_UpsertCreatesOnce(t *testing.T) {
	led := sessionLedger()
	f := injectionFinding()

	rec := led.Upsert(f, 1)
	if rec.Status != StatusDetected {
		t.Errorf("Status = %s, want detected", rec.Status)
	}
	if rec.FirstDetectedRound != 1 {
		t.Errorf("FirstDetectedRound = %d, want 1", rec.FirstDetectedRound)
	}
	if rec.BugID != f.BugID() {
		t.Errorf("BugID = %s, want %s", rec.BugID, f.BugID())
	}

	// Same structural key in round 2: same record, unchanged.
	reworded := f
	reworded.Description = "SQL injection risk (new wording)"
	again := led.Upsert(reworded, 2)
	if again != rec {
		t.Error("Upsert must return the existing record for a known key")
	}
	if again.FirstDetectedRound != 1 {
		t.Errorf("FirstDetectedRound changed to %d", again.FirstDetectedRound)
	}
	if led.Len() != 1 {
		t.Errorf("Len() = %d, want 1", led.Len())
	}
}

func TestLedger_FixedLifecycle(t *testing.T) {
	led := sessionLedger()
	f := injectionFinding()
	rec := led.Upsert(f, 1)

	err := led.RecordFixAttempt(rec.BugID, FixAttempt{
		Round:       1,
		Outcome:     OutcomeFixed,
		PatchDigest: "abc123",
	})
	if err != nil {
		t.Fatalf("RecordFixAttempt() error = %v", err)
	}

	if rec.Status != StatusFixed {
		t.Errorf("Status = %s, want fixed", rec.Status)
	}
	if rec.FixedAtRound != 1 {
		t.Errorf("FixedAtRound = %d, want 1", rec.FixedAtRound)
	}
	if len(rec.FixHistory) != 1 {
		t.Errorf("len(FixHistory) = %d, want 1", len(rec.FixHistory))
	}
}

func TestLedger_RejectAfterConsecutiveIdenticalFailures(t *testing.T) {
	led := NewLedger(Config{Artifact: "app", RejectAfter: 2})
	rec := led.Upsert(injectionFinding(), 1)

	// First failure with digest d1: still in the pipeline.
	if err := led.RecordFixAttempt(rec.BugID, FixAttempt{Round: 1, Outcome: OutcomeFailed, PatchDigest: "d1"}); err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusFixAttempted {
		t.Errorf("after 1 failure: Status = %s, want fix_attempted", rec.Status)
	}

	// Second consecutive failure with the same digest: rejected.
	if err := led.RecordFixAttempt(rec.BugID, FixAttempt{Round: 2, Outcome: OutcomeFailed, PatchDigest: "d1"}); err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusRejected {
		t.Errorf("after 2 identical failures: Status = %s, want rejected", rec.Status)
	}
}

func TestLedger_DifferentDigestResetsRejectionCount(t *testing.T) {
	led := NewLedger(Config{Artifact: "app", RejectAfter: 2})
	rec := led.Upsert(injectionFinding(), 1)

	attempts := []FixAttempt{
		{Round: 1, Outcome: OutcomeFailed, PatchDigest: "d1"},
		{Round: 2, Outcome: OutcomeFailed, PatchDigest: "d2"}, // new approach
		{Round: 3, Outcome: OutcomeFailed, PatchDigest: "d1"}, // back to d1, count restarts
	}
	for _, a := range attempts {
		if err := led.RecordFixAttempt(rec.BugID, a); err != nil {
			t.Fatal(err)
		}
	}

	if rec.Status != StatusFixAttempted {
		t.Errorf("Status = %s, want fix_attempted (no two consecutive identical failures)", rec.Status)
	}
}

func TestLedger_NoPatchDoesNotAdvanceStatus(t *testing.T) {
	led := sessionLedger()
	rec := led.Upsert(injectionFinding(), 1)

	if err := led.RecordFixAttempt(rec.BugID, FixAttempt{Round: 1, Outcome: OutcomeNoPatch}); err != nil {
		t.Fatal(err)
	}

	if rec.Status != StatusDetected {
		t.Errorf("Status = %s, want detected (no_patch is history-only)", rec.Status)
	}
	if len(rec.FixHistory) != 1 {
		t.Errorf("len(FixHistory) = %d, want 1", len(rec.FixHistory))
	}
}

func TestLedger_Reintroduction(t *testing.T) {
	led := sessionLedger()
	f := injectionFinding()
	rec := led.Upsert(f, 1)

	if err := led.RecordFixAttempt(rec.BugID, FixAttempt{Round: 1, Outcome: OutcomeFixed, PatchDigest: "d1"}); err != nil {
		t.Fatal(err)
	}
	if err := led.RecordReintroduction(rec.BugID, 3); err != nil {
		t.Fatalf("RecordReintroduction() error = %v", err)
	}
	if rec.Status != StatusReintroduced {
		t.Errorf("Status = %s, want reintroduced", rec.Status)
	}

	// FirstDetectedRound and history survive; the record is not reset.
	if rec.FirstDetectedRound != 1 {
		t.Errorf("FirstDetectedRound = %d, want 1", rec.FirstDetectedRound)
	}
	if len(rec.FixHistory) != 1 {
		t.Errorf("len(FixHistory) = %d, want 1", len(rec.FixHistory))
	}

	// Reintroduced bugs re-enter the fix pipeline.
	if err := led.RecordFixAttempt(rec.BugID, FixAttempt{Round: 3, Outcome: OutcomeFixed, PatchDigest: "d2"}); err != nil {
		t.Fatalf("re-entry fix attempt error = %v", err)
	}
	if rec.Status != StatusFixed {
		t.Errorf("Status = %s, want fixed after re-entry", rec.Status)
	}
	if rec.FixedAtRound != 3 {
		t.Errorf("FixedAtRound = %d, want 3", rec.FixedAtRound)
	}
}

func TestLedger_ReintroductionRequiresFixedOrVerified(t *testing.T) {
	led := sessionLedger()
	rec := led.Upsert(injectionFinding(), 1)

	if err := led.RecordReintroduction(rec.BugID, 2); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("RecordReintroduction() on detected bug: error = %v, want ErrInvalidTransition", err)
	}
}

func TestLedger_CloseRoundPromotesToVerified(t *testing.T) {
	led := sessionLedger()
	f := injectionFinding()
	rec := led.Upsert(f, 1)

	if err := led.RecordFixAttempt(rec.BugID, FixAttempt{Round: 1, Outcome: OutcomeFixed, PatchDigest: "d1"}); err != nil {
		t.Fatal(err)
	}

	// Closing the fix round itself is not enough.
	led.CloseRound(1, model.NewFindingSet(1, "merged", nil))
	if rec.Status != StatusFixed {
		t.Errorf("after closing fix round: Status = %s, want fixed", rec.Status)
	}

	// One additional absent round verifies the fix.
	led.CloseRound(2, model.NewFindingSet(2, "merged", nil))
	if rec.Status != StatusVerified {
		t.Errorf("after one clean round: Status = %s, want verified", rec.Status)
	}
}

func TestLedger_CloseRoundSkipsReappearedFinding(t *testing.T) {
	led := sessionLedger()
	f := injectionFinding()
	rec := led.Upsert(f, 1)

	if err := led.RecordFixAttempt(rec.BugID, FixAttempt{Round: 1, Outcome: OutcomeFixed, PatchDigest: "d1"}); err != nil {
		t.Fatal(err)
	}

	// Finding present again at round 2 close: no verification.
	led.CloseRound(2, model.NewFindingSet(2, "merged", []model.Finding{f}))
	if rec.Status != StatusFixed {
		t.Errorf("Status = %s, want fixed (present finding blocks verification)", rec.Status)
	}
}

func TestLedger_UnknownBug(t *testing.T) {
	led := sessionLedger()

	if err := led.RecordFixAttempt("bug_missing", FixAttempt{Round: 1, Outcome: OutcomeFixed}); !errors.Is(err, ErrBugNotFound) {
		t.Errorf("RecordFixAttempt() error = %v, want ErrBugNotFound", err)
	}
	if err := led.RecordReintroduction("bug_missing", 1); !errors.Is(err, ErrBugNotFound) {
		t.Errorf("RecordReintroduction() error = %v, want ErrBugNotFound", err)
	}
	if led.Get("bug_missing") != nil {
		t.Error("Get() should return nil for an unknown bug")
	}
}

func TestLedger_AttachWarning(t *testing.T) {
	led := sessionLedger()
	rec := led.Upsert(injectionFinding(), 1)

	led.AttachWarning(rec.BugID, "retrieval degraded")
	led.AttachWarning("bug_missing", "must be ignored")

	if len(rec.Warnings) != 1 || rec.Warnings[0] != "retrieval degraded" {
		t.Errorf("Warnings = %v", rec.Warnings)
	}
}

func TestLedger_RecordsSorted(t *testing.T) {
	led := sessionLedger()

	second := injectionFinding()
	second.Location.Line = 99
	led.Upsert(second, 2)

	first := injectionFinding()
	led.Upsert(first, 1)

	records := led.Records()
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].FirstDetectedRound != 1 {
		t.Error("records should be sorted by first detection round")
	}
}
