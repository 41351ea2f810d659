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
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// DefaultRejectAfter is how many consecutive failures of the same patch
// mark a bug rejected.
const DefaultRejectAfter = 2

// Config tunes ledger behavior.
type Config struct {
	// Artifact is the artifact root the session operates on.
	Artifact string

	// RejectAfter is the number of consecutive failed attempts with the
	// same patch digest before a bug is rejected. Default 2.
	RejectAfter int
}

// Ledger maintains the durable mapping from structural finding identity to
// BugRecord across the rounds of one session.
//
// Invariant: exactly one BugRecord per distinct structural key per session.
// The structural key deliberately excludes the finding description so
// analyzer wording changes do not split one logical bug into two records.
//
// Thread Safety: Safe for concurrent use, though sessions drive it from a
// single goroutine per artifact.
type Ledger struct {
	mu          sync.RWMutex
	artifact    string
	rejectAfter int
	records     map[string]*BugRecord // keyed by structural key
}

// NewLedger creates a ledger for one session.
func NewLedger(config Config) *Ledger {
	if config.RejectAfter <= 0 {
		config.RejectAfter = DefaultRejectAfter
	}
	return &Ledger{
		artifact:    config.Artifact,
		rejectAfter: config.RejectAfter,
		records:     make(map[string]*BugRecord),
	}
}

// Upsert returns the record for a finding, creating it on first sight.
//
// Description:
//
//	When no record matches the finding's structural key, a new record is
//	created with status detected. An existing record is returned
//	unchanged: reappearance handling (reintroduction) is a separate,
//	explicit operation so the detected state is never silently reset.
//
// Inputs:
//
//	finding - The finding observed this round.
//	round - The 1-based round it was observed in.
//
// Outputs:
//
//	*BugRecord - The owned record. Callers must not mutate it.
func (l *Ledger) Upsert(finding model.Finding, round int) *BugRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := finding.Key()
	if rec, ok := l.records[key]; ok {
		return rec
	}

	rec := &BugRecord{
		BugID:              finding.BugID(),
		StructuralKey:      key,
		Artifact:           l.artifact,
		FirstDetectedRound: round,
		Status:             StatusDetected,
		Severity:           finding.Severity,
		SourceLocation:     finding.Location,
		UpdatedAt:          time.Now().UTC(),
	}
	l.records[key] = rec

	slog.Debug("New bug recorded",
		"bug_id", rec.BugID,
		"severity", rec.Severity,
		"location", rec.SourceLocation.String(),
		"round", round)
	return rec
}

// RecordFixAttempt appends an attempt to a bug's fix history and advances
// its status.
//
// Description:
//
//	OutcomeFixed moves the bug to fixed and stamps FixedAtRound.
//	OutcomeFailed keeps it in fix_attempted unless the same patch digest
//	has now failed RejectAfter consecutive times, which rejects the bug.
//	OutcomeNoPatch and OutcomeRolledBack append history without moving
//	the status forward: the finding carries to the next round unchanged.
//
// Outputs:
//
//	error - ErrBugNotFound for an unknown bug, ErrInvalidTransition if
//	the lifecycle forbids the implied move.
func (l *Ledger) RecordFixAttempt(bugID string, attempt FixAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.findByID(bugID)
	if rec == nil {
		return ErrBugNotFound
	}

	rec.FixHistory = append(rec.FixHistory, attempt)
	rec.UpdatedAt = time.Now().UTC()

	switch attempt.Outcome {
	case OutcomeFixed:
		if rec.Status == StatusDetected || rec.Status == StatusReintroduced {
			if err := rec.transition(StatusFixAttempted); err != nil {
				return err
			}
		}
		if err := rec.transition(StatusFixed); err != nil {
			return err
		}
		rec.FixedAtRound = attempt.Round

	case OutcomeFailed:
		if rec.Status == StatusDetected || rec.Status == StatusReintroduced {
			if err := rec.transition(StatusFixAttempted); err != nil {
				return err
			}
		}
		if attempt.PatchDigest != "" && l.consecutiveFailures(rec, attempt.PatchDigest) >= l.rejectAfter {
			if err := rec.transition(StatusRejected); err != nil {
				return err
			}
			slog.Warn("Bug rejected after repeated identical patch failures",
				"bug_id", rec.BugID,
				"digest", attempt.PatchDigest,
				"attempts", l.rejectAfter)
		}

	case OutcomeNoPatch, OutcomeRolledBack:
		// History only. The finding carries forward unresolved.
	}

	return nil
}

// RecordReintroduction marks a previously fixed/verified bug as having
// reappeared. This is the signal surfaced to users as "fix caused
// regression"; it never resets the record to detected.
//
// Outputs:
//
//	error - ErrBugNotFound for an unknown bug, ErrInvalidTransition when
//	the record was not fixed/verified.
func (l *Ledger) RecordReintroduction(bugID string, round int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.findByID(bugID)
	if rec == nil {
		return ErrBugNotFound
	}
	if err := rec.transition(StatusReintroduced); err != nil {
		return err
	}

	slog.Warn("Previously fixed bug reintroduced",
		"bug_id", bugID,
		"round", round,
		"fixed_at_round", rec.FixedAtRound)
	return nil
}

// CloseRound promotes fixed bugs to verified when they stayed absent for
// one additional full round after the fix.
//
// Inputs:
//
//	round - The round that just completed.
//	current - The finding set observed at the end of that round.
func (l *Ledger) CloseRound(round int, current model.FindingSet) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.Status != StatusFixed {
			continue
		}
		if round <= rec.FixedAtRound {
			continue
		}
		if current.Contains(rec.StructuralKey) {
			continue
		}
		if err := rec.transition(StatusVerified); err == nil {
			slog.Debug("Bug verified", "bug_id", rec.BugID, "round", round)
		}
	}
}

// AttachWarning records a soft-failure note on a bug. Unknown bugs are
// ignored: warnings must never fail the round that produced them.
func (l *Ledger) AttachWarning(bugID, warning string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec := l.findByID(bugID); rec != nil {
		rec.Warnings = append(rec.Warnings, warning)
	}
}

// Get returns the record for a bug ID, or nil.
func (l *Ledger) Get(bugID string) *BugRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.findByID(bugID)
}

// GetByKey returns the record for a structural key, or nil.
func (l *Ledger) GetByKey(key string) *BugRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[key]
}

// Records returns all records sorted by first detection, then bug ID.
func (l *Ledger) Records() []BugRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]BugRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstDetectedRound != out[j].FirstDetectedRound {
			return out[i].FirstDetectedRound < out[j].FirstDetectedRound
		}
		return out[i].BugID < out[j].BugID
	})
	return out
}

// Len returns the number of tracked bugs.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// consecutiveFailures counts the trailing failed attempts with the given
// patch digest. Caller holds the lock.
func (l *Ledger) consecutiveFailures(rec *BugRecord, digest string) int {
	count := 0
	for i := len(rec.FixHistory) - 1; i >= 0; i-- {
		attempt := rec.FixHistory[i]
		if attempt.Outcome != OutcomeFailed || attempt.PatchDigest != digest {
			break
		}
		count++
	}
	return count
}

// findByID scans records by bug ID. Caller holds the lock.
func (l *Ledger) findByID(bugID string) *BugRecord {
	for _, rec := range l.records {
		if rec.BugID == bugID {
			return rec
		}
	}
	return nil
}
