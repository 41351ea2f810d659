// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regression classifies the delta between two finding sets from the
// same artifact. The classification is the sole gate for rolling back a
// round's patches.
package regression

import (
	"log/slog"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// Verdict is the comparison outcome.
type Verdict string

const (
	// Improved means the round resolved more than it introduced and did
	// not escalate severity.
	Improved Verdict = "improved"

	// Same means no material change. Ties favor Same so forward progress
	// is never blocked spuriously.
	Same Verdict = "same"

	// Degraded means the round introduced more than it resolved, or
	// escalated severity. Triggers rollback.
	Degraded Verdict = "degraded"
)

// EscalationPolicy selects what an introduced critical/high finding is
// compared against when deciding severity escalation.
type EscalationPolicy int

const (
	// EscalateAnyFinding compares against every finding of the before
	// set: an introduced critical/high finding escalates unless some
	// before-finding already had equal-or-higher severity. This is the
	// stricter reading and the default.
	EscalateAnyFinding EscalationPolicy = iota

	// EscalateResolvedOnly compares only against the findings the round
	// actually resolved, i.e. the ones the fix replaced.
	EscalateResolvedOnly
)

// Classification carries the verdict plus the sets that produced it.
type Classification struct {
	// Verdict is the comparison outcome.
	Verdict Verdict

	// Resolved are the before-findings absent from after.
	Resolved []model.Finding

	// Introduced are the after-findings absent from before.
	Introduced []model.Finding

	// Escalated is true when the verdict was forced by a severity
	// escalation rather than by counts alone.
	Escalated bool
}

// Detector compares two finding sets using structural-key set differences.
//
// Thread Safety: Safe for concurrent use. Stateless apart from config.
type Detector struct {
	policy EscalationPolicy
}

// NewDetector creates a detector with the given escalation policy.
func NewDetector(policy EscalationPolicy) *Detector {
	return &Detector{policy: policy}
}

// Compare classifies the delta between before and after.
//
// Description:
//
//	Computes resolved = before - after and introduced = after - before
//	by structural key, then applies the policy:
//
//	degraded  iff introduced is non-empty and outnumbers resolved, OR a
//	          newly introduced finding is critical/high with no
//	          comparison finding of equal-or-higher severity.
//	improved  iff something was resolved and nothing introduced, or
//	          resolved outnumbers introduced without a new critical/high
//	          escalation.
//	same      otherwise, including the empty/empty case. Equal counts
//	          with no escalation favor same.
//
// Outputs:
//
//	Classification - Verdict plus the resolved/introduced sets.
func (d *Detector) Compare(before, after model.FindingSet) Classification {
	resolved, introduced := model.Diff(before, after)

	c := Classification{
		Resolved:   resolved,
		Introduced: introduced,
	}

	escalated := d.escalates(before, resolved, introduced)
	c.Escalated = escalated

	switch {
	case len(introduced) > 0 && len(introduced) > len(resolved):
		c.Verdict = Degraded
	case escalated:
		c.Verdict = Degraded
	case len(resolved) > 0 && len(introduced) == 0:
		c.Verdict = Improved
	case len(resolved) > len(introduced) && !anyCriticalOrHigh(introduced):
		c.Verdict = Improved
	default:
		c.Verdict = Same
	}

	slog.Debug("Regression comparison",
		"verdict", c.Verdict,
		"resolved", len(resolved),
		"introduced", len(introduced),
		"escalated", escalated)
	return c
}

// anyCriticalOrHigh reports whether any finding is critical or high.
func anyCriticalOrHigh(findings []model.Finding) bool {
	for _, f := range findings {
		if f.Severity == model.SeverityCritical || f.Severity == model.SeverityHigh {
			return true
		}
	}
	return false
}

// escalates reports whether an introduced finding raises severity beyond
// the comparison baseline chosen by the policy.
func (d *Detector) escalates(before model.FindingSet, resolved, introduced []model.Finding) bool {
	baseline := before.Findings
	if d.policy == EscalateResolvedOnly {
		baseline = resolved
	}

	for _, intro := range introduced {
		if intro.Severity != model.SeverityCritical && intro.Severity != model.SeverityHigh {
			continue
		}
		matched := false
		for _, base := range baseline {
			if base.Severity.AtLeast(intro.Severity) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
	}
	return false
}
