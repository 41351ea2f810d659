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

import (
	"errors"
	"sort"
	"strings"
	"testing"
)

func validFinding() Finding {
	return Finding{
		Kind:        KindSecurity,
		Severity:    SeverityHigh,
		Location:    Location{File: "app/handlers.py", Line: 42, Column: 5},
		Description: "possible SQL injection",
		Detector:    "bandit",
		Confidence:  0.9,
	}
}

func TestFinding_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Finding)
		wantErr bool
	}{
		{"valid", func(f *Finding) {}, false},
		{"unknown kind", func(f *Finding) { f.Kind = "style" }, true},
		{"unknown severity", func(f *Finding) { f.Severity = "fatal" }, true},
		{"zero line", func(f *Finding) { f.Location.Line = 0 }, true},
		{"negative line", func(f *Finding) { f.Location.Line = -3 }, true},
		{"confidence above one", func(f *Finding) { f.Confidence = 1.5 }, true},
		{"confidence negative", func(f *Finding) { f.Confidence = -0.1 }, true},
		{"empty detector", func(f *Finding) { f.Detector = "" }, true},
		{"zero column ok", func(f *Finding) { f.Location.Column = 0 }, false},
		{"empty description ok", func(f *Finding) { f.Description = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFinding()
			tt.mutate(&f)
			err := f.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFinding) {
				t.Errorf("Validate() error should wrap ErrInvalidFinding, got %v", err)
			}
		})
	}
}

func TestFinding_Key_IgnoresDescription(t *testing.T) {
	a := validFinding()
	b := validFinding()
	b.Description = "SQL injection risk detected (reworded by newer analyzer)"
	b.Confidence = 0.4
	b.Severity = SeverityCritical // severity is not part of identity either

	if a.Key() != b.Key() {
		t.Errorf("keys differ for structurally identical findings:\n  %s\n  %s", a.Key(), b.Key())
	}
	if a.BugID() != b.BugID() {
		t.Errorf("bug IDs differ for structurally identical findings: %s vs %s", a.BugID(), b.BugID())
	}
}

func TestFinding_Key_DistinguishesStructure(t *testing.T) {
	base := validFinding()

	tests := []struct {
		name   string
		mutate func(*Finding)
	}{
		{"different kind", func(f *Finding) { f.Kind = KindLogic }},
		{"different file", func(f *Finding) { f.Location.File = "app/models.py" }},
		{"different line", func(f *Finding) { f.Location.Line = 43 }},
		{"different column", func(f *Finding) { f.Location.Column = 6 }},
		{"different detector", func(f *Finding) { f.Detector = "semgrep" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := validFinding()
			tt.mutate(&other)
			if base.Key() == other.Key() {
				t.Errorf("key %s should differ from base", other.Key())
			}
		})
	}
}

func TestFinding_BugID_Format(t *testing.T) {
	id := validFinding().BugID()

	if !strings.HasPrefix(id, "bug_") {
		t.Errorf("BugID() = %s, want bug_ prefix", id)
	}
	// 8 digest bytes hex-encoded.
	if len(id) != len("bug_")+16 {
		t.Errorf("BugID() = %s, want 16 hex chars after prefix", id)
	}

	// Same input, same ID, across calls.
	if id != validFinding().BugID() {
		t.Error("BugID() is not deterministic")
	}
}

func TestFinding_Less_Ordering(t *testing.T) {
	critical := Finding{Kind: KindSecurity, Severity: SeverityCritical, Location: Location{File: "z.py", Line: 99}, Detector: "bandit"}
	highEarly := Finding{Kind: KindLogic, Severity: SeverityHigh, Location: Location{File: "a.py", Line: 1}, Detector: "pylint"}
	highLate := Finding{Kind: KindLogic, Severity: SeverityHigh, Location: Location{File: "a.py", Line: 50}, Detector: "pylint"}
	low := Finding{Kind: KindPerformance, Severity: SeverityLow, Location: Location{File: "a.py", Line: 1}, Detector: "perfcheck"}

	findings := []Finding{low, highLate, critical, highEarly}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Less(findings[j]) })

	want := []Finding{critical, highEarly, highLate, low}
	for i := range want {
		if findings[i] != want[i] {
			t.Fatalf("position %d: got %s/%s, want %s/%s",
				i, findings[i].Severity, findings[i].Location.String(),
				want[i].Severity, want[i].Location.String())
		}
	}
}

func TestFinding_Less_TieBreakByDetector(t *testing.T) {
	a := validFinding()
	a.Detector = "bandit"
	b := validFinding()
	b.Detector = "semgrep"

	if !a.Less(b) {
		t.Error("bandit should sort before semgrep at equal severity and location")
	}
	if b.Less(a) {
		t.Error("ordering must be asymmetric")
	}
}

func TestSeverity_Rank(t *testing.T) {
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical should be at least high")
	}
	if !SeverityHigh.AtLeast(SeverityHigh) {
		t.Error("AtLeast should be reflexive")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Error("low should not be at least medium")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity should rank below low")
	}
}

func TestLocation_String(t *testing.T) {
	withCol := Location{File: "a.py", Line: 10, Column: 3}
	if got := withCol.String(); got != "a.py:10:3" {
		t.Errorf("String() = %s, want a.py:10:3", got)
	}
	noCol := Location{File: "a.py", Line: 10}
	if got := noCol.String(); got != "a.py:10" {
		t.Errorf("String() = %s, want a.py:10", got)
	}
}
