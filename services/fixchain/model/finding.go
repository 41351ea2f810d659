// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the shared data types for the fixchain remediation
// loop: findings reported by analyzers, ordered finding sets per scan round,
// and candidate patches produced by fix strategies.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FindingKind classifies what category of issue an analyzer reported.
type FindingKind string

const (
	KindSyntax      FindingKind = "syntax"
	KindType        FindingKind = "type"
	KindSecurity    FindingKind = "security"
	KindLogic       FindingKind = "logic"
	KindPerformance FindingKind = "performance"
)

// IsValid reports whether the kind is one of the known categories.
func (k FindingKind) IsValid() bool {
	switch k {
	case KindSyntax, KindType, KindSecurity, KindLogic, KindPerformance:
		return true
	}
	return false
}

// Severity ranks how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank maps severities to a sortable weight. Higher is worse.
var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// Rank returns the sortable weight of the severity. Unknown severities
// rank below low so malformed analyzer output never outranks real issues.
func (s Severity) Rank() int {
	return severityRank[s]
}

// IsValid reports whether the severity is one of the known levels.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is equal to or more severe than other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Location identifies where in the artifact a finding was reported.
type Location struct {
	// File is the path of the offending file, relative to the artifact root.
	File string `json:"file"`

	// Line is the 1-based line number. Must be positive.
	Line int `json:"line"`

	// Column is the optional 1-based column. Zero means unknown.
	Column int `json:"column,omitempty"`
}

// String renders the location as file:line[:column].
func (l Location) String() string {
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Less orders locations by file, then line, then column.
func (l Location) Less(other Location) bool {
	if l.File != other.File {
		return l.File < other.File
	}
	if l.Line != other.Line {
		return l.Line < other.Line
	}
	return l.Column < other.Column
}

// Finding is one issue reported by a single analyzer run.
//
// Findings are immutable values: they are created fresh on every scan and
// never mutated afterwards. Identity across rounds is established by the
// structural key (see Key), not by pointer equality.
type Finding struct {
	// Kind is the issue category.
	Kind FindingKind `json:"kind"`

	// Severity is the reported severity level.
	Severity Severity `json:"severity"`

	// Location is where the issue was reported. Location.Line must be > 0.
	Location Location `json:"location"`

	// Description is the analyzer's human-readable message. It does NOT
	// participate in structural identity so analyzer wording changes do
	// not split one logical bug into two.
	Description string `json:"description"`

	// Detector is the name of the analyzer that produced the finding.
	Detector string `json:"detector"`

	// Confidence is the analyzer's confidence in [0,1]. Zero when the
	// analyzer does not report confidence.
	Confidence float64 `json:"confidence,omitempty"`
}

// Validate checks the finding invariants.
//
// Outputs:
//
//	error - Non-nil if the kind or severity is unknown, the line is not
//	positive, or the confidence falls outside [0,1].
func (f Finding) Validate() error {
	if !f.Kind.IsValid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidFinding, f.Kind)
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("%w: severity %q", ErrInvalidFinding, f.Severity)
	}
	if f.Location.Line <= 0 {
		return fmt.Errorf("%w: line %d must be positive", ErrInvalidFinding, f.Location.Line)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f outside [0,1]", ErrInvalidFinding, f.Confidence)
	}
	if f.Detector == "" {
		return fmt.Errorf("%w: detector must not be empty", ErrInvalidFinding)
	}
	return nil
}

// Key returns the structural identity key of the finding.
//
// Description:
//
//	The key is built from kind, location, and detector only. Description
//	is deliberately excluded so superficial message changes between
//	analyzer versions do not break bug identity continuity across rounds.
func (f Finding) Key() string {
	return fmt.Sprintf("%s|%s|%d|%d|%s", f.Kind, f.Location.File, f.Location.Line, f.Location.Column, f.Detector)
}

// BugID derives the stable bug identifier from the structural key.
//
// Description:
//
//	The ID is a truncated SHA-256 digest of the structural key, prefixed
//	for readability in logs and store queries. Two findings with the same
//	structural key always derive the same bug ID.
func (f Finding) BugID() string {
	sum := sha256.Sum256([]byte(f.Key()))
	return "bug_" + hex.EncodeToString(sum[:8])
}

// Less orders findings by severity descending, then location ascending,
// then detector name ascending. This is the deterministic merge order used
// when combining concurrent analyzer results.
func (f Finding) Less(other Finding) bool {
	if f.Severity.Rank() != other.Severity.Rank() {
		return f.Severity.Rank() > other.Severity.Rank()
	}
	if f.Location != other.Location {
		return f.Location.Less(other.Location)
	}
	return f.Detector < other.Detector
}
