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

import "sort"

// FindingSet is the ordered collection of findings produced by one scan
// round, tagged with the round number and the analyzer (or merged analyzer
// battery) that produced it.
type FindingSet struct {
	// RoundNumber is the 1-based remediation round this set belongs to.
	RoundNumber int `json:"round_number"`

	// AnalyzerName names the producing analyzer, or "merged" for the
	// union of a full analyzer battery.
	AnalyzerName string `json:"analyzer_name"`

	// Findings are the findings in deterministic order: severity
	// descending, location ascending, detector ascending.
	Findings []Finding `json:"findings"`
}

// NewFindingSet builds a finding set in deterministic order.
//
// Description:
//
//	Copies and sorts the findings so that merge order never depends on
//	analyzer completion order. Duplicate structural keys are collapsed to
//	the first (most severe, per sort order) occurrence.
func NewFindingSet(round int, analyzer string, findings []Finding) FindingSet {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	deduped := sorted[:0]
	seen := make(map[string]bool, len(sorted))
	for _, f := range sorted {
		if seen[f.Key()] {
			continue
		}
		seen[f.Key()] = true
		deduped = append(deduped, f)
	}

	return FindingSet{
		RoundNumber:  round,
		AnalyzerName: analyzer,
		Findings:     deduped,
	}
}

// Merge unions several per-analyzer finding sets into one deterministic set.
func Merge(round int, sets ...FindingSet) FindingSet {
	var all []Finding
	for _, s := range sets {
		all = append(all, s.Findings...)
	}
	return NewFindingSet(round, "merged", all)
}

// Empty reports whether the set contains no findings.
func (s FindingSet) Empty() bool {
	return len(s.Findings) == 0
}

// Len returns the number of findings in the set.
func (s FindingSet) Len() int {
	return len(s.Findings)
}

// Keys returns the structural keys of all findings, preserving order.
func (s FindingSet) Keys() []string {
	keys := make([]string, 0, len(s.Findings))
	for _, f := range s.Findings {
		keys = append(keys, f.Key())
	}
	return keys
}

// Contains reports whether a finding with the given structural key is present.
func (s FindingSet) Contains(key string) bool {
	for _, f := range s.Findings {
		if f.Key() == key {
			return true
		}
	}
	return false
}

// Diff computes the structural-key set difference between two rounds.
//
// Description:
//
//	resolved holds findings present in before but absent from after;
//	introduced holds findings present in after but absent from before.
//	Both preserve the deterministic ordering of their source set.
//
// Inputs:
//
//	before - The finding set from the pre-fix scan.
//	after - The finding set from the post-fix scan.
//
// Outputs:
//
//	resolved - Findings the round resolved.
//	introduced - Findings the round introduced.
func Diff(before, after FindingSet) (resolved, introduced []Finding) {
	afterKeys := make(map[string]bool, len(after.Findings))
	for _, f := range after.Findings {
		afterKeys[f.Key()] = true
	}
	beforeKeys := make(map[string]bool, len(before.Findings))
	for _, f := range before.Findings {
		beforeKeys[f.Key()] = true
	}

	for _, f := range before.Findings {
		if !afterKeys[f.Key()] {
			resolved = append(resolved, f)
		}
	}
	for _, f := range after.Findings {
		if !beforeKeys[f.Key()] {
			introduced = append(introduced, f)
		}
	}
	return resolved, introduced
}
