// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// stubAnalyzer returns canned findings or a canned error.
type stubAnalyzer struct {
	name     string
	findings []model.Finding
	err      error
	blockCtx bool
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Run(ctx context.Context, artifactPath string) (model.FindingSet, error) {
	if s.blockCtx {
		<-ctx.Done()
		return model.FindingSet{}, ctx.Err()
	}
	if s.err != nil {
		return model.FindingSet{}, s.err
	}
	return model.NewFindingSet(0, s.name, s.findings), nil
}

func stubFinding(file string, line int, detector string, sev model.Severity) model.Finding {
	return model.Finding{
		Kind:     model.KindSecurity,
		Severity: sev,
		Location: model.Location{File: file, Line: line},
		Detector: detector,
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	bandit := &stubAnalyzer{name: "bandit"}
	pylint := &stubAnalyzer{name: "pylint"}
	if err := r.Register(bandit); err != nil {
		t.Fatalf("Register(bandit) error = %v", err)
	}
	if err := r.Register(pylint); err != nil {
		t.Fatalf("Register(pylint) error = %v", err)
	}

	resolved, err := r.Resolve("pylint", "bandit")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("Resolve() returned %d analyzers, want 2", len(resolved))
	}
	// Name order, not argument order.
	if resolved[0].Name() != "bandit" || resolved[1].Name() != "pylint" {
		t.Errorf("Resolve() order = [%s, %s], want [bandit, pylint]", resolved[0].Name(), resolved[1].Name())
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubAnalyzer{name: "bandit"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&stubAnalyzer{name: "bandit"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestRegistry_UnknownName(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("nonexistent"); !errors.Is(err, ErrUnknownAnalyzer) {
		t.Errorf("Resolve() error = %v, want ErrUnknownAnalyzer", err)
	}
}

func TestRegistry_NilAnalyzer(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Register(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"pylint", "bandit", "mypy"} {
		if err := r.Register(&stubAnalyzer{name: name}); err != nil {
			t.Fatal(err)
		}
	}

	names := r.Names()
	want := []string{"bandit", "mypy", "pylint"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestScan_MergesDeterministically(t *testing.T) {
	shared := stubFinding("a.py", 5, "both", model.SeverityHigh)

	battery := []Analyzer{
		&stubAnalyzer{name: "bandit", findings: []model.Finding{
			shared,
			stubFinding("b.py", 1, "bandit", model.SeverityCritical),
		}},
		&stubAnalyzer{name: "pylint", findings: []model.Finding{
			shared,
			stubFinding("a.py", 9, "pylint", model.SeverityLow),
		}},
	}

	result, err := Scan(context.Background(), battery, ".", 3, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if result.FindingSet.RoundNumber != 3 {
		t.Errorf("RoundNumber = %d, want 3", result.FindingSet.RoundNumber)
	}
	// Dedupes the shared finding: 3 distinct structural keys.
	if result.FindingSet.Len() != 3 {
		t.Errorf("Len() = %d, want 3", result.FindingSet.Len())
	}
	// Critical first regardless of which analyzer finished first.
	if result.FindingSet.Findings[0].Severity != model.SeverityCritical {
		t.Errorf("first finding severity = %s, want critical", result.FindingSet.Findings[0].Severity)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", result.Warnings)
	}
}

func TestScan_SoftFailureDropsOneAnalyzer(t *testing.T) {
	battery := []Analyzer{
		&stubAnalyzer{name: "healthy", findings: []model.Finding{
			stubFinding("a.py", 1, "healthy", model.SeverityMedium),
		}},
		&stubAnalyzer{name: "broken", err: NewExecutionError("broken", errors.New("exit status 2"), "traceback")},
	}

	result, err := Scan(context.Background(), battery, ".", 1, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v, soft failures must not abort the scan", err)
	}

	if result.FindingSet.Len() != 1 {
		t.Errorf("Len() = %d, want the healthy analyzer's finding only", result.FindingSet.Len())
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly one", result.Warnings)
	}
	if result.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", result.Succeeded)
	}
}

func TestScan_AllAnalyzersFail(t *testing.T) {
	battery := []Analyzer{
		&stubAnalyzer{name: "a", err: errors.New("boom")},
		&stubAnalyzer{name: "b", err: errors.New("bang")},
	}

	result, err := Scan(context.Background(), battery, ".", 1, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !result.FindingSet.Empty() {
		t.Error("all-failed scan should produce an empty set")
	}
	if len(result.Warnings) != 2 {
		t.Errorf("Warnings = %v, want two", result.Warnings)
	}
	// An empty set with zero successes is not a clean scan.
	if result.Succeeded != 0 {
		t.Errorf("Succeeded = %d, want 0", result.Succeeded)
	}
}

func TestScan_NoAnalyzers(t *testing.T) {
	if _, err := Scan(context.Background(), nil, ".", 1, 0); !errors.Is(err, ErrNoAnalyzers) {
		t.Errorf("Scan() error = %v, want ErrNoAnalyzers", err)
	}
}

func TestScan_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	battery := []Analyzer{&stubAnalyzer{name: "blocked", blockCtx: true}}

	if _, err := Scan(ctx, battery, ".", 1, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}
