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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// writeTool drops an executable shell script into a temp dir and returns
// its path. Findings tools print JSON on stdout and exit 1 when they
// found something.
func writeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools are not portable to windows")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewCommandAnalyzer_Validation(t *testing.T) {
	if _, err := NewCommandAnalyzer(CommandConfig{Command: "bandit"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing name: error = %v, want ErrInvalidInput", err)
	}
	if _, err := NewCommandAnalyzer(CommandConfig{Name: "bandit"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing command: error = %v, want ErrInvalidInput", err)
	}
}

func TestCommandAnalyzer_Run_ParsesFindings(t *testing.T) {
	tool := writeTool(t, `cat <<'EOF'
[
  {"severity": "high", "file": "app.py", "line": 12, "column": 4, "message": "hardcoded password", "confidence": 0.95},
  {"kind": "logic", "severity": "low", "file": "app.py", "line": 30, "message": "unused variable"}
]
EOF
exit 1`)

	a, err := NewCommandAnalyzer(CommandConfig{
		Name:            "bandit",
		Command:         tool,
		Kind:            model.KindSecurity,
		DefaultSeverity: model.SeverityMedium,
	})
	if err != nil {
		t.Fatal(err)
	}

	set, err := a.Run(context.Background(), ".")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}

	first := set.Findings[0]
	if first.Kind != model.KindSecurity {
		t.Errorf("Kind = %s, want security (config default)", first.Kind)
	}
	if first.Severity != model.SeverityHigh {
		t.Errorf("Severity = %s, want high", first.Severity)
	}
	if first.Detector != "bandit" {
		t.Errorf("Detector = %s, want bandit", first.Detector)
	}
	if first.Location.String() != "app.py:12:4" {
		t.Errorf("Location = %s, want app.py:12:4", first.Location.String())
	}

	// Per-finding kind override.
	if set.Findings[1].Kind != model.KindLogic {
		t.Errorf("second Kind = %s, want logic (from tool output)", set.Findings[1].Kind)
	}
}

func TestCommandAnalyzer_Run_CleanExit(t *testing.T) {
	tool := writeTool(t, `echo '[]'
exit 0`)

	a, err := NewCommandAnalyzer(CommandConfig{Name: "clean", Command: tool, Kind: model.KindSyntax})
	if err != nil {
		t.Fatal(err)
	}

	set, err := a.Run(context.Background(), ".")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !set.Empty() {
		t.Errorf("Len() = %d, want empty set", set.Len())
	}
}

func TestCommandAnalyzer_Run_ToolFailure(t *testing.T) {
	tool := writeTool(t, `echo "internal crash" >&2
exit 2`)

	a, err := NewCommandAnalyzer(CommandConfig{Name: "crasher", Command: tool, Kind: model.KindSyntax})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Run(context.Background(), ".")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want *ExecutionError", err)
	}
	if execErr.Analyzer != "crasher" {
		t.Errorf("Analyzer = %s, want crasher", execErr.Analyzer)
	}
	if execErr.Output == "" {
		t.Error("ExecutionError should carry the tool's stderr")
	}
}

func TestCommandAnalyzer_Run_ToolNotInstalled(t *testing.T) {
	a, err := NewCommandAnalyzer(CommandConfig{
		Name:    "ghost",
		Command: "definitely-not-a-real-binary-name",
		Kind:    model.KindSyntax,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Run(context.Background(), ".")
	if !errors.Is(err, ErrToolNotInstalled) {
		t.Errorf("Run() error = %v, want ErrToolNotInstalled", err)
	}
}

func TestCommandAnalyzer_Run_GarbageOutput(t *testing.T) {
	tool := writeTool(t, `echo "Traceback (most recent call last):"
exit 1`)

	a, err := NewCommandAnalyzer(CommandConfig{Name: "noisy", Command: tool, Kind: model.KindSyntax})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Run(context.Background(), "."); !errors.Is(err, ErrParseOutput) {
		t.Errorf("Run() error = %v, want ErrParseOutput", err)
	}
}

func TestCommandAnalyzer_parseOutput_SkipsInvalidEntries(t *testing.T) {
	a, err := NewCommandAnalyzer(CommandConfig{
		Name:            "mixed",
		Command:         "true",
		Kind:            model.KindSecurity,
		DefaultSeverity: model.SeverityMedium,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Second entry has line 0 and must be dropped, not fail the scan.
	data := []byte(`[
		{"severity": "high", "file": "a.py", "line": 4, "message": "real"},
		{"severity": "high", "file": "a.py", "line": 0, "message": "bogus"}
	]`)

	findings, err := a.parseOutput(data)
	if err != nil {
		t.Fatalf("parseOutput() error = %v", err)
	}
	if len(findings) != 1 {
		t.Errorf("len(findings) = %d, want 1 (invalid entry skipped)", len(findings))
	}
}

func TestCommandAnalyzer_parseOutput_Empty(t *testing.T) {
	a, err := NewCommandAnalyzer(CommandConfig{Name: "quiet", Command: "true", Kind: model.KindSyntax})
	if err != nil {
		t.Fatal(err)
	}

	findings, err := a.parseOutput([]byte("  \n"))
	if err != nil {
		t.Fatalf("parseOutput() error = %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("len(findings) = %d, want 0", len(findings))
	}
}
