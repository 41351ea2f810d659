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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// CommandConfig configures an external-tool analyzer.
type CommandConfig struct {
	// Name is the analyzer's registry name.
	Name string

	// Command is the tool binary (e.g. "bandit", "semgrep").
	Command string

	// Args are passed before the artifact path. They should put the tool
	// into machine-readable output mode (e.g. "-f", "json").
	Args []string

	// Kind is the finding kind this tool reports (syntax, security, ...).
	Kind model.FindingKind

	// DefaultSeverity is used when the tool omits a severity.
	DefaultSeverity model.Severity

	// Timeout bounds one invocation. Zero disables the internal deadline
	// (the caller-supplied context still applies).
	Timeout time.Duration
}

// CommandAnalyzer runs an external static-check tool and normalizes its JSON
// output into findings. The checker's algorithm stays entirely inside the
// tool; this adapter only owns invocation, timeout, and output parsing.
//
// Thread Safety: Safe for concurrent use; each Run spawns its own process.
type CommandAnalyzer struct {
	config CommandConfig
}

// commandFinding is the normalized JSON shape the tool (or its wrapper
// script) must emit: a top-level array of these objects.
type commandFinding struct {
	Kind       string  `json:"kind,omitempty"`
	Severity   string  `json:"severity"`
	File       string  `json:"file"`
	Line       int     `json:"line"`
	Column     int     `json:"column,omitempty"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence,omitempty"`
}

// NewCommandAnalyzer creates an analyzer backed by an external tool.
//
// Outputs:
//
//	*CommandAnalyzer - The configured analyzer.
//	error - Non-nil if name or command is empty.
func NewCommandAnalyzer(config CommandConfig) (*CommandAnalyzer, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if config.Command == "" {
		return nil, fmt.Errorf("%w: command must not be empty", ErrInvalidInput)
	}
	if config.DefaultSeverity == "" {
		config.DefaultSeverity = model.SeverityMedium
	}
	return &CommandAnalyzer{config: config}, nil
}

// Name returns the analyzer's registry name.
func (a *CommandAnalyzer) Name() string {
	return a.config.Name
}

// IsAvailable reports whether the tool binary is on PATH.
func (a *CommandAnalyzer) IsAvailable() bool {
	_, err := exec.LookPath(a.config.Command)
	return err == nil
}

// Run invokes the tool against the artifact and parses its findings.
//
// Description:
//
//	Runs the configured command with the artifact path appended. Exit
//	code 1 is treated as "findings present" (the convention of bandit,
//	semgrep, and most linters); any other non-zero exit is a tool
//	failure. All failures are wrapped in *ExecutionError so the
//	controller can downgrade them to per-round soft failures.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	artifactPath - Root path of the artifact under remediation.
//
// Outputs:
//
//	model.FindingSet - Normalized findings; round number is filled in by
//	the caller's merge.
//	error - Non-nil (*ExecutionError) if the tool fails or output is
//	unparseable.
func (a *CommandAnalyzer) Run(ctx context.Context, artifactPath string) (model.FindingSet, error) {
	if artifactPath == "" {
		return model.FindingSet{}, NewExecutionError(a.config.Name, ErrInvalidInput, "empty artifact path")
	}
	if !a.IsAvailable() {
		return model.FindingSet{}, NewExecutionError(a.config.Name, ErrToolNotInstalled, a.config.Command)
	}

	runCtx := ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, a.config.Args...), artifactPath)
	cmd := exec.CommandContext(runCtx, a.config.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return model.FindingSet{}, NewExecutionError(a.config.Name, ErrToolTimeout, "")
	}
	if err != nil {
		var exitErr *exec.ExitError
		// Exit code 1 means the tool found issues, not that it failed.
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return model.FindingSet{}, NewExecutionError(a.config.Name, err, stderr.String())
		}
	}

	findings, err := a.parseOutput(stdout.Bytes())
	if err != nil {
		return model.FindingSet{}, NewExecutionError(a.config.Name, err, "")
	}

	return model.NewFindingSet(0, a.config.Name, findings), nil
}

// parseOutput converts the tool's JSON array into validated findings.
// Findings that fail validation are skipped rather than failing the run:
// one malformed entry must not discard an otherwise usable scan.
func (a *CommandAnalyzer) parseOutput(data []byte) ([]model.Finding, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw []commandFinding
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseOutput, err)
	}

	findings := make([]model.Finding, 0, len(raw))
	for _, rf := range raw {
		kind := a.config.Kind
		if rf.Kind != "" {
			kind = model.FindingKind(rf.Kind)
		}
		severity := a.config.DefaultSeverity
		if rf.Severity != "" {
			severity = model.Severity(rf.Severity)
		}

		f := model.Finding{
			Kind:     kind,
			Severity: severity,
			Location: model.Location{
				File:   rf.File,
				Line:   rf.Line,
				Column: rf.Column,
			},
			Description: rf.Message,
			Detector:    a.config.Name,
			Confidence:  rf.Confidence,
		}
		if f.Validate() != nil {
			continue
		}
		findings = append(findings, f)
	}
	return findings, nil
}
