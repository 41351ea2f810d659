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
	"errors"
	"fmt"
)

// Sentinel errors for the analyzer package.
var (
	// ErrInvalidInput indicates invalid input to an analyzer function.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownAnalyzer indicates a name with no registered analyzer.
	ErrUnknownAnalyzer = errors.New("unknown analyzer")

	// ErrAlreadyRegistered indicates a duplicate registration.
	ErrAlreadyRegistered = errors.New("analyzer already registered")

	// ErrToolNotInstalled indicates the analyzer binary was not found in PATH.
	ErrToolNotInstalled = errors.New("analyzer tool not installed")

	// ErrToolTimeout indicates the analyzer exceeded its configured timeout.
	ErrToolTimeout = errors.New("analyzer timeout")

	// ErrParseOutput indicates failure to parse the analyzer's JSON output.
	ErrParseOutput = errors.New("failed to parse analyzer output")

	// ErrNoAnalyzers indicates a scan was requested with an empty battery.
	ErrNoAnalyzers = errors.New("no analyzers to run")
)

// ExecutionError wraps a tool-execution failure with context. The controller
// treats it as a soft failure: the analyzer's output is dropped for the round
// and recorded as a warning, but the session continues.
//
// Thread Safety: Immutable after creation.
type ExecutionError struct {
	// Analyzer is the name of the analyzer that failed.
	Analyzer string

	// Err is the underlying error.
	Err error

	// Output contains any stderr output from the tool.
	Output string
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Analyzer, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Analyzer, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates an ExecutionError for the named analyzer.
func NewExecutionError(name string, err error, output string) *ExecutionError {
	return &ExecutionError{Analyzer: name, Err: err, Output: output}
}
