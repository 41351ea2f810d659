// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer defines the pluggable static-check capability consumed by
// the iteration controller, a registry for resolving analyzers by name at
// session start, and the concurrent scan fan-out that merges per-analyzer
// results deterministically.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// Analyzer is the capability interface each pluggable static check implements.
//
// Implementations run one external or in-process check against the artifact
// and return a normalized finding list. A failed tool invocation is reported
// as an *ExecutionError; the controller treats it as a soft failure and drops
// that analyzer's output for the round.
type Analyzer interface {
	// Name returns the analyzer's registry name (e.g. "bandit", "pylint").
	Name() string

	// Run scans the artifact rooted at artifactPath and returns the
	// findings for this round. Implementations must honor ctx cancellation
	// and deadline.
	Run(ctx context.Context, artifactPath string) (model.FindingSet, error)
}

// Registry resolves concrete analyzers by name.
//
// Description:
//
//	Analyzers register once at process start and are resolved into an
//	explicit set when a session begins. There is no reflection-based
//	dispatch; an unknown name is an error at session construction time,
//	not mid-run.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
}

// NewRegistry creates an empty analyzer registry.
func NewRegistry() *Registry {
	return &Registry{analyzers: make(map[string]Analyzer)}
}

// Register adds an analyzer under its name.
//
// Outputs:
//
//	error - Non-nil if the name is already taken or the analyzer is nil.
func (r *Registry) Register(a Analyzer) error {
	if a == nil {
		return fmt.Errorf("%w: analyzer must not be nil", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyzers[a.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, a.Name())
	}
	r.analyzers[a.Name()] = a
	return nil
}

// Resolve returns the analyzers for the given names, in name order.
//
// Outputs:
//
//	[]Analyzer - The resolved analyzers.
//	error - Non-nil if any name is unknown.
func (r *Registry) Resolve(names ...string) ([]Analyzer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	out := make([]Analyzer, 0, len(sorted))
	for _, name := range sorted {
		a, ok := r.analyzers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAnalyzer, name)
		}
		out = append(out, a)
	}
	return out, nil
}

// Names lists all registered analyzer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
