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
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// ScanResult is the merged outcome of running a full analyzer battery.
type ScanResult struct {
	// FindingSet is the deterministic union of all successful analyzer runs.
	FindingSet model.FindingSet

	// Warnings records per-analyzer soft failures for the round summary.
	Warnings []string

	// Succeeded is how many analyzers completed. Zero means the merged
	// set reflects no actual checks and must not be read as a clean scan.
	Succeeded int
}

// Scan runs every analyzer against the artifact concurrently and merges the
// results deterministically.
//
// Description:
//
//	Analyzer invocations within one round are independent (same input
//	artifact, no ordering dependency), so they run in parallel. Results
//	are merged by sorting on (severity desc, location asc, detector asc),
//	so merge order never depends on completion order. An analyzer failing
//	with a tool-execution error is a soft failure: its output is dropped
//	for the round and a warning is recorded.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	analyzers - The resolved analyzer battery. Must be non-empty.
//	artifactPath - Root path of the artifact under remediation.
//	round - The 1-based round number to tag the merged set with.
//	timeout - Per-analyzer timeout; zero means no per-analyzer deadline.
//
// Outputs:
//
//	*ScanResult - Merged findings plus soft-failure warnings.
//	error - Non-nil only on invalid input or context cancellation.
func Scan(ctx context.Context, analyzers []Analyzer, artifactPath string, round int, timeout time.Duration) (*ScanResult, error) {
	if len(analyzers) == 0 {
		return nil, ErrNoAnalyzers
	}

	var (
		mu       sync.Mutex
		sets     []model.FindingSet
		warnings []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range analyzers {
		g.Go(func() error {
			runCtx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}

			set, err := a.Run(runCtx, artifactPath)
			if err != nil {
				// Session-level cancellation propagates; tool failures
				// and per-analyzer timeouts degrade to warnings.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("Analyzer failed, dropping its output for this round",
					"analyzer", a.Name(),
					"round", round,
					"error", err)
				mu.Lock()
				warnings = append(warnings, a.Name()+": "+err.Error())
				mu.Unlock()
				return nil
			}

			mu.Lock()
			sets = append(sets, set)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := model.Merge(round, sets...)
	slog.Debug("Scan complete",
		"round", round,
		"analyzers", len(analyzers),
		"failed", len(warnings),
		"findings", merged.Len())

	return &ScanResult{FindingSet: merged, Warnings: warnings, Succeeded: len(sets)}, nil
}
