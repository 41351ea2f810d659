// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controller

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for remediation sessions.
var meter = otel.Meter("fixchain.controller")

// Metrics for remediation sessions.
var (
	roundsTotal     metric.Int64Counter
	rollbacksTotal  metric.Int64Counter
	resolvedTotal   metric.Int64Counter
	sessionDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		roundsTotal, err = meter.Int64Counter(
			"fixchain_rounds_total",
			metric.WithDescription("Total number of remediation rounds executed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbacksTotal, err = meter.Int64Counter(
			"fixchain_rollbacks_total",
			metric.WithDescription("Total number of degraded rounds rolled back"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolvedTotal, err = meter.Int64Counter(
			"fixchain_findings_resolved_total",
			metric.WithDescription("Total number of findings resolved by committed rounds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sessionDuration, err = meter.Float64Histogram(
			"fixchain_session_duration_seconds",
			metric.WithDescription("Duration of remediation sessions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSession records terminal session metrics. No-op when metric
// initialization failed; observability must never fail a session.
func recordSession(ctx context.Context, result *SessionResult, elapsed time.Duration) {
	if initMetrics() != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("terminal_reason", string(result.TerminalReason)),
	)
	roundsTotal.Add(ctx, int64(result.RoundsExecuted), attrs)
	resolvedTotal.Add(ctx, int64(result.TotalFindingsResolved), attrs)
	if result.TerminalReason == TerminalRegressionAbort {
		rollbacksTotal.Add(ctx, 1, attrs)
	}
	sessionDuration.Record(ctx, elapsed.Seconds(), attrs)
}
