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
	"time"

	"github.com/fixchain/fixchain/services/fixchain/regression"
)

// Config tunes one iteration controller. All collaborators are passed in
// explicitly; there is no ambient global state.
type Config struct {
	// MaxRounds caps the number of remediation rounds. Default 5.
	MaxRounds int

	// RetrieveK bounds similarity retrieval per finding. Default 5.
	RetrieveK int

	// RejectAfter is how many consecutive identical failed patches mark
	// a bug rejected. Default 2.
	RejectAfter int

	// EscalationPolicy selects the severity-escalation comparison for
	// regression detection.
	EscalationPolicy regression.EscalationPolicy

	// AnalyzerTimeout bounds one analyzer invocation. Zero disables the
	// per-analyzer deadline.
	AnalyzerTimeout time.Duration

	// StoreTimeout bounds one reasoning store call (store or search).
	StoreTimeout time.Duration

	// StrategyTimeout bounds one fix proposal.
	StrategyTimeout time.Duration
}

// DefaultConfig returns the reference defaults.
func DefaultConfig() Config {
	return Config{
		MaxRounds:        5,
		RetrieveK:        5,
		RejectAfter:      2,
		EscalationPolicy: regression.EscalateAnyFinding,
		AnalyzerTimeout:  2 * time.Minute,
		StoreTimeout:     15 * time.Second,
		StrategyTimeout:  90 * time.Second,
	}
}

// normalize fills zero values with defaults.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.RetrieveK <= 0 {
		c.RetrieveK = d.RetrieveK
	}
	if c.RejectAfter <= 0 {
		c.RejectAfter = d.RejectAfter
	}
	return c
}
