// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strategy defines the fix-production capability consumed by the
// iteration controller and an LLM-backed implementation of it.
package strategy

import (
	"context"
	"errors"

	"github.com/fixchain/fixchain/services/fixchain/model"
	"github.com/fixchain/fixchain/services/fixchain/reasoning"
)

// Sentinel errors for the strategy package.
var (
	// ErrInvalidInput indicates invalid input to a strategy function.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoPatch indicates the strategy examined the finding and declined
	// to produce a patch. The controller carries the finding forward
	// unresolved; this is a soft outcome, not a failure.
	ErrNoPatch = errors.New("no patch produced")
)

// Proposal is a candidate patch plus attempt bookkeeping.
type Proposal struct {
	// Patch is the candidate remediation. Never nil in a returned
	// Proposal.
	Patch *model.Patch

	// TokenUsage is the number of tokens consumed to produce it, when
	// the backing service reports usage.
	TokenUsage int
}

// Strategy is the capability interface producing a candidate remediation
// for one finding, given retrieved reasoning context from past attempts.
//
// Implementations return (nil, ErrNoPatch) when they cannot propose a fix;
// the controller records the attempt and moves on. Any other error is also
// treated as a soft failure per the session's propagation policy. At most
// one candidate patch is requested per finding per round.
type Strategy interface {
	// Name returns the strategy's registry name.
	Name() string

	// Propose produces at most one candidate patch for the finding.
	// fileContent is the current content of the file the finding points
	// at; priors holds the most similar past reasoning entries (may be
	// empty when retrieval degraded).
	Propose(ctx context.Context, finding model.Finding, fileContent string, priors []reasoning.Entry) (*Proposal, error)
}
