// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package controller drives the per-artifact remediation loop:
// Scan -> Retrieve -> Fix -> Verify -> Decide, round after round, until the
// artifact converges, the round cap is hit, or a degraded round forces a
// rollback. The controller owns the stopping policy and the rollback
// guarantee; analyzers, the fix strategy, and the reasoning store are
// consumed through their capability interfaces.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fixchain/fixchain/services/fixchain/analyzer"
	"github.com/fixchain/fixchain/services/fixchain/ledger"
	"github.com/fixchain/fixchain/services/fixchain/model"
	"github.com/fixchain/fixchain/services/fixchain/reasoning"
	"github.com/fixchain/fixchain/services/fixchain/regression"
	"github.com/fixchain/fixchain/services/fixchain/strategy"
)

// Controller orchestrates remediation sessions. It is constructed once per
// process and shared across artifacts; each Run is one session.
//
// Thread Safety: Safe for concurrent use across *independent* artifacts.
// The artifact under test is exclusively owned by one session for its
// duration; a second Run on the same artifact fails with ErrArtifactBusy.
type Controller struct {
	config   Config
	store    reasoning.Store
	records  *ledger.Store
	detector *regression.Detector

	mu     sync.Mutex
	active map[string]bool
}

// attempt tracks one finding's fix processing within a round.
type attempt struct {
	finding   model.Finding
	proposal  *strategy.Proposal
	outcome   ledger.AttemptOutcome
	rationale string
	applied   bool
}

// New creates a controller.
//
// Inputs:
//
//	config - Loop tuning. Zero values fall back to defaults.
//	store - Reasoning store for retrieval and persistence. Must not be
//	nil; its failures degrade gracefully at run time.
//	records - Optional durable bug record store. May be nil.
//
// Outputs:
//
//	*Controller - The configured controller.
//	error - Non-nil if store is nil.
func New(config Config, store reasoning.Store, records *ledger.Store) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: reasoning store must not be nil", ErrInvalidInput)
	}
	config = config.normalize()
	return &Controller{
		config:   config,
		store:    store,
		records:  records,
		detector: regression.NewDetector(config.EscalationPolicy),
		active:   make(map[string]bool),
	}, nil
}

// Run executes one remediation session against an artifact.
//
// Description:
//
//	Per round: scan with the full analyzer battery, stop on an empty
//	scan (converged, the only success terminal), retrieve similar past
//	reasoning per finding, propose and apply at most one patch per
//	finding in severity-then-location order, re-scan, and classify the
//	delta. A degraded classification rolls the round back byte-for-byte
//	and stops the session. Reasoning entries and bug outcomes are
//	persisted per committed round.
//
//	Per-analyzer and per-fix failures are soft: they surface as warnings
//	on the round summary or bug record and never abort the session. Only
//	a failed rollback is fatal.
//
// Inputs:
//
//	ctx - Session-level cancellation signal. Observed between rounds and
//	between per-finding fix attempts; the artifact is always left in its
//	last committed state.
//	artifactPath - File or directory under remediation.
//	analyzers - Non-empty analyzer battery, resolved at session start.
//	strat - The fix strategy. Must not be nil.
//
// Outputs:
//
//	*SessionResult - Always carries a terminal reason on normal return.
//	error - Non-nil on invalid input, exclusive-ownership conflict, or
//	the fatal rollback-failure path.
func (c *Controller) Run(ctx context.Context, artifactPath string, analyzers []analyzer.Analyzer, strat strategy.Strategy) (*SessionResult, error) {
	if len(analyzers) == 0 {
		return nil, fmt.Errorf("%w: analyzers must be non-empty", ErrInvalidInput)
	}
	if strat == nil {
		return nil, fmt.Errorf("%w: strategy must not be nil", ErrInvalidInput)
	}
	if artifactPath == "" {
		return nil, fmt.Errorf("%w: artifact path must not be empty", ErrInvalidInput)
	}

	if err := c.acquire(artifactPath); err != nil {
		return nil, err
	}
	defer c.release(artifactPath)

	led := ledger.NewLedger(ledger.Config{
		Artifact:    artifactPath,
		RejectAfter: c.config.RejectAfter,
	})
	state := &iterationState{maxRounds: c.config.MaxRounds, terminalReason: TerminalNone}
	result := &SessionResult{Artifact: artifactPath}
	start := time.Now()

	slog.Info("Session started",
		"artifact", artifactPath,
		"analyzers", len(analyzers),
		"strategy", strat.Name(),
		"max_rounds", state.maxRounds)

	for r := 1; r <= state.maxRounds; r++ {
		if ctx.Err() != nil {
			state.terminalReason = TerminalCancelled
			break
		}

		stop, err := c.runRound(ctx, r, artifactPath, analyzers, strat, led, state, result)
		if err != nil {
			c.finish(ctx, led, state, result, start)
			return result, err
		}
		if stop {
			break
		}
	}

	c.finish(ctx, led, state, result, start)
	return result, nil
}

// runRound executes one round. Returns stop=true when a terminal reason was
// set; a non-nil error is fatal to the session.
func (c *Controller) runRound(ctx context.Context, r int, artifactPath string, analyzers []analyzer.Analyzer, strat strategy.Strategy, led *ledger.Ledger, state *iterationState, result *SessionResult) (bool, error) {
	state.roundNumber = r

	// Scan.
	scan, err := analyzer.Scan(ctx, analyzers, artifactPath, r, c.config.AnalyzerTimeout)
	if err != nil {
		if ctx.Err() != nil {
			state.terminalReason = TerminalCancelled
			return true, nil
		}
		return false, err
	}
	current := scan.FindingSet
	summary := RoundSummary{Round: r, FindingsBefore: current.Len(), Warnings: scan.Warnings}

	c.registerFindings(led, current, r, state)

	// Decide-stop-early: an empty scan is the only success terminal. An
	// empty set with zero successful analyzers means nothing was checked,
	// so the round is a no-op rather than convergence.
	if current.Empty() {
		if scan.Succeeded == 0 {
			slog.Warn("Every analyzer failed, convergence not declared", "round", r)
			summary.Warnings = append(summary.Warnings, "no analyzer completed; convergence not declared")
			summary.Verdict = regression.Same
			result.Rounds = append(result.Rounds, summary)
			if r == state.maxRounds {
				state.terminalReason = TerminalCapReached
				return true, nil
			}
			return false, nil
		}
		state.terminalReason = TerminalConverged
		summary.Verdict = regression.Same
		led.CloseRound(r, current)
		result.Rounds = append(result.Rounds, summary)
		return true, nil
	}

	// Snapshot before any patch touches the artifact.
	snap, err := takeSnapshot(artifactPath)
	if err != nil {
		return false, err
	}

	// Fix: at most one candidate patch per finding, severity descending,
	// location ascending. Overlapping patches apply sequentially and are
	// re-validated against the on-disk content left by their
	// predecessors.
	attempts, applied, cancelled := c.fixFindings(ctx, current, artifactPath, strat, led, &summary)
	if cancelled {
		if applied > 0 {
			if err := snap.restore(); err != nil {
				return false, err
			}
		}
		state.terminalReason = TerminalCancelled
		result.Rounds = append(result.Rounds, summary)
		return true, nil
	}

	// Apply & re-scan. With no patches applied the artifact is
	// unchanged, so the pre-fix scan stands in for the post-fix one.
	post := current
	if applied > 0 {
		postScan, err := analyzer.Scan(ctx, analyzers, artifactPath, r, c.config.AnalyzerTimeout)
		if err != nil {
			if ctx.Err() != nil {
				if err := snap.restore(); err != nil {
					return false, err
				}
				state.terminalReason = TerminalCancelled
				result.Rounds = append(result.Rounds, summary)
				return true, nil
			}
			return false, err
		}
		// An all-failed re-scan cannot classify what the patches did, so
		// the round is rolled back instead of committed blind.
		if postScan.Succeeded == 0 {
			slog.Warn("Every analyzer failed on the post-fix scan, rolling the round back", "round", r)
			if err := snap.restore(); err != nil {
				return false, err
			}
			for _, att := range attempts {
				if att.applied {
					att.outcome = ledger.OutcomeRolledBack
				}
			}
			summary.Warnings = append(summary.Warnings, postScan.Warnings...)
			summary.Warnings = append(summary.Warnings, "no analyzer completed the post-fix scan; round rolled back")
			summary.FindingsAfter = current.Len()
			summary.PatchesApplied = applied
			summary.Verdict = regression.Same
			c.persistAndRecord(ctx, led, attempts, r, &summary)
			result.Rounds = append(result.Rounds, summary)
			if r == state.maxRounds {
				state.terminalReason = TerminalCapReached
				return true, nil
			}
			return false, nil
		}
		post = postScan.FindingSet
		summary.Warnings = append(summary.Warnings, postScan.Warnings...)
	}

	// Classify regression. Degraded is the sole rollback gate.
	cls := c.detector.Compare(current, post)
	summary.FindingsAfter = post.Len()
	summary.PatchesApplied = applied
	summary.Resolved = len(cls.Resolved)
	summary.Introduced = len(cls.Introduced)
	summary.Verdict = cls.Verdict

	if cls.Verdict == regression.Degraded {
		slog.Warn("Round degraded the artifact, rolling back",
			"round", r,
			"resolved", len(cls.Resolved),
			"introduced", len(cls.Introduced),
			"escalated", cls.Escalated)
		if err := snap.restore(); err != nil {
			// Fatal: the core safety invariant is violated.
			return false, err
		}
		for _, att := range attempts {
			if att.applied {
				att.outcome = ledger.OutcomeRolledBack
			}
		}
		c.persistAndRecord(ctx, led, attempts, r, &summary)
		state.terminalReason = TerminalRegressionAbort
		result.Rounds = append(result.Rounds, summary)
		return true, nil
	}

	// Commit the round.
	result.TotalFindingsResolved += len(cls.Resolved)
	c.registerFindings(led, post, r, state)
	for _, att := range attempts {
		if att.applied {
			if post.Contains(att.finding.Key()) {
				att.outcome = ledger.OutcomeFailed
			} else {
				att.outcome = ledger.OutcomeFixed
			}
		}
	}
	c.persistAndRecord(ctx, led, attempts, r, &summary)
	led.CloseRound(r, post)

	result.Rounds = append(result.Rounds, summary)

	if post.Empty() {
		state.terminalReason = TerminalConverged
		return true, nil
	}
	if r == state.maxRounds {
		state.terminalReason = TerminalCapReached
		return true, nil
	}
	return false, nil
}

// fixFindings runs the per-finding Retrieve -> Fix -> Apply sequence.
func (c *Controller) fixFindings(ctx context.Context, current model.FindingSet, artifactPath string, strat strategy.Strategy, led *ledger.Ledger, summary *RoundSummary) (attempts []*attempt, applied int, cancelled bool) {
	for _, finding := range current.Findings {
		if ctx.Err() != nil {
			return attempts, applied, true
		}

		if rec := led.GetByKey(finding.Key()); rec != nil && rec.Status == ledger.StatusRejected {
			// No further attempts on a rejected bug.
			continue
		}

		att := &attempt{finding: finding, outcome: ledger.OutcomeNoPatch}
		attempts = append(attempts, att)

		priors := c.retrieve(ctx, finding, summary)

		content, ok, err := fileContent(artifactPath, finding.Location.File)
		if err != nil || !ok {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: cannot read %s", finding.Detector, finding.Location.File))
			continue
		}

		proposal, err := c.propose(ctx, strat, finding, content, priors)
		if err != nil {
			if !errors.Is(err, strategy.ErrNoPatch) {
				summary.Warnings = append(summary.Warnings, fmt.Sprintf("strategy: %v", err))
				led.AttachWarning(finding.BugID(), fmt.Sprintf("round %d: fix production failed: %v", summary.Round, err))
			}
			continue
		}
		att.proposal = proposal
		att.rationale = proposal.Patch.Rationale

		// The content handed to the strategy came from the finding's
		// file; a patch addressed elsewhere would overwrite that file
		// with content derived from the wrong source.
		if proposal.Patch.FilePath != finding.Location.File {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("patch for %s targets %s, not %s; refused", finding.Key(), proposal.Patch.FilePath, finding.Location.File))
			led.AttachWarning(finding.BugID(), fmt.Sprintf("round %d: patch refused: targets %s instead of %s", summary.Round, proposal.Patch.FilePath, finding.Location.File))
			continue
		}

		patched, err := proposal.Patch.Apply(content)
		if err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("patch for %s does not apply: %v", finding.Key(), err))
			led.AttachWarning(finding.BugID(), fmt.Sprintf("round %d: patch rejected: %v", summary.Round, err))
			continue
		}
		if err := writeFileContent(artifactPath, proposal.Patch.FilePath, patched); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("writing %s: %v", proposal.Patch.FilePath, err))
			continue
		}
		att.applied = true
		applied++
	}
	return attempts, applied, false
}

// registerFindings upserts scan results into the ledger and flags
// reintroductions of previously fixed/verified bugs.
func (c *Controller) registerFindings(led *ledger.Ledger, set model.FindingSet, round int, state *iterationState) {
	for _, finding := range set.Findings {
		rec := led.GetByKey(finding.Key())
		if rec == nil {
			led.Upsert(finding, round)
			continue
		}
		if rec.Status == ledger.StatusFixed || rec.Status == ledger.StatusVerified {
			if err := led.RecordReintroduction(rec.BugID, round); err == nil {
				state.newBugsIntroduced++
			}
		}
	}
}

// retrieve queries the reasoning store for similar past entries. Retrieval
// failure degrades gracefully to an empty context set.
func (c *Controller) retrieve(ctx context.Context, finding model.Finding, summary *RoundSummary) []reasoning.Entry {
	searchCtx := ctx
	if c.config.StoreTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, c.config.StoreTimeout)
		defer cancel()
	}

	entries, err := c.store.Search(searchCtx, reasoning.Query{
		Text: fmt.Sprintf("%s finding at %s: %s", finding.Kind, finding.Location.String(), finding.Description),
		K:    c.config.RetrieveK,
		Filter: &reasoning.Filter{
			Kind: string(finding.Kind),
		},
	})
	if err != nil {
		slog.Warn("Reasoning retrieval degraded to empty context",
			"finding", finding.Key(),
			"error", err)
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("retrieval degraded for %s: %v", finding.Key(), err))
		return nil
	}
	return entries
}

// propose invokes the fix strategy with the configured timeout.
func (c *Controller) propose(ctx context.Context, strat strategy.Strategy, finding model.Finding, content string, priors []reasoning.Entry) (*strategy.Proposal, error) {
	proposeCtx := ctx
	if c.config.StrategyTimeout > 0 {
		var cancel context.CancelFunc
		proposeCtx, cancel = context.WithTimeout(ctx, c.config.StrategyTimeout)
		defer cancel()
	}
	return strat.Propose(proposeCtx, finding, content, priors)
}

// persistAndRecord writes one reasoning entry per processed finding and
// appends the fix attempt to the bug's history. Store failures are soft:
// the attempt is still recorded in the ledger, minus the entry link.
func (c *Controller) persistAndRecord(ctx context.Context, led *ledger.Ledger, attempts []*attempt, round int, summary *RoundSummary) {
	for _, att := range attempts {
		bugID := att.finding.BugID()

		entry := reasoning.Entry{
			Content: att.rationale,
			Tags: []string{
				string(att.finding.Kind),
				string(att.finding.Severity),
				string(att.outcome),
			},
			Metadata: reasoning.Metadata{
				BugID:      bugID,
				TestName:   att.finding.Detector,
				Round:      round,
				Kind:       string(att.finding.Kind),
				Tool:       att.finding.Detector,
				Outcome:    string(att.outcome),
				SourceFile: att.finding.Location.File,
			},
		}
		if entry.Content == "" {
			entry.Content = fmt.Sprintf("no patch produced for %s finding at %s (%s)",
				att.finding.Kind, att.finding.Location.String(), att.finding.Description)
		}
		if att.proposal != nil {
			entry.Metadata.Confidence = att.proposal.Patch.Confidence
			entry.Metadata.TokenUsage = att.proposal.TokenUsage
		}

		entryID := c.persist(ctx, entry, summary)

		fix := ledger.FixAttempt{
			Round:            round,
			Outcome:          att.outcome,
			ReasoningEntryID: entryID,
		}
		if att.proposal != nil {
			fix.PatchDigest = att.proposal.Patch.Digest()
		}
		if err := led.RecordFixAttempt(bugID, fix); err != nil {
			slog.Warn("Fix attempt not recorded", "bug_id", bugID, "error", err)
		}
	}
}

// persist writes one reasoning entry, degrading to a warning on failure.
func (c *Controller) persist(ctx context.Context, entry reasoning.Entry, summary *RoundSummary) string {
	storeCtx := ctx
	if c.config.StoreTimeout > 0 {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(ctx, c.config.StoreTimeout)
		defer cancel()
	}

	id, err := c.store.Store(storeCtx, entry)
	if err != nil {
		slog.Warn("Reasoning persistence skipped",
			"bug_id", entry.Metadata.BugID,
			"error", err)
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("persistence skipped for %s: %v", entry.Metadata.BugID, err))
		return ""
	}
	return id
}

// finish seals the session result, persists bug records durably, and
// records metrics.
func (c *Controller) finish(ctx context.Context, led *ledger.Ledger, state *iterationState, result *SessionResult, start time.Time) {
	if state.terminalReason == TerminalNone {
		// The loop always sets a terminal reason before exiting.
		state.terminalReason = TerminalCapReached
	}
	result.TerminalReason = state.terminalReason
	result.RoundsExecuted = state.roundNumber
	result.Bugs = led.Records()
	result.CumulativeNewBugsIntroduced = state.newBugsIntroduced

	if c.records != nil && len(result.Bugs) > 0 {
		if err := c.records.PutAll(result.Bugs); err != nil {
			slog.Warn("Bug record persistence failed", "error", err)
		}
	}

	recordSession(ctx, result, time.Since(start))
	slog.Info("Session finished",
		"artifact", result.Artifact,
		"terminal_reason", result.TerminalReason,
		"rounds", result.RoundsExecuted,
		"resolved", result.TotalFindingsResolved,
		"reintroduced", result.CumulativeNewBugsIntroduced)
}

// acquire takes exclusive ownership of an artifact for one session.
func (c *Controller) acquire(artifactPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[artifactPath] {
		return fmt.Errorf("%w: %s", ErrArtifactBusy, artifactPath)
	}
	c.active[artifactPath] = true
	return nil
}

// release returns ownership of an artifact.
func (c *Controller) release(artifactPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, artifactPath)
}
