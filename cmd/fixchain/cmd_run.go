// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/fixchain/fixchain/services/fixchain/analyzer"
	"github.com/fixchain/fixchain/services/fixchain/controller"
	"github.com/fixchain/fixchain/services/fixchain/ledger"
	"github.com/fixchain/fixchain/services/fixchain/model"
	"github.com/fixchain/fixchain/services/fixchain/reasoning"
	"github.com/fixchain/fixchain/services/fixchain/regression"
	"github.com/fixchain/fixchain/services/fixchain/strategy"
)

// runSession wires a controller from the loaded config and executes one
// remediation session. SIGINT/SIGTERM cancel the session at the next
// round boundary; the artifact is left in its last committed state.
func runSession(cmd *cobra.Command, args []string) error {
	artifact := args[0]
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("artifact %s: %w", artifact, err)
	}

	analyzers, err := buildAnalyzers(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildReasoningStore(ctx, config)
	if err != nil {
		return err
	}

	strat, err := buildStrategy(config)
	if err != nil {
		return err
	}

	var records *ledger.Store
	if config.Ledger.Path != "" {
		records, err = ledger.OpenStore(ledger.DefaultStoreConfig(config.Ledger.Path))
		if err != nil {
			return fmt.Errorf("opening bug record store: %w", err)
		}
		defer records.Close()
	}

	ctrl, err := controller.New(buildControllerConfig(config), store, records)
	if err != nil {
		return err
	}

	result, err := ctrl.Run(ctx, artifact, analyzers, strat)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(result)
	return nil
}

// buildAnalyzers constructs the analyzer battery from config, dropping
// tools that are not installed so one missing binary does not block the
// rest of the battery.
func buildAnalyzers(cfg *Config) ([]analyzer.Analyzer, error) {
	if len(cfg.Analyzers) == 0 {
		return nil, fmt.Errorf("no analyzers configured; add an analyzers section to %s", configPath)
	}

	var battery []analyzer.Analyzer
	for _, ac := range cfg.Analyzers {
		ca, err := analyzer.NewCommandAnalyzer(analyzer.CommandConfig{
			Name:            ac.Name,
			Command:         ac.Command,
			Args:            ac.Args,
			Kind:            model.FindingKind(ac.Kind),
			DefaultSeverity: model.Severity(ac.DefaultSeverity),
			Timeout:         ac.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("analyzer %s: %w", ac.Name, err)
		}
		if !ca.IsAvailable() {
			slog.Warn("Analyzer tool not found on PATH, skipping", "analyzer", ac.Name, "command", ac.Command)
			continue
		}
		battery = append(battery, ca)
	}
	if len(battery) == 0 {
		return nil, fmt.Errorf("none of the configured analyzer tools are installed")
	}
	return battery, nil
}

// buildReasoningStore returns a Weaviate-backed store when a host is
// configured, otherwise an in-memory store so the loop runs offline.
func buildReasoningStore(ctx context.Context, cfg *Config) (reasoning.Store, error) {
	embedder := buildEmbedder(cfg)

	if cfg.Reasoning.WeaviateHost == "" {
		slog.Info("No Weaviate host configured, using in-memory reasoning store")
		return reasoning.NewMemoryStore(embedder)
	}

	scheme := cfg.Reasoning.WeaviateScheme
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Reasoning.WeaviateHost,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	if err := reasoning.EnsureSchema(ctx, client); err != nil {
		return nil, fmt.Errorf("ensuring reasoning schema: %w", err)
	}
	return reasoning.NewWeaviateStore(client, embedder)
}

// buildEmbedder prefers the OpenAI embedding API when a key is present
// and falls back to deterministic hashed embeddings.
func buildEmbedder(cfg *Config) reasoning.Embedder {
	dims := cfg.Reasoning.Dimensions
	if dims <= 0 {
		dims = reasoning.DefaultDimensions
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Info("OPENAI_API_KEY not set, using hashed embeddings")
		return reasoning.NewHashingEmbedder(dims)
	}

	embedder, err := reasoning.NewOpenAIEmbedder(reasoning.OpenAIEmbedderConfig{
		APIKey:     apiKey,
		Dimensions: dims,
	})
	if err != nil {
		slog.Warn("OpenAI embedder unavailable, using hashed embeddings", "error", err)
		return reasoning.NewHashingEmbedder(dims)
	}
	return embedder
}

// buildStrategy constructs the LLM fix strategy from config plus the
// OPENAI_API_KEY environment variable.
func buildStrategy(cfg *Config) (strategy.Strategy, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required to run fix sessions")
	}

	lc := strategy.DefaultLLMConfig(apiKey)
	if cfg.LLM.Model != "" {
		lc.Model = cfg.LLM.Model
	}
	if cfg.LLM.BaseURL != "" {
		lc.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.LLM.Temperature != 0 {
		lc.Temperature = cfg.LLM.Temperature
	}
	if cfg.LLM.Timeout != 0 {
		lc.Timeout = cfg.LLM.Timeout
	}
	if cfg.LLM.MaxContextEntries != 0 {
		lc.MaxContextEntries = cfg.LLM.MaxContextEntries
	}
	return strategy.NewLLMStrategy(lc)
}

// buildControllerConfig merges the config file with CLI overrides.
func buildControllerConfig(cfg *Config) controller.Config {
	cc := controller.DefaultConfig()
	if cfg.Controller.MaxRounds > 0 {
		cc.MaxRounds = cfg.Controller.MaxRounds
	}
	if maxRounds > 0 {
		cc.MaxRounds = maxRounds
	}
	if cfg.Controller.RetrieveK > 0 {
		cc.RetrieveK = cfg.Controller.RetrieveK
	}
	if cfg.Controller.RejectAfter > 0 {
		cc.RejectAfter = cfg.Controller.RejectAfter
	}
	if cfg.Controller.EscalationPolicy == "resolved_only" {
		cc.EscalationPolicy = regression.EscalateResolvedOnly
	}
	if cfg.Controller.AnalyzerTimeout > 0 {
		cc.AnalyzerTimeout = cfg.Controller.AnalyzerTimeout
	}
	if cfg.Controller.StoreTimeout > 0 {
		cc.StoreTimeout = cfg.Controller.StoreTimeout
	}
	if cfg.Controller.StrategyTimeout > 0 {
		cc.StrategyTimeout = cfg.Controller.StrategyTimeout
	}
	return cc
}

// printResult writes a human-readable session report to stdout.
func printResult(result *controller.SessionResult) {
	fmt.Printf("Artifact:   %s\n", result.Artifact)
	fmt.Printf("Stopped:    %s after %d round(s)\n", result.TerminalReason, result.RoundsExecuted)
	fmt.Printf("Resolved:   %d finding(s)\n", result.TotalFindingsResolved)
	if result.CumulativeNewBugsIntroduced > 0 {
		fmt.Printf("Reintroduced: %d previously fixed bug(s)\n", result.CumulativeNewBugsIntroduced)
	}
	fmt.Println()

	for _, round := range result.Rounds {
		fmt.Printf("  round %d: %d -> %d findings, %d patch(es), verdict %s\n",
			round.Round, round.FindingsBefore, round.FindingsAfter,
			round.PatchesApplied, round.Verdict)
		for _, w := range round.Warnings {
			fmt.Printf("    warning: %s\n", w)
		}
	}

	if len(result.Bugs) > 0 {
		fmt.Println()
		fmt.Println("Bugs:")
		for _, bug := range result.Bugs {
			fmt.Printf("  %s  %-14s %-8s %s\n",
				bug.BugID, bug.Status, bug.Severity, bug.SourceLocation.String())
		}
	}
}
