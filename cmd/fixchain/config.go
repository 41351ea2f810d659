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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fixchain/fixchain/services/fixchain/model"
)

// Config is the fixchain.yaml file format. Every section has working
// defaults; an absent file yields an in-memory, offline configuration
// suitable for local experimentation.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Reasoning  ReasoningConfig  `yaml:"reasoning"`
	LLM        LLMConfig        `yaml:"llm"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Controller ControllerConfig `yaml:"controller"`
	Analyzers  []AnalyzerConfig `yaml:"analyzers"`
}

// LogConfig configures structured logging destinations.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
	Quiet bool   `yaml:"quiet"`
}

// ReasoningConfig selects the reasoning store and embedder.
//
// With WeaviateHost set, entries go to Weaviate and embeddings come
// from the OpenAI API (key from the OPENAI_API_KEY environment
// variable). Without it, an in-memory store with hashed embeddings
// keeps the loop fully offline.
type ReasoningConfig struct {
	WeaviateHost   string `yaml:"weaviate_host"`
	WeaviateScheme string `yaml:"weaviate_scheme"`
	EmbeddingModel string `yaml:"embedding_model"`
	Dimensions     int    `yaml:"dimensions"`
}

// LLMConfig configures the fix strategy's model access. The API key is
// never stored in the file; it comes from OPENAI_API_KEY.
type LLMConfig struct {
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Temperature       float32       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxContextEntries int           `yaml:"max_context_entries"`
}

// LedgerConfig configures durable bug record storage. An empty Path
// keeps records in memory for the session only.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// ControllerConfig tunes the remediation loop.
type ControllerConfig struct {
	MaxRounds        int           `yaml:"max_rounds"`
	RetrieveK        int           `yaml:"retrieve_k"`
	RejectAfter      int           `yaml:"reject_after"`
	EscalationPolicy string        `yaml:"escalation_policy"`
	AnalyzerTimeout  time.Duration `yaml:"analyzer_timeout"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
	StrategyTimeout  time.Duration `yaml:"strategy_timeout"`
}

// AnalyzerConfig describes one external analyzer tool.
type AnalyzerConfig struct {
	Name            string        `yaml:"name"`
	Command         string        `yaml:"command"`
	Args            []string      `yaml:"args"`
	Kind            string        `yaml:"kind"`
	DefaultSeverity string        `yaml:"default_severity"`
	Timeout         time.Duration `yaml:"timeout"`
}

// loadConfig reads and parses the YAML config file. A missing file at
// the default path is not an error; a missing file at an explicitly
// requested path is.
func loadConfig(path string, explicit bool) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// validate rejects config values the loop cannot run with.
func (c *Config) validate() error {
	for i, a := range c.Analyzers {
		if a.Name == "" || a.Command == "" {
			return fmt.Errorf("analyzer %d: name and command are required", i)
		}
		if a.Kind != "" && !model.FindingKind(a.Kind).IsValid() {
			return fmt.Errorf("analyzer %s: unknown kind %q", a.Name, a.Kind)
		}
		if a.DefaultSeverity != "" && !model.Severity(a.DefaultSeverity).IsValid() {
			return fmt.Errorf("analyzer %s: unknown severity %q", a.Name, a.DefaultSeverity)
		}
	}
	switch c.Controller.EscalationPolicy {
	case "", "any_finding", "resolved_only":
	default:
		return fmt.Errorf("unknown escalation policy %q", c.Controller.EscalationPolicy)
	}
	return nil
}
