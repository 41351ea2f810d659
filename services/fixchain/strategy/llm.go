// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fixchain/fixchain/services/fixchain/model"
	"github.com/fixchain/fixchain/services/fixchain/reasoning"
)

const fixSystemPrompt = `You are an automated code remediation engine.
You receive one static-analysis finding, the current content of the affected
file, and rationale from similar past fixes. Respond with a unified diff that
fixes ONLY the reported finding, inside a fenced code block, followed by a
one-paragraph rationale. If no safe fix exists, respond with exactly NO_PATCH.`

// LLMConfig configures the LLM-backed fix strategy.
type LLMConfig struct {
	// APIKey authenticates against the OpenAI-compatible API.
	APIKey string

	// BaseURL overrides the API endpoint for self-hosted gateways.
	// Empty means the default OpenAI endpoint.
	BaseURL string

	// Model is the chat model used for fix generation.
	Model string

	// Temperature for generation. Low values keep diffs conservative.
	Temperature float32

	// Timeout bounds one Propose call. Zero means the caller's context
	// deadline alone applies.
	Timeout time.Duration

	// MaxContextEntries caps how many prior reasoning entries are
	// rendered into the prompt.
	MaxContextEntries int
}

// DefaultLLMConfig returns conservative generation defaults.
func DefaultLLMConfig(apiKey string) LLMConfig {
	return LLMConfig{
		APIKey:            apiKey,
		Model:             openai.GPT4oMini,
		Temperature:       0.1,
		Timeout:           60 * time.Second,
		MaxContextEntries: 5,
	}
}

// LLMStrategy produces candidate patches by prompting a chat model with the
// finding, the affected file, and retrieved reasoning context.
//
// Thread Safety: Safe for concurrent use.
type LLMStrategy struct {
	client *openai.Client
	config LLMConfig
}

// NewLLMStrategy creates an LLM-backed fix strategy.
//
// Outputs:
//
//	*LLMStrategy - The configured strategy.
//	error - Non-nil if the API key or model is missing.
func NewLLMStrategy(config LLMConfig) (*LLMStrategy, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: API key must not be empty", ErrInvalidInput)
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxContextEntries <= 0 {
		config.MaxContextEntries = 5
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &LLMStrategy{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the strategy's registry name.
func (s *LLMStrategy) Name() string {
	return "llm"
}

// Propose asks the model for a unified diff fixing the finding.
//
// Description:
//
//	Renders the finding, file content, and prior reasoning into one
//	prompt and parses the reply. A NO_PATCH reply or a reply without a
//	parseable diff yields ErrNoPatch, which the controller treats as a
//	soft outcome: the finding carries to the next round unchanged.
//
// Outputs:
//
//	*Proposal - Validated patch plus token usage.
//	error - ErrNoPatch when no fix was produced; other errors for API
//	failures (also soft at the session level).
func (s *LLMStrategy) Propose(ctx context.Context, finding model.Finding, fileContent string, priors []reasoning.Entry) (*Proposal, error) {
	if err := finding.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	callCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: s.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fixSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: s.renderPrompt(finding, fileContent, priors)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fix generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoPatch
	}

	reply := resp.Choices[0].Message.Content
	usage := resp.Usage.TotalTokens

	if strings.Contains(reply, "NO_PATCH") {
		slog.Debug("Strategy declined to patch",
			"finding", finding.Key(),
			"tokens", usage)
		return nil, ErrNoPatch
	}

	diffText, rationale := splitReply(reply)
	if diffText == "" {
		return nil, ErrNoPatch
	}

	patch, err := model.ParsePatch(finding.Key(), finding.Location.File, diffText, rationale)
	if err != nil {
		slog.Warn("Strategy produced an unparseable diff",
			"finding", finding.Key(),
			"error", err)
		return nil, ErrNoPatch
	}

	return &Proposal{Patch: patch, TokenUsage: usage}, nil
}

// renderPrompt builds the user message for one finding.
func (s *LLMStrategy) renderPrompt(finding model.Finding, fileContent string, priors []reasoning.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Finding [%s/%s] at %s, reported by %s:\n%s\n\n",
		finding.Kind, finding.Severity, finding.Location.String(), finding.Detector, finding.Description)

	if len(priors) > 0 {
		b.WriteString("Rationale from similar past fixes:\n")
		limit := len(priors)
		if limit > s.config.MaxContextEntries {
			limit = s.config.MaxContextEntries
		}
		for i := 0; i < limit; i++ {
			fmt.Fprintf(&b, "- [%s, outcome=%s] %s\n",
				priors[i].Metadata.Kind, priors[i].Metadata.Outcome, priors[i].Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Current content of %s:\n```\n%s\n```\n", finding.Location.File, fileContent)
	return b.String()
}

// splitReply extracts the fenced diff and trailing rationale from a reply.
// Returns an empty diff when no fenced block is present.
func splitReply(reply string) (diffText, rationale string) {
	start := strings.Index(reply, "```")
	if start < 0 {
		return "", ""
	}
	rest := reply[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || firstLine == "diff" || firstLine == "patch" {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", ""
	}

	diffText = strings.TrimSpace(rest[:end])
	rationale = strings.TrimSpace(rest[end+3:])
	if rationale == "" {
		rationale = strings.TrimSpace(reply[:start])
	}
	return diffText, rationale
}
