// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"context"
	"math"
	"testing"
)

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "null pointer dereference in handler")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "null pointer dereference in handler")
	if err != nil {
		t.Fatal(err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d for identical text", i)
		}
	}
}

func TestHashingEmbedder_Normalized(t *testing.T) {
	e := NewHashingEmbedder(64)

	vec, err := e.Embed(context.Background(), "sql injection in query builder")
	if err != nil {
		t.Fatal(err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("L2 norm = %f, want 1.0", norm)
	}
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	e := NewHashingEmbedder(16)

	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed(\"\") error = %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("empty text should produce a zero vector, index %d = %f", i, v)
		}
	}
}

func TestHashingEmbedder_Dimensions(t *testing.T) {
	if got := NewHashingEmbedder(128).Dimensions(); got != 128 {
		t.Errorf("Dimensions() = %d, want 128", got)
	}
	// Zero and negative fall back to the default.
	if got := NewHashingEmbedder(0).Dimensions(); got != DefaultDimensions {
		t.Errorf("Dimensions() = %d, want %d", got, DefaultDimensions)
	}
	if got := NewHashingEmbedder(-5).Dimensions(); got != DefaultDimensions {
		t.Errorf("Dimensions() = %d, want %d", got, DefaultDimensions)
	}
}

func TestHashingEmbedder_TokenOverlapScoresHigher(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "unused import os in module main")
	similar, _ := e.Embed(ctx, "unused import sys in module main")
	unrelated, _ := e.Embed(ctx, "division by zero crash")

	if cosine(base, similar) <= cosine(base, unrelated) {
		t.Error("overlapping token sets should score higher than disjoint ones")
	}
}

func TestHashingEmbedder_BatchEmbed(t *testing.T) {
	e := NewHashingEmbedder(32)

	vectors, err := e.BatchEmbed(context.Background(), []string{"first text", "second text"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 2 {
		t.Fatalf("len(vectors) = %d, want 2", len(vectors))
	}

	single, _ := e.Embed(context.Background(), "first text")
	for i := range single {
		if vectors[0][i] != single[i] {
			t.Fatal("BatchEmbed and Embed disagree for the same text")
		}
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIEmbedderConfig{}); err == nil {
		t.Error("NewOpenAIEmbedder should reject an empty API key")
	}
}

func TestNewOpenAIEmbedder_Defaults(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIEmbedderConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions() = %d, want %d", e.Dimensions(), DefaultDimensions)
	}
}
