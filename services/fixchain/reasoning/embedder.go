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
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder converts text into fixed-dimension vectors for similarity search.
type Embedder interface {
	// Embed computes a vector embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed computes embeddings for multiple texts in one call.
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension this embedder produces.
	Dimensions() int
}

// =============================================================================
// OPENAI EMBEDDER
// =============================================================================

// OpenAIEmbedderConfig configures the OpenAI-backed embedder.
type OpenAIEmbedderConfig struct {
	// APIKey authenticates against the OpenAI API.
	APIKey string

	// Model is the embedding model. Default: text-embedding-3-small.
	Model openai.EmbeddingModel

	// Dimensions requests a reduced output dimension. Default:
	// DefaultDimensions (384), matching the reference store.
	Dimensions int
}

// OpenAIEmbedder produces embeddings via the OpenAI embeddings API.
//
// Thread Safety: Safe for concurrent use.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder.
//
// Inputs:
//
//	config - Provider configuration. APIKey must not be empty.
//
// Outputs:
//
//	*OpenAIEmbedder - The configured embedder.
//	error - Non-nil if the API key is missing.
func NewOpenAIEmbedder(config OpenAIEmbedderConfig) (*OpenAIEmbedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: API key must not be empty", ErrEmbeddingFailed)
	}
	if config.Model == "" {
		config.Model = openai.SmallEmbedding3
	}
	if config.Dimensions == 0 {
		config.Dimensions = DefaultDimensions
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(config.APIKey),
		model:      config.Model,
		dimensions: config.Dimensions,
	}, nil
}

// Embed computes a vector embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// BatchEmbed computes embeddings for multiple texts in one API call.
//
// Outputs:
//
//	[][]float32 - One vector per input text, in input order.
//	error - Non-nil if the API call fails or returns a wrong count.
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmbeddingFailed)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingFailed, len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Dimensions returns the configured output dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// =============================================================================
// HASHING EMBEDDER
// =============================================================================

// HashingEmbedder is a deterministic, offline embedder: tokens are hashed
// into dimension buckets and the vector is L2-normalized. It carries no
// semantic signal beyond token overlap and exists for tests and air-gapped
// runs where the OpenAI API is unavailable.
//
// Thread Safety: Safe for concurrent use. Stateless.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a hashing embedder with the given dimension.
// Zero or negative dimensions fall back to DefaultDimensions.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed computes the hashed bag-of-tokens vector for one text.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// BatchEmbed computes hashed vectors for multiple texts.
func (e *HashingEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimensions returns the configured output dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}
