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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ReasoningClassName is the Weaviate class name for reasoning entries.
const ReasoningClassName = "ReasoningEntry"

// WeaviateStore persists reasoning entries in Weaviate with client-supplied
// embeddings and nearVector similarity search.
//
// Thread Safety: Safe for concurrent use. The store is append-only, so
// concurrent writers never conflict; reads are snapshot reads.
type WeaviateStore struct {
	client     *weaviate.Client
	embedder   Embedder
	dimensions int
}

// NewWeaviateStore creates a Weaviate-backed reasoning store.
//
// Inputs:
//
//	client - Weaviate client. Must not be nil.
//	embedder - Embedder used for entries stored without a vector and for
//	text queries. Must not be nil.
//
// Outputs:
//
//	*WeaviateStore - The configured store.
//	error - Non-nil if client or embedder is nil.
func NewWeaviateStore(client *weaviate.Client, embedder Embedder) (*WeaviateStore, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder must not be nil")
	}
	return &WeaviateStore{
		client:     client,
		embedder:   embedder,
		dimensions: embedder.Dimensions(),
	}, nil
}

// ReasoningSchema returns the Weaviate class definition for reasoning
// entries. The vectorizer is "none": vectors are computed client-side so the
// embedding dimension stays under the application's control.
func ReasoningSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	indexSearchable := new(bool)
	*indexSearchable = true

	return &models.Class{
		Class:       ReasoningClassName,
		Description: "Append-only rationale records for analysis/fix attempts",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "entryId",
				DataType:        []string{"text"},
				Description:     "Unique identifier (UUID)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "content",
				DataType:        []string{"text"},
				Description:     "Free-text rationale for the attempt",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:            "tags",
				DataType:        []string{"text[]"},
				Description:     "Categorization tags for filtered retrieval",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "bugId",
				DataType:        []string{"text"},
				Description:     "Stable bug identifier",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "testName",
				DataType:        []string{"text"},
				Description:     "Check that surfaced the bug",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "kind",
				DataType:        []string{"text"},
				Description:     "Finding kind: syntax, type, security, logic, performance",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "tool",
				DataType:        []string{"text"},
				Description:     "Analyzer that reported the finding",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "outcome",
				DataType:    []string{"text"},
				Description: "How the attempt ended",
			},
			{
				Name:        "sourceFile",
				DataType:    []string{"text"},
				Description: "File the finding pointed at",
			},
			{
				Name:        "round",
				DataType:    []string{"int"},
				Description: "Remediation round of the attempt",
			},
			{
				Name:        "confidence",
				DataType:    []string{"number"},
				Description: "Strategy confidence from 0.0 to 1.0",
			},
			{
				Name:        "tokenUsage",
				DataType:    []string{"int"},
				Description: "Tokens consumed by the strategy",
			},
			{
				Name:        "timestamp",
				DataType:    []string{"date"},
				Description: "When the entry was recorded",
			},
		},
	}
}

// EnsureSchema creates the ReasoningEntry class if it doesn't exist.
// Idempotent.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	_, err := client.Schema().ClassGetter().WithClassName(ReasoningClassName).Do(ctx)
	if err == nil {
		slog.Debug("ReasoningEntry schema already exists")
		return nil
	}

	if err := client.Schema().ClassCreator().WithClass(ReasoningSchema()).Do(ctx); err != nil {
		return fmt.Errorf("creating ReasoningEntry schema: %w", err)
	}
	slog.Info("Created ReasoningEntry schema")
	return nil
}

// Store persists a new entry and returns its ID.
//
// Description:
//
//	Validates the entry, embeds Content when no vector was supplied, and
//	appends the object to Weaviate with the client-side vector. Backend
//	failures wrap ErrStorageUnavailable so the controller can downgrade
//	them to a skipped-persistence warning.
func (s *WeaviateStore) Store(ctx context.Context, entry Entry) (string, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if len(entry.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, entry.Content)
		if err != nil {
			return "", fmt.Errorf("embedding entry content: %w", err)
		}
		entry.Embedding = vec
	}
	if len(entry.Embedding) != s.dimensions {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Embedding), s.dimensions)
	}

	properties := map[string]interface{}{
		"entryId":    entry.ID,
		"content":    entry.Content,
		"tags":       entry.Tags,
		"bugId":      entry.Metadata.BugID,
		"testName":   entry.Metadata.TestName,
		"kind":       entry.Metadata.Kind,
		"tool":       entry.Metadata.Tool,
		"outcome":    entry.Metadata.Outcome,
		"sourceFile": entry.Metadata.SourceFile,
		"round":      entry.Metadata.Round,
		"confidence": entry.Metadata.Confidence,
		"tokenUsage": entry.Metadata.TokenUsage,
		"timestamp":  entry.Timestamp.Format(time.RFC3339),
	}

	_, err := s.client.Data().Creator().
		WithClassName(ReasoningClassName).
		WithProperties(properties).
		WithVector(entry.Embedding).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	slog.Debug("Stored reasoning entry",
		"entry_id", entry.ID,
		"bug_id", entry.Metadata.BugID,
		"round", entry.Metadata.Round)

	return entry.ID, nil
}

// Search returns up to k entries by descending vector similarity.
//
// Description:
//
//	Text queries are embedded with the store's embedder; pre-computed
//	query vectors are used as-is. Filters on kind, bug ID, and tags are
//	translated to Weaviate where-clauses. An empty result is valid.
func (s *WeaviateStore) Search(ctx context.Context, query Query) ([]Entry, error) {
	vector := query.Embedding
	if len(vector) == 0 {
		if query.Text == "" {
			return nil, fmt.Errorf("%w: query needs text or embedding", ErrInvalidEntry)
		}
		vec, err := s.embedder.Embed(ctx, query.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		vector = vec
	}
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}

	k := query.K
	if k <= 0 {
		k = DefaultSearchK
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	builder := s.client.GraphQL().Get().
		WithClassName(ReasoningClassName).
		WithFields(s.queryFields()...).
		WithNearVector(nearVector).
		WithLimit(k)

	if where := buildWhere(query.Filter); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, result.Errors[0].Message)
	}

	return parseEntries(result), nil
}

// PurgeByBug deletes all entries for a bug via batch delete.
//
// Description:
//
//	The sole deletion path, reserved for explicit administrative use.
//	Returns the number of entries removed.
func (s *WeaviateStore) PurgeByBug(ctx context.Context, bugID string) (int, error) {
	if bugID == "" {
		return 0, fmt.Errorf("%w: bugID must not be empty", ErrInvalidEntry)
	}

	where := filters.Where().
		WithPath([]string{"bugId"}).
		WithOperator(filters.Equal).
		WithValueString(bugID)

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(ReasoningClassName).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	purged := 0
	if resp != nil && resp.Results != nil {
		purged = int(resp.Results.Successful)
	}
	slog.Info("Purged reasoning entries", "bug_id", bugID, "count", purged)
	return purged, nil
}

// buildWhere translates a Filter into a Weaviate where clause. Returns nil
// when no criteria apply.
func buildWhere(f *Filter) *filters.WhereBuilder {
	if f == nil {
		return nil
	}

	var operands []*filters.WhereBuilder
	if f.Kind != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"kind"}).
			WithOperator(filters.Equal).
			WithValueString(f.Kind))
	}
	if f.BugID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"bugId"}).
			WithOperator(filters.Equal).
			WithValueString(f.BugID))
	}
	if len(f.Tags) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"tags"}).
			WithOperator(filters.ContainsAny).
			WithValueText(f.Tags...))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

// queryFields returns the fields to retrieve, including the similarity
// certainty from _additional.
func (s *WeaviateStore) queryFields() []graphql.Field {
	return []graphql.Field{
		{Name: "entryId"},
		{Name: "content"},
		{Name: "tags"},
		{Name: "bugId"},
		{Name: "testName"},
		{Name: "kind"},
		{Name: "tool"},
		{Name: "outcome"},
		{Name: "sourceFile"},
		{Name: "round"},
		{Name: "confidence"},
		{Name: "tokenUsage"},
		{Name: "timestamp"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
}

// parseEntries converts a GraphQL response into entries, skipping malformed
// objects.
func parseEntries(result *models.GraphQLResponse) []Entry {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []Entry{}
	}
	objects, ok := data[ReasoningClassName].([]interface{})
	if !ok {
		return []Entry{}
	}

	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		entry := Entry{
			ID:      getString(m, "entryId"),
			Content: getString(m, "content"),
			Tags:    getStrings(m, "tags"),
			Metadata: Metadata{
				BugID:      getString(m, "bugId"),
				TestName:   getString(m, "testName"),
				Kind:       getString(m, "kind"),
				Tool:       getString(m, "tool"),
				Outcome:    getString(m, "outcome"),
				SourceFile: getString(m, "sourceFile"),
				Round:      getInt(m, "round"),
				Confidence: getFloat64(m, "confidence"),
				TokenUsage: getInt(m, "tokenUsage"),
			},
		}

		if ts := getString(m, "timestamp"); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				entry.Timestamp = t
			}
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			entry.Score = getFloat64(additional, "certainty")
		}

		entries = append(entries, entry)
	}
	return entries
}

// getString safely extracts a string from a map.
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getStrings safely extracts a string slice from a map.
func getStrings(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// getFloat64 safely extracts a float64 from a map.
func getFloat64(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		}
	}
	return 0
}

// getInt safely extracts an int from a map.
func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}
