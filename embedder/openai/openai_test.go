//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/embedder"
)

var _ embedder.Embedder = (*Embedder)(nil)

func TestNewDefaults(t *testing.T) {
	e := New()
	assert.Equal(t, DefaultModel, e.Model())
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestNewOptions(t *testing.T) {
	e := New(
		WithModel("text-embedding-3-large"),
		WithDimensions(256),
		WithAPIKey("test-key"),
		WithUser("tester"),
	)
	assert.Equal(t, "text-embedding-3-large", e.Model())
	assert.Equal(t, 256, e.Dimensions())
}

func TestGetEmbeddingEmptyText(t *testing.T) {
	e := New(WithAPIKey("test-key"))
	_, err := e.GetEmbedding(context.Background(), "")
	require.Error(t, err)
}

func TestGetEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello world", body["input"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{
					"object":    "embedding",
					"index":     0,
					"embedding": []float64{0.1, 0.2, 0.3},
				},
			},
			"model": DefaultModel,
		})
	}))
	defer server.Close()

	e := New(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
	)
	vector, err := e.GetEmbedding(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vector)
}

func TestIsTextEmbedding3Model(t *testing.T) {
	assert.True(t, isTextEmbedding3Model("text-embedding-3-small"))
	assert.True(t, isTextEmbedding3Model("text-embedding-3-large"))
	assert.False(t, isTextEmbedding3Model("text-embedding-ada-002"))
}
