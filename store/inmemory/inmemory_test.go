//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/store"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float64
}

func (s *stubEmbedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func TestPutGetDelete(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()
	ns := store.Namespace{"users", "alice"}

	require.NoError(t, s.Put(ctx, ns, "lang", map[string]any{"text": "prefers Go"}))

	item, err := s.Get(ctx, ns, "lang")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "prefers Go", item.Value["text"])
	assert.False(t, item.CreatedAt.IsZero())
	assert.False(t, item.UpdatedAt.IsZero())
	created := item.CreatedAt

	// Overwrite wins and keeps the original creation time.
	require.NoError(t, s.Put(ctx, ns, "lang", map[string]any{"text": "prefers Rust"}))
	item, err = s.Get(ctx, ns, "lang")
	require.NoError(t, err)
	assert.Equal(t, "prefers Rust", item.Value["text"])
	assert.Equal(t, created, item.CreatedAt)

	require.NoError(t, s.Delete(ctx, ns, "lang"))
	item, err = s.Get(ctx, ns, "lang")
	require.NoError(t, err)
	assert.Nil(t, item)

	// Deleting again is not an error.
	require.NoError(t, s.Delete(ctx, ns, "lang"))
}

func TestGetIsExactNamespace(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Namespace{"users", "alice"}, "k", map[string]any{"v": 1}))

	item, err := s.Get(ctx, store.Namespace{"users"}, "k")
	require.NoError(t, err)
	assert.Nil(t, item, "exact get must not match descendant namespaces")
}

func TestSearchEmptyStore(t *testing.T) {
	s := NewStore()
	defer s.Close()

	results, err := s.Search(context.Background(), store.Namespace{"users"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchUnrankedPrefixScoped(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Namespace{"users", "alice", "prefs"}, "a", map[string]any{"v": 1}))
	require.NoError(t, s.Put(ctx, store.Namespace{"users", "alice"}, "b", map[string]any{"v": 2}))
	require.NoError(t, s.Put(ctx, store.Namespace{"users", "bob"}, "c", map[string]any{"v": 3}))

	results, err := s.Search(ctx, store.Namespace{"users", "alice"})
	require.NoError(t, err)
	require.Len(t, results, 2, "search scopes to the namespace and its descendants")

	all, err := s.Search(ctx, store.Namespace{"users"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.Search(ctx, store.Namespace{"users"}, store.WithLimit(2))
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSearchRanked(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float64{
		"likes go":        {1, 0, 0},
		"enjoys hiking":   {0, 1, 0},
		"writes go daily": {0.9, 0.1, 0},
		"go":              {1, 0, 0},
	}}
	s := NewStore(WithEmbedder(emb))
	defer s.Close()
	ctx := context.Background()
	ns := store.Namespace{"users", "alice"}

	require.NoError(t, s.Put(ctx, ns, "m1", map[string]any{"text": "likes go"}))
	require.NoError(t, s.Put(ctx, ns, "m2", map[string]any{"text": "enjoys hiking"}))
	require.NoError(t, s.Put(ctx, ns, "m3", map[string]any{"text": "writes go daily"}))

	results, err := s.Search(ctx, ns, store.WithQuery("go"), store.WithLimit(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].Item.Key)
	assert.Equal(t, "m3", results[1].Item.Key)
	// Scores are non-increasing.
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestSearchFilter(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()
	ns := store.Namespace{"users"}

	require.NoError(t, s.Put(ctx, ns, "a", map[string]any{"topic": "food"}))
	require.NoError(t, s.Put(ctx, ns, "b", map[string]any{"topic": "code"}))

	results, err := s.Search(ctx, ns, store.WithFilter(func(item *store.Item) bool {
		return item.Value["topic"] == "code"
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Item.Key)
}

func TestSearchRankedWithoutEmbedder(t *testing.T) {
	s := NewStore()
	defer s.Close()

	_, err := s.Search(context.Background(), store.Namespace{"users"}, store.WithQuery("q"))
	require.Error(t, err)
}

func TestReadResultsAreCopies(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()
	ns := store.Namespace{"users"}

	require.NoError(t, s.Put(ctx, ns, "a", map[string]any{"v": "original"}))

	item, err := s.Get(ctx, ns, "a")
	require.NoError(t, err)
	item.Value["v"] = "mutated"

	again, err := s.Get(ctx, ns, "a")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Value["v"])
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, store.CosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, -1.0, store.CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.Zero(t, store.CosineSimilarity([]float64{1, 0}, []float64{0, 1}))
	assert.Zero(t, store.CosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Zero(t, store.CosineSimilarity(nil, nil))
}

func TestNamespaceSegmentWithSlashDoesNotAlias(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Namespace{"a", "b"}, "k", map[string]any{"v": "nested"}))
	require.NoError(t, s.Put(ctx, store.Namespace{"a/b"}, "k", map[string]any{"v": "flat"}))

	item, err := s.Get(ctx, store.Namespace{"a", "b"}, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "nested", item.Value["v"])

	item, err = s.Get(ctx, store.Namespace{"a/b"}, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "flat", item.Value["v"])

	// Only the genuinely nested namespace is in the subtree.
	results, err := s.Search(ctx, store.Namespace{"a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, store.Namespace{"a", "b"}, results[0].Item.Namespace)
}
