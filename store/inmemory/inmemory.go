//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory implementation of the memory
// store, suitable for development, testing and single-process
// deployments.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/embedder"
	"trpc.group/trpc-go/trpc-graph-go/store"
)

// Store keeps items in process memory, indexed by namespace and key.
type Store struct {
	mu sync.RWMutex
	// items maps namespace path to key to item.
	items map[string]map[string]*store.Item
	// namespaces maps namespace path back to its segments for prefix
	// matching during search.
	namespaces map[string]store.Namespace
	embedder   embedder.Embedder
}

var _ store.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithEmbedder supplies the embedding provider used to index item text
// for similarity search. Without one, search degrades to unranked
// namespace scans.
func WithEmbedder(e embedder.Embedder) Option {
	return func(s *Store) {
		s.embedder = e
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		items:      make(map[string]map[string]*store.Item),
		namespaces: make(map[string]store.Namespace),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put creates or overwrites an item. When the value carries a text field
// and an embedder is configured, the embedding is computed here, at write
// time, so searches never call the embedding provider per stored item.
func (s *Store) Put(ctx context.Context, namespace store.Namespace, key string, value map[string]any) error {
	if len(namespace) == 0 {
		return fmt.Errorf("namespace cannot be empty")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	now := time.Now().UTC()
	item := &store.Item{
		Namespace: append(store.Namespace(nil), namespace...),
		Key:       key,
		Value:     cloneValue(value),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if text, ok := store.TextOf(value); ok && s.embedder != nil {
		vector, err := s.embedder.GetEmbedding(ctx, text)
		if err != nil {
			return fmt.Errorf("embed item %s/%s: %w", namespace, key, err)
		}
		item.Embedding = vector
	}
	nsKey := namespace.StorageKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.items[nsKey]
	if bucket == nil {
		bucket = make(map[string]*store.Item)
		s.items[nsKey] = bucket
		s.namespaces[nsKey] = item.Namespace
	}
	if prev, ok := bucket[key]; ok {
		item.CreatedAt = prev.CreatedAt
	}
	bucket[key] = item
	return nil
}

// Get retrieves an item by exact namespace and key.
func (s *Store) Get(ctx context.Context, namespace store.Namespace, key string) (*store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.items[namespace.StorageKey()]
	if bucket == nil {
		return nil, nil
	}
	item, ok := bucket[key]
	if !ok {
		return nil, nil
	}
	return copyItem(item), nil
}

// Delete removes an item. Deleting an absent item is a no-op.
func (s *Store) Delete(ctx context.Context, namespace store.Namespace, key string) error {
	nsKey := namespace.StorageKey()
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.items[nsKey]
	if bucket == nil {
		return nil
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(s.items, nsKey)
		delete(s.namespaces, nsKey)
	}
	return nil
}

// Search returns items under the namespace subtree. With a query it ranks
// embedded items by cosine similarity, descending; items without an
// embedding are excluded from ranked results.
func (s *Store) Search(ctx context.Context, namespace store.Namespace, opts ...store.SearchOption) ([]*store.SearchResult, error) {
	var options store.SearchOptions
	for _, opt := range opts {
		opt(&options)
	}
	candidates := s.collect(namespace, options.Filter)

	if options.Query == "" {
		// Unranked scan in stable namespace/key order.
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if ns1, ns2 := a.Namespace.StorageKey(), b.Namespace.StorageKey(); ns1 != ns2 {
				return ns1 < ns2
			}
			return a.Key < b.Key
		})
		results := make([]*store.SearchResult, 0, len(candidates))
		for _, item := range candidates {
			results = append(results, &store.SearchResult{Item: item})
		}
		return truncate(results, options.Limit), nil
	}

	if s.embedder == nil {
		return nil, fmt.Errorf("ranked search requires an embedder")
	}
	queryVector, err := s.embedder.GetEmbedding(ctx, options.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results := make([]*store.SearchResult, 0, len(candidates))
	for _, item := range candidates {
		if len(item.Embedding) == 0 {
			continue
		}
		results = append(results, &store.SearchResult{
			Item:  item,
			Score: store.CosineSimilarity(queryVector, item.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return truncate(results, options.Limit), nil
}

// Close releases the store's memory.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]map[string]*store.Item)
	s.namespaces = make(map[string]store.Namespace)
	return nil
}

// collect gathers copies of all items in the namespace subtree that pass
// the filter.
func (s *Store) collect(namespace store.Namespace, filter store.FilterFunc) []*store.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []*store.Item
	for nsKey, ns := range s.namespaces {
		if !namespace.IsPrefixOf(ns) {
			continue
		}
		for _, item := range s.items[nsKey] {
			copied := copyItem(item)
			if filter != nil && !filter(copied) {
				continue
			}
			items = append(items, copied)
		}
	}
	return items
}

func truncate(results []*store.SearchResult, limit int) []*store.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func copyItem(item *store.Item) *store.Item {
	copied := &store.Item{
		Namespace: append(store.Namespace(nil), item.Namespace...),
		Key:       item.Key,
		Value:     cloneValue(item.Value),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if item.Embedding != nil {
		copied.Embedding = append([]float64(nil), item.Embedding...)
	}
	return copied
}

func cloneValue(value map[string]any) map[string]any {
	cloned := make(map[string]any, len(value))
	for k, v := range value {
		cloned[k] = v
	}
	return cloned
}
