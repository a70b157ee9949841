//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a Redis-backed implementation of the memory
// store. Items are stored as JSON values; a per-prefix index set enables
// namespace-subtree scans. Ranking happens client-side against
// embeddings computed at write time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-graph-go/embedder"
	"trpc.group/trpc-go/trpc-graph-go/store"
)

const (
	defaultKeyPrefix = "graphstore:"
	// nsKeySep separates the namespace path from the item key inside a
	// Redis key. Namespace segments must not contain it.
	nsKeySep = "\x1f"
	// mgetBatchSize bounds each MGET during a subtree scan.
	mgetBatchSize = 128
)

// Store persists items in Redis.
type Store struct {
	client     redis.UniversalClient
	ownsClient bool
	prefix     string
	embedder   embedder.Embedder
}

var _ store.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store) error

// WithClient supplies an existing Redis client. The caller keeps
// ownership; Close does not close it.
func WithClient(client redis.UniversalClient) Option {
	return func(s *Store) error {
		s.client = client
		return nil
	}
}

// WithURL connects to Redis at the given URL, e.g.
// "redis://localhost:6379/0". The store owns the resulting connection.
func WithURL(url string) Option {
	return func(s *Store) error {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		s.client = redis.NewClient(opts)
		s.ownsClient = true
		return nil
	}
}

// WithKeyPrefix sets the Redis key prefix (default "graphstore:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) error {
		s.prefix = prefix
		return nil
	}
}

// WithEmbedder supplies the embedding provider used to index item text.
func WithEmbedder(e embedder.Embedder) Option {
	return func(s *Store) error {
		s.embedder = e
		return nil
	}
}

// NewStore creates a Redis-backed store.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.client == nil {
		return nil, fmt.Errorf("redis store requires WithClient or WithURL")
	}
	return s, nil
}

func (s *Store) itemKey(namespace store.Namespace, key string) string {
	return s.prefix + namespace.StorageKey() + nsKeySep + key
}

// indexKey names the set of item keys stored under one namespace subtree.
func (s *Store) indexKey(prefix store.Namespace) string {
	return s.prefix + "__index__" + nsKeySep + prefix.StorageKey()
}

// indexKeys returns the index sets an item belongs to: one per ancestor
// prefix of its namespace, the root included, so a subtree scan is a
// single set read.
func (s *Store) indexKeys(namespace store.Namespace) []string {
	keys := make([]string, 0, len(namespace)+1)
	for i := 0; i <= len(namespace); i++ {
		keys = append(keys, s.indexKey(namespace[:i]))
	}
	return keys
}

// Put creates or overwrites an item, computing its embedding at write
// time when the value carries a text field.
func (s *Store) Put(ctx context.Context, namespace store.Namespace, key string, value map[string]any) error {
	if len(namespace) == 0 {
		return fmt.Errorf("namespace cannot be empty")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	now := time.Now().UTC()
	item := &store.Item{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, err := s.Get(ctx, namespace, key); err == nil && prev != nil {
		item.CreatedAt = prev.CreatedAt
	}
	if text, ok := store.TextOf(value); ok && s.embedder != nil {
		vector, err := s.embedder.GetEmbedding(ctx, text)
		if err != nil {
			return fmt.Errorf("embed item %s/%s: %w", namespace, key, err)
		}
		item.Embedding = vector
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item %s/%s: %w", namespace, key, err)
	}
	itemKey := s.itemKey(namespace, key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, itemKey, payload, 0)
	for _, idx := range s.indexKeys(namespace) {
		pipe.SAdd(ctx, idx, itemKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write item %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Get retrieves an item by exact namespace and key.
func (s *Store) Get(ctx context.Context, namespace store.Namespace, key string) (*store.Item, error) {
	payload, err := s.client.Get(ctx, s.itemKey(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read item %s/%s: %w", namespace, key, err)
	}
	return decodeItem(payload)
}

// Delete removes an item. Deleting an absent item is a no-op.
func (s *Store) Delete(ctx context.Context, namespace store.Namespace, key string) error {
	itemKey := s.itemKey(namespace, key)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, itemKey)
	for _, idx := range s.indexKeys(namespace) {
		pipe.SRem(ctx, idx, itemKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete item %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Search returns items under the namespace subtree, ranked by cosine
// similarity when a query is given.
func (s *Store) Search(ctx context.Context, namespace store.Namespace, opts ...store.SearchOption) ([]*store.SearchResult, error) {
	var options store.SearchOptions
	for _, opt := range opts {
		opt(&options)
	}
	candidates, err := s.collect(ctx, namespace, options.Filter)
	if err != nil {
		return nil, err
	}

	if options.Query == "" {
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

// Close releases the Redis connection if the store owns it.
func (s *Store) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

// collect loads the items indexed under the namespace subtree.
func (s *Store) collect(ctx context.Context, namespace store.Namespace, filter store.FilterFunc) ([]*store.Item, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("read item index: %w", err)
	}
	var items []*store.Item
	for start := 0; start < len(keys); start += mgetBatchSize {
		end := start + mgetBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		values, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("read items: %w", err)
		}
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				// Index entry whose value was removed out-of-band.
				continue
			}
			item, err := decodeItem([]byte(raw))
			if err != nil {
				return nil, err
			}
			if !namespace.IsPrefixOf(item.Namespace) {
				continue
			}
			if filter != nil && !filter(item) {
				continue
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func truncate(results []*store.SearchResult, limit int) []*store.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func decodeItem(payload []byte) (*store.Item, error) {
	var item store.Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, fmt.Errorf("decode stored item: %w", err)
	}
	return &item, nil
}
