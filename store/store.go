//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package store defines the namespaced long-term memory store. Unlike
// checkpoints, which belong to one execution thread, store items are
// shared across threads: facts written during one conversation are
// retrievable from any other.
//
// Stores are explicit collaborators passed by handle; there is no ambient
// process-wide instance.
package store

import (
	"context"
	"math"
	"strings"
	"time"
)

// TextField is the document field used for semantic indexing. Items whose
// value carries this field get an embedding at write time when the store
// is configured with an embedder; only those items participate in ranked
// search.
const TextField = "text"

// Namespace is a hierarchical scope path, e.g. ["users", "alice",
// "preferences"]. A namespace scopes exact lookups to itself and search
// to itself plus all descendant namespaces.
type Namespace []string

// String renders the namespace as a slash-joined path for display.
func (n Namespace) String() string {
	return strings.Join(n, "/")
}

// StorageKey renders the namespace as a backend bucket key. The segments
// are joined with a non-printable separator so a segment containing "/"
// (e.g. ["a/b"]) cannot alias a nested namespace (["a", "b"]).
func (n Namespace) StorageKey() string {
	return strings.Join(n, "\x1f")
}

// IsPrefixOf reports whether n is other or an ancestor of other.
func (n Namespace) IsPrefixOf(other Namespace) bool {
	if len(n) > len(other) {
		return false
	}
	for i, segment := range n {
		if other[i] != segment {
			return false
		}
	}
	return true
}

// Item is one stored document. Namespace plus key is unique; a put to an
// existing pair overwrites the previous value. Items never auto-expire.
type Item struct {
	Namespace Namespace      `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	// Embedding is the dense vector of the item's text field, computed at
	// write time. Empty when the item has no text or the store has no
	// embedder.
	Embedding []float64 `json:"embedding,omitempty"`
	// CreatedAt is set on the first write and preserved across
	// overwrites; UpdatedAt is the last-write timestamp.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult pairs an item with its similarity score. Score is
// meaningful only for ranked (query) searches and lies in [-1, 1]; no
// fixed threshold separates relevant from irrelevant.
type SearchResult struct {
	Item  *Item
	Score float64
}

// FilterFunc is a metadata predicate applied before ranking.
type FilterFunc func(item *Item) bool

// SearchOption configures one Search call.
type SearchOption func(*SearchOptions)

// SearchOptions contains search configuration.
type SearchOptions struct {
	// Query is the text to rank by. Empty means an unranked namespace
	// scan.
	Query string
	// Filter pre-filters items before ranking.
	Filter FilterFunc
	// Limit truncates results. Zero means no limit.
	Limit int
}

// WithQuery ranks results by similarity to the query text.
func WithQuery(query string) SearchOption {
	return func(opts *SearchOptions) {
		opts.Query = query
	}
}

// WithFilter pre-filters items before ranking.
func WithFilter(filter FilterFunc) SearchOption {
	return func(opts *SearchOptions) {
		opts.Filter = filter
	}
}

// WithLimit truncates results to at most n items.
func WithLimit(n int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = n
	}
}

// Store is the namespaced memory store contract. Exact operations are
// keyed by (namespace, key); search is scoped to a namespace subtree.
type Store interface {
	// Put creates or overwrites an item.
	Put(ctx context.Context, namespace Namespace, key string, value map[string]any) error
	// Get retrieves an item by exact namespace and key, or (nil, nil)
	// when absent.
	Get(ctx context.Context, namespace Namespace, key string) (*Item, error)
	// Delete removes an item. Deleting an absent item is not an error.
	Delete(ctx context.Context, namespace Namespace, key string) error
	// Search returns items under the namespace subtree. With a query the
	// results are ordered by non-increasing similarity score; without
	// one they are unranked.
	Search(ctx context.Context, namespace Namespace, opts ...SearchOption) ([]*SearchResult, error)
	// Close releases resources held by the store.
	Close() error
}

// CosineSimilarity computes the cosine similarity of two vectors. It
// returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TextOf extracts the item's semantic text field, if present.
func TextOf(value map[string]any) (string, bool) {
	text, ok := value[TextField].(string)
	return text, ok && text != ""
}
