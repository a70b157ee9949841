//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package embedder defines the text embedding collaborator used by the
// memory store for similarity search. The store treats it as a black
// box: text in, fixed-length dense vector out.
package embedder

import (
	"context"
)

// Embedder generates dense vector embeddings for text.
//
// A nil error with an empty vector means the provider accepted the call
// but returned no usable embedding (rate limits, content filtering);
// callers should treat such items as unindexed rather than failing the
// write.
type Embedder interface {
	// GetEmbedding generates an embedding vector for the given text.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)
}
