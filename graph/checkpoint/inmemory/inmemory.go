//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory checkpoint saver for development
// and testing. Checkpoints do not survive process restarts.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// Saver stores checkpoint chains per thread in process memory.
type Saver struct {
	mu sync.RWMutex
	// threads maps thread ID to its checkpoint chain in append order.
	threads map[string][]*graph.Checkpoint
	// byID maps thread ID to checkpoint ID to chain index.
	byID map[string]map[string]int
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{
		threads: make(map[string][]*graph.Checkpoint),
		byID:    make(map[string]map[string]int),
	}
}

// Put appends a checkpoint to its thread's chain. The chain is
// append-only: sequence numbers must be contiguous and strictly
// increasing.
func (s *Saver) Put(ctx context.Context, checkpoint *graph.Checkpoint) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if checkpoint.ThreadID == "" {
		return graph.ErrThreadIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.threads[checkpoint.ThreadID]
	var wantSeq int64 = 1
	if len(chain) > 0 {
		wantSeq = chain[len(chain)-1].Seq + 1
	}
	if checkpoint.Seq != wantSeq {
		return fmt.Errorf("checkpoint seq %d for thread %s breaks the chain (want %d)",
			checkpoint.Seq, checkpoint.ThreadID, wantSeq)
	}
	stored := checkpoint.Copy()
	s.threads[checkpoint.ThreadID] = append(chain, stored)
	ids := s.byID[checkpoint.ThreadID]
	if ids == nil {
		ids = make(map[string]int)
		s.byID[checkpoint.ThreadID] = ids
	}
	ids[stored.ID] = len(s.threads[checkpoint.ThreadID]) - 1
	return nil
}

// Get retrieves one checkpoint by thread and checkpoint ID. It returns
// (nil, nil) when not found.
func (s *Saver) Get(ctx context.Context, threadID, checkpointID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.byID[threadID]
	if !ok {
		return nil, nil
	}
	idx, ok := ids[checkpointID]
	if !ok {
		return nil, nil
	}
	return s.threads[threadID][idx].Copy(), nil
}

// Latest retrieves the newest checkpoint for a thread, or (nil, nil) when
// the thread has none.
func (s *Saver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.threads[threadID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1].Copy(), nil
}

// List retrieves checkpoints for a thread, newest first.
func (s *Saver) List(ctx context.Context, threadID string, filter *graph.CheckpointFilter) ([]*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.threads[threadID]
	result := make([]*graph.Checkpoint, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		ckpt := chain[i]
		if filter != nil && filter.BeforeSeq > 0 && ckpt.Seq >= filter.BeforeSeq {
			continue
		}
		result = append(result, ckpt.Copy())
		if filter != nil && filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// DeleteThread removes all checkpoints for a thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	delete(s.byID, threadID)
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = make(map[string][]*graph.Checkpoint)
	s.byID = make(map[string]map[string]int)
	return nil
}
