//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CheckpointVersion is the current version of the checkpoint format.
const CheckpointVersion = 1

// Checkpoint is an immutable full-state snapshot taken after one
// superstep. Checkpoints form a singly linked, append-only chain per
// thread under single-writer discipline.
//
// Each checkpoint stores the complete serialized state rather than a
// diff; storage cost grows with (checkpoints) x (state size) and is
// unbounded without an external retention policy. See
// WithCheckpointWrittenHook for the pruning observer.
type Checkpoint struct {
	// Version is the version of the checkpoint format.
	Version int `json:"v"`
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// ThreadID identifies the execution lineage this snapshot belongs to.
	ThreadID string `json:"thread_id"`
	// Seq is the position in the thread's chain, starting at 1 with no
	// gaps.
	Seq int64 `json:"seq"`
	// ParentID is the ID of the previous checkpoint in the chain.
	ParentID string `json:"parent_id,omitempty"`
	// ParentSeq is the sequence of the previous checkpoint, 0 for the
	// first.
	ParentSeq int64 `json:"parent_seq,omitempty"`
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"ts"`
	// State is the full merged state at this point.
	State State `json:"state"`
	// NextNodes are the node IDs still pending execution. Empty means
	// the thread reached the end marker.
	NextNodes []string `json:"next_nodes,omitempty"`
	// Interrupt describes the pending suspension, if any.
	Interrupt *InterruptState `json:"interrupt,omitempty"`
	// Metadata carries step bookkeeping and caller extras.
	Metadata *CheckpointMetadata `json:"metadata,omitempty"`
}

// InterruptState records a pending interrupt inside a checkpoint. It is
// consumed exactly once by the resume that satisfies it and never persists
// past that superstep.
type InterruptState struct {
	// NodeID is the node whose execution was suspended.
	NodeID string `json:"node_id"`
	// Key is the stable position identifier passed to Interrupt.
	Key string `json:"key"`
	// Value is the value surfaced to the caller.
	Value any `json:"value"`
	// Step is the superstep number at which execution paused.
	Step int `json:"step"`
	// Used records resume values already consumed by earlier suspension
	// points of the node, replayed verbatim on subsequent re-executions.
	Used map[string]any `json:"used,omitempty"`
}

// CheckpointMetadata contains metadata about a checkpoint.
type CheckpointMetadata struct {
	// Source indicates how the checkpoint was created: input, loop or
	// interrupt.
	Source string `json:"source"`
	// Step is the cumulative superstep counter for the thread.
	Step int `json:"step"`
	// Extra holds additional caller metadata.
	Extra map[string]any `json:"extra,omitempty"`
}

// CheckpointFilter narrows List results.
type CheckpointFilter struct {
	// Limit is the maximum number of checkpoints to return, newest
	// first. Zero means no limit.
	Limit int
	// BeforeSeq restricts results to checkpoints with Seq strictly below
	// the given value. Zero means no bound.
	BeforeSeq int64
}

// CheckpointSaver is the durable store behind the executor. Put is the
// only mutation; historical checkpoints are never updated or deleted
// except via DeleteThread.
//
// Get and Latest return (nil, nil) when nothing is stored. Implementations
// must wrap deserialization failures with ErrCheckpointCorruption.
type CheckpointSaver interface {
	// Put appends a checkpoint to its thread's chain.
	Put(ctx context.Context, checkpoint *Checkpoint) error
	// Get retrieves one checkpoint by thread and checkpoint ID.
	Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)
	// Latest retrieves the newest checkpoint for a thread.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	// List retrieves checkpoints for a thread, newest first.
	List(ctx context.Context, threadID string, filter *CheckpointFilter) ([]*Checkpoint, error)
	// DeleteThread removes all checkpoints for a thread.
	DeleteThread(ctx context.Context, threadID string) error
	// Close releases resources held by the saver.
	Close() error
}

// NewCheckpoint creates a checkpoint snapshot chained after parent.
// parent may be nil for the first superstep of a thread.
func NewCheckpoint(threadID string, parent *Checkpoint, state State, next []string, source string) *Checkpoint {
	ckpt := &Checkpoint{
		Version:   CheckpointVersion,
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Seq:       1,
		Timestamp: time.Now().UTC(),
		State:     deepCopyState(state),
		NextNodes: append([]string(nil), next...),
		Metadata: &CheckpointMetadata{
			Source: source,
			Step:   1,
		},
	}
	if parent != nil {
		ckpt.Seq = parent.Seq + 1
		ckpt.ParentID = parent.ID
		ckpt.ParentSeq = parent.Seq
		if parent.Metadata != nil {
			ckpt.Metadata.Step = parent.Metadata.Step + 1
		}
	}
	return ckpt
}

// Copy creates a deep copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	out := &Checkpoint{
		Version:   c.Version,
		ID:        c.ID,
		ThreadID:  c.ThreadID,
		Seq:       c.Seq,
		ParentID:  c.ParentID,
		ParentSeq: c.ParentSeq,
		Timestamp: c.Timestamp,
		State:     deepCopyState(c.State),
		NextNodes: append([]string(nil), c.NextNodes...),
	}
	if c.Interrupt != nil {
		out.Interrupt = &InterruptState{
			NodeID: c.Interrupt.NodeID,
			Key:    c.Interrupt.Key,
			Value:  deepCopyValue(c.Interrupt.Value),
			Step:   c.Interrupt.Step,
		}
		if c.Interrupt.Used != nil {
			out.Interrupt.Used = make(map[string]any, len(c.Interrupt.Used))
			for k, v := range c.Interrupt.Used {
				out.Interrupt.Used[k] = deepCopyValue(v)
			}
		}
	}
	if c.Metadata != nil {
		out.Metadata = &CheckpointMetadata{
			Source: c.Metadata.Source,
			Step:   c.Metadata.Step,
		}
		if c.Metadata.Extra != nil {
			out.Metadata.Extra = make(map[string]any, len(c.Metadata.Extra))
			for k, v := range c.Metadata.Extra {
				out.Metadata.Extra[k] = deepCopyValue(v)
			}
		}
	}
	return out
}

// IsPaused reports whether the checkpoint left nodes pending execution.
func (c *Checkpoint) IsPaused() bool {
	return c != nil && len(c.NextNodes) > 0
}

// IsInterrupted reports whether the checkpoint carries a pending
// interrupt.
func (c *Checkpoint) IsInterrupted() bool {
	return c != nil && c.Interrupt != nil && c.Interrupt.NodeID != ""
}

// deepCopyValue copies an arbitrary value through JSON. Values that fail
// to serialize are returned as-is; state that must survive checkpointing
// is JSON-serializable by contract.
func deepCopyValue(src any) any {
	if src == nil {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		return src
	}
	var result any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return src
	}
	return result
}

// deepCopyState copies a full state snapshot, preserving the native Go
// values at the top level keys.
func deepCopyState(src State) State {
	if src == nil {
		return nil
	}
	dst := make(State, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}
