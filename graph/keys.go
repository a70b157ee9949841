//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

// Internal state keys. These carry resume bookkeeping through a node's
// replay and are stripped before state is checkpointed or returned.
const (
	// StateKeyResumeMap maps interrupt keys to pending resume values.
	StateKeyResumeMap = "__resume_map__"
	// StateKeyUsedInterrupts records resume values already consumed in
	// the current replay, so repeated Interrupt calls with one key
	// observe the same value.
	StateKeyUsedInterrupts = "__used_interrupts__"
)

// Checkpoint Metadata.Source enumeration values.
const (
	// SourceInput marks the first superstep of an invocation that
	// started from fresh input.
	SourceInput = "input"
	// SourceLoop marks a regular superstep inside the loop.
	SourceLoop = "loop"
	// SourceInterrupt marks the superstep at which execution paused.
	SourceInterrupt = "interrupt"
)

// isInternalStateKey reports whether a state key is internal/ephemeral and
// must not be serialized into checkpoints nor surfaced in final state.
func isInternalStateKey(key string) bool {
	switch key {
	case StateKeyResumeMap, StateKeyUsedInterrupts:
		return true
	default:
		return false
	}
}

// stripInternalKeys removes internal bookkeeping keys from a state copy.
func stripInternalKeys(state State) State {
	out := make(State, len(state))
	for k, v := range state {
		if isInternalStateKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}
