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
	"context"
	"fmt"
	"time"
)

// InterruptError is the suspension signal raised by Interrupt. It travels
// up through the node's execution frame to the scheduler as a
// distinguishable outcome; generic error handling must not catch it.
type InterruptError struct {
	// Value is the value that was passed to Interrupt.
	Value any
	// Key is the stable position identifier of the suspension point.
	Key string
	// NodeID is the ID of the node where the interrupt occurred. The
	// scheduler fills this in.
	NodeID string
	// Timestamp is when the interrupt occurred.
	Timestamp time.Time
}

// Error returns the error message for the interrupt.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("graph interrupted at %s (key %s): %v", e.NodeID, e.Key, e.Value)
}

// IsInterruptError checks whether an error is an interrupt signal.
func IsInterruptError(err error) bool {
	_, ok := err.(*InterruptError)
	return ok
}

// GetInterruptError extracts an *InterruptError from an error.
func GetInterruptError(err error) (*InterruptError, bool) {
	if interrupt, ok := err.(*InterruptError); ok {
		return interrupt, true
	}
	return nil, false
}

// Interrupt suspends the current node, surfacing prompt to the caller of
// Invoke, and on resume returns the matching Command resume payload.
//
// The node is replayed from its start on resume: the prior partial
// execution re-runs with the same inputs and this call short-circuits,
// returning the resume value recorded for key instead of pausing again.
// Repeated calls with the same key during one replay observe the same
// value. Nodes that perform non-idempotent side effects before the
// suspension point must be written defensively by the application layer.
func Interrupt(ctx context.Context, state State, key string, prompt any) (any, error) {
	if key == "" {
		return nil, fmt.Errorf("interrupt key cannot be empty")
	}
	// Values already consumed in this replay are replayed verbatim.
	usedMap, _ := state[StateKeyUsedInterrupts].(map[string]any)
	if usedMap == nil {
		usedMap = make(map[string]any)
		state[StateKeyUsedInterrupts] = usedMap
	}
	if usedValue, exists := usedMap[key]; exists {
		return usedValue, nil
	}
	if resumeMap, ok := state[StateKeyResumeMap].(map[string]any); ok {
		if resumeValue, exists := resumeMap[key]; exists {
			usedMap[key] = resumeValue
			// Consume exactly once.
			delete(resumeMap, key)
			return resumeValue, nil
		}
	}
	return nil, &InterruptError{
		Value:     prompt,
		Key:       key,
		Timestamp: time.Now().UTC(),
	}
}

// HasResumeValue reports whether a resume value is pending for key.
func HasResumeValue(state State, key string) bool {
	if resumeMap, ok := state[StateKeyResumeMap].(map[string]any); ok {
		_, exists := resumeMap[key]
		return exists
	}
	return false
}
