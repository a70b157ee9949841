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
	"errors"
	"fmt"
)

// Errors surfaced by the executor and checkpoint savers.
var (
	// ErrThreadIDRequired is returned when an invocation lacks a thread ID.
	ErrThreadIDRequired = errors.New("thread_id is required")
	// ErrThreadPaused is returned when fresh input is sent to a thread
	// suspended on an interrupt. Send a *Command to resume, or use a new
	// thread ID.
	ErrThreadPaused = errors.New("thread is paused awaiting a resume command")
	// ErrNoPendingInterrupt is returned when a resume value is sent to a
	// thread that has no pending interrupt to consume it.
	ErrNoPendingInterrupt = errors.New("no pending interrupt for thread")
	// ErrCheckpointNotFound is returned when a referenced checkpoint does
	// not exist.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrCheckpointCorruption is returned when stored checkpoint state
	// fails to deserialize. Fatal for the thread; never silently skipped.
	ErrCheckpointCorruption = errors.New("checkpoint state failed to deserialize")
	// ErrSaverRequired is returned for operations that need a configured
	// checkpoint saver (resume, state introspection).
	ErrSaverRequired = errors.New("checkpoint saver is not configured")
)

// NodeExecutionError reports an uncaught node failure. The superstep that
// contained the node is not committed; the previous checkpoint remains the
// recovery point and the thread can be retried.
type NodeExecutionError struct {
	// Node is the ID of the failed node.
	Node string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s execution failed: %v", e.Node, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// AsNodeExecutionError extracts a *NodeExecutionError from an error chain.
func AsNodeExecutionError(err error) (*NodeExecutionError, bool) {
	var nodeErr *NodeExecutionError
	if errors.As(err, &nodeErr) {
		return nodeErr, true
	}
	return nil, false
}
