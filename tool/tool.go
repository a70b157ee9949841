//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package tool provides the tool-execution collaborator consumed by graph
// nodes: a name-to-callable registry with declared metadata. Tool failures
// are surfaced to the conversation as error-shaped messages by the tools
// node, never as graph failures.
package tool

import "context"

// Tool describes a callable capability.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked with JSON arguments.
type CallableTool interface {
	Tool
	// Call invokes the tool. The result must be JSON-serializable.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

// Declaration describes the metadata of a tool.
type Declaration struct {
	// Name is the unique identifier of the tool.
	Name string `json:"name"`
	// Description explains the tool's purpose.
	Description string `json:"description"`
	// InputSchema defines the expected input in JSON schema format.
	InputSchema *Schema `json:"inputSchema,omitempty"`
}

// Schema is a minimal JSON-schema fragment for tool inputs.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}
