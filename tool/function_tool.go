//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// FunctionTool wraps a typed Go function as a CallableTool. Arguments are
// unmarshaled from JSON into I before the function runs.
type FunctionTool[I, O any] struct {
	name        string
	description string
	fn          func(ctx context.Context, input I) (O, error)
}

// Option configures a FunctionTool.
type Option func(*functionToolOptions)

type functionToolOptions struct {
	name        string
	description string
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(opts *functionToolOptions) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *functionToolOptions) {
		opts.description = description
	}
}

// NewFunctionTool creates a CallableTool from fn.
func NewFunctionTool[I, O any](fn func(ctx context.Context, input I) (O, error), opts ...Option) *FunctionTool[I, O] {
	var options functionToolOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &FunctionTool[I, O]{
		name:        options.name,
		description: options.description,
		fn:          fn,
	}
}

// Declaration implements Tool.
func (t *FunctionTool[I, O]) Declaration() *Declaration {
	return &Declaration{
		Name:        t.name,
		Description: t.description,
	}
}

// Call implements CallableTool.
func (t *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("unmarshal arguments for tool %s: %w", t.name, err)
		}
	}
	output, err := t.fn(ctx, input)
	if err != nil {
		return nil, err
	}
	return output, nil
}
