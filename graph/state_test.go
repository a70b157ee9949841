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
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateClone(t *testing.T) {
	state := State{"a": 1, "b": "two"}
	clone := state.Clone()
	clone["a"] = 99
	assert.Equal(t, 1, state["a"])
	assert.Equal(t, "two", clone["b"])
}

func TestSchemaApplyUpdate(t *testing.T) {
	schema := NewStateSchema()
	schema.AddField("items", StateField{Reducer: StringSliceReducer})
	schema.AddField("meta", StateField{Reducer: MergeReducer})

	state := State{"items": []string{"a"}, "meta": map[string]any{"x": 1}}
	updated := schema.ApplyUpdate(state, State{
		"items":   []string{"b"},
		"meta":    map[string]any{"y": 2},
		"unknown": "replaced",
	})

	assert.Equal(t, []string{"a", "b"}, updated["items"])
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, updated["meta"])
	assert.Equal(t, "replaced", updated["unknown"])
	// The original is untouched.
	assert.Equal(t, []string{"a"}, state["items"])
}

func TestSchemaApplyUpdateUsesDefault(t *testing.T) {
	schema := NewStateSchema()
	schema.AddField("items", StateField{
		Reducer: StringSliceReducer,
		Default: func() any { return []string{"seed"} },
	})
	updated := schema.ApplyUpdate(State{}, State{"items": []string{"x"}})
	assert.Equal(t, []string{"seed", "x"}, updated["items"])
}

func TestSchemaApplyDefaults(t *testing.T) {
	schema := NewStateSchema()
	schema.AddField("count", StateField{Default: func() any { return 0 }})
	schema.AddField("nodefault", StateField{})

	state := schema.ApplyDefaults(State{"present": true})
	assert.Equal(t, 0, state["count"])
	assert.Equal(t, true, state["present"])
	_, ok := state["nodefault"]
	assert.False(t, ok)
}

func TestSchemaValidate(t *testing.T) {
	schema := NewStateSchema()
	schema.AddField("name", StateField{
		Type:     reflect.TypeOf(""),
		Required: true,
	})

	require.Error(t, schema.Validate(State{}))
	require.Error(t, schema.Validate(State{"name": 42}))
	require.NoError(t, schema.Validate(State{"name": "ok"}))
}

func TestDefaultReducer(t *testing.T) {
	assert.Equal(t, "new", DefaultReducer("old", "new"))
	assert.Nil(t, DefaultReducer("old", nil))
}

func TestAppendReducer(t *testing.T) {
	assert.Equal(t, []any{1, 2}, AppendReducer(nil, []any{1, 2}))
	assert.Equal(t, []any{1, 2, 3}, AppendReducer([]any{1, 2}, []any{3}))
	// Typed slices are widened.
	assert.Equal(t, []any{1, 2}, AppendReducer([]int{1}, []int{2}))
	// Non-slices replace.
	assert.Equal(t, "x", AppendReducer([]any{1}, "x"))
}

func TestStringSliceReducer(t *testing.T) {
	assert.Equal(t, []string{"a"}, StringSliceReducer(nil, []string{"a"}))
	assert.Equal(t, []string{"a", "b"}, StringSliceReducer([]string{"a"}, []string{"b"}))
	// The []any shape from a checkpoint round-trip is converted back.
	assert.Equal(t, []string{"a", "b"}, StringSliceReducer([]any{"a"}, []string{"b"}))
	// Mixed element types fall back to replacement.
	assert.Equal(t, []string{"b"}, StringSliceReducer([]any{1}, []string{"b"}))
}

func TestMergeReducer(t *testing.T) {
	merged := MergeReducer(map[string]any{"a": 1, "b": 1}, map[string]any{"b": 2})
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged)
	assert.Equal(t, map[string]any{"a": 1}, MergeReducer(nil, map[string]any{"a": 1}))
	assert.Equal(t, "x", MergeReducer(map[string]any{}, "x"))
}
