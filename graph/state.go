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
	"fmt"
	"reflect"
	"sync"
)

const (
	// StateKeyUserInput is the key of the user input.
	StateKeyUserInput = "user_input"
	// StateKeyLastResponse is the key of the last response.
	StateKeyLastResponse = "last_response"
	// StateKeyMessages is the key of the conversational history.
	StateKeyMessages = "messages"
	// StateKeyMetadata is the key of caller-owned metadata.
	StateKeyMetadata = "metadata"
)

// State represents the state that flows through the graph. Values must be
// JSON-serializable for the state to survive checkpointing.
type State map[string]any

// Clone creates a shallow copy of the state. Nodes receive clones so that
// parallel siblings never observe each other's partial output.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// StateReducer determines how a state update is merged into the existing
// value for one field. Reducers must be deterministic; for fields written
// by parallel nodes in one superstep they must tolerate being applied in
// declared node order.
type StateReducer func(existing, update any) any

// StateField defines a field in the state schema with its type and reducer.
type StateField struct {
	Type     reflect.Type
	Reducer  StateReducer
	Default  func() any
	Required bool
}

// StateSchema defines the structure and merge behavior of graph state.
type StateSchema struct {
	mu     sync.RWMutex
	Fields map[string]StateField
}

// NewStateSchema creates a new state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{
		Fields: make(map[string]StateField),
	}
}

// AddField adds a field to the state schema.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field.Reducer == nil {
		field.Reducer = DefaultReducer
	}
	s.Fields[name] = field
	return s
}

// ApplyUpdate applies a state update using the defined reducers. Fields
// without a schema entry are replaced.
func (s *StateSchema) ApplyUpdate(currentState State, update State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := currentState.Clone()
	for key, updateValue := range update {
		field, exists := s.Fields[key]
		if !exists {
			result[key] = updateValue
			continue
		}
		currentValue, hasCurrentValue := result[key]
		if !hasCurrentValue && field.Default != nil {
			currentValue = field.Default()
		}
		result[key] = field.Reducer(currentValue, updateValue)
	}
	return result
}

// ApplyDefaults fills missing fields that declare a default constructor.
func (s *StateSchema) ApplyDefaults(state State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := state.Clone()
	for name, field := range s.Fields {
		if _, exists := result[name]; !exists && field.Default != nil {
			result[name] = field.Default()
		}
	}
	return result
}

// Validate validates a state against the schema.
func (s *StateSchema) Validate(state State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, field := range s.Fields {
		value, exists := state[name]
		if field.Required && !exists {
			return fmt.Errorf("required field %s is missing", name)
		}
		if exists && value != nil && field.Type != nil {
			valueType := reflect.TypeOf(value)
			if !valueType.AssignableTo(field.Type) {
				return fmt.Errorf("field %s has wrong type: expected %v, got %v",
					name, field.Type, valueType)
			}
		}
	}
	return nil
}

// Common reducer functions.

// DefaultReducer overwrites the existing value with the update.
func DefaultReducer(existing, update any) any {
	return update
}

// AppendReducer appends update to the existing slice. It tolerates the
// []any shape that JSON checkpoint round-trips produce.
func AppendReducer(existing, update any) any {
	if existing == nil {
		existing = []any{}
	}
	existingSlice, ok1 := toAnySlice(existing)
	updateSlice, ok2 := toAnySlice(update)
	if !ok1 || !ok2 {
		return update
	}
	merged := make([]any, 0, len(existingSlice)+len(updateSlice))
	merged = append(merged, existingSlice...)
	merged = append(merged, updateSlice...)
	return merged
}

// StringSliceReducer appends string slices specifically. Like
// AppendReducer it tolerates the []any shape produced by checkpoint
// round-trips.
func StringSliceReducer(existing, update any) any {
	existingSlice, ok1 := toStringSlice(existing)
	updateSlice, ok2 := toStringSlice(update)
	if !ok1 || !ok2 {
		return update
	}
	merged := make([]string, 0, len(existingSlice)+len(updateSlice))
	merged = append(merged, existingSlice...)
	merged = append(merged, updateSlice...)
	return merged
}

// MergeReducer merges an update map into the existing map.
func MergeReducer(existing, update any) any {
	if existing == nil {
		existing = make(map[string]any)
	}
	existingMap, ok1 := existing.(map[string]any)
	updateMap, ok2 := update.(map[string]any)
	if !ok1 || !ok2 {
		return update
	}
	result := make(map[string]any, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}

func toStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

func toAnySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
