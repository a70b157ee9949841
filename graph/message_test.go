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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageReducerAppends(t *testing.T) {
	merged := MessageReducer(
		[]Message{NewUserMessage("hi")},
		[]Message{NewAssistantMessage("hello")},
	)
	msgs, ok := merged.([]Message)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
}

func TestMessageReducerReplacesByID(t *testing.T) {
	existing := []Message{
		{ID: "m1", Role: RoleUser, Content: "original"},
		{ID: "m2", Role: RoleAssistant, Content: "reply"},
	}
	merged := MessageReducer(existing, []Message{
		{ID: "m1", Role: RoleUser, Content: "edited"},
		{ID: "m3", Role: RoleUser, Content: "new"},
	})
	msgs := merged.([]Message)
	require.Len(t, msgs, 3)
	assert.Equal(t, "edited", msgs[0].Content)
	assert.Equal(t, "reply", msgs[1].Content)
	assert.Equal(t, "new", msgs[2].Content)
}

func TestMessageReducerToleratesRoundTripShape(t *testing.T) {
	// Simulate the []any-of-maps shape a checkpoint restore produces.
	data, err := json.Marshal([]Message{NewUserMessage("hi")})
	require.NoError(t, err)
	var restored []any
	require.NoError(t, json.Unmarshal(data, &restored))

	merged := MessageReducer(restored, []Message{NewAssistantMessage("hello")})
	msgs, ok := merged.([]Message)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestNormalizeMessages(t *testing.T) {
	msgs, ok := NormalizeMessages(nil)
	assert.True(t, ok)
	assert.Empty(t, msgs)

	msgs, ok = NormalizeMessages([]Message{NewUserMessage("x")})
	assert.True(t, ok)
	assert.Len(t, msgs, 1)

	_, ok = NormalizeMessages("not messages")
	assert.False(t, ok)

	_, ok = NormalizeMessages([]any{42})
	assert.False(t, ok)
}

func TestMessagesFromState(t *testing.T) {
	state := State{StateKeyMessages: []Message{NewUserMessage("hi")}}
	msgs := MessagesFromState(state)
	require.Len(t, msgs, 1)

	assert.Empty(t, MessagesFromState(State{}))
	assert.Empty(t, MessagesFromState(State{StateKeyMessages: 42}))
}

func TestToolMessageFields(t *testing.T) {
	msg := NewToolMessage("call-1", "calculator", `{"result":3}`)
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call-1", msg.ToolCallID)
	assert.Equal(t, "calculator", msg.ToolName)
}
