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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-graph-go/tool"
)

func passthrough(ctx context.Context, state State) (any, error) {
	return nil, nil
}

func TestCompileValidGraph(t *testing.T) {
	g, err := NewStateGraph(NewStateSchema()).
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		SetEntryPoint("a").
		AddEdge("a", "b").
		SetFinishPoint("b").
		Compile()
	require.NoError(t, err)

	node, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "a", node.ID)
	assert.Equal(t, "a", g.EntryPoint())
	assert.Equal(t, []string{"a", "b"}, g.NodeIDs())
}

func TestCompileErrors(t *testing.T) {
	// Missing entry point.
	_, err := NewStateGraph(NewStateSchema()).
		AddNode("a", passthrough).
		Compile()
	require.Error(t, err)

	// Duplicate node.
	_, err = NewStateGraph(NewStateSchema()).
		AddNode("a", passthrough).
		AddNode("a", passthrough).
		SetEntryPoint("a").
		Compile()
	require.Error(t, err)

	// Reserved ID.
	_, err = NewStateGraph(NewStateSchema()).
		AddNode(Start, passthrough).
		Compile()
	require.Error(t, err)

	// Edge to undeclared node.
	_, err = NewStateGraph(NewStateSchema()).
		AddNode("a", passthrough).
		SetEntryPoint("a").
		AddEdge("a", "ghost").
		Compile()
	require.Error(t, err)

	// Conditional edge routing to undeclared node.
	_, err = NewStateGraph(NewStateSchema()).
		AddNode("a", passthrough).
		SetEntryPoint("a").
		AddConditionalEdges("a", func(ctx context.Context, state State) (string, error) {
			return "x", nil
		}, map[string]string{"x": "ghost"}).
		Compile()
	require.Error(t, err)
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewStateGraph(NewStateSchema()).MustCompile()
	})
}

func TestNodeOptions(t *testing.T) {
	g := NewStateGraph(NewStateSchema()).
		AddNode("a", passthrough, WithName("Step A"), WithDescription("first step")).
		SetEntryPoint("a").
		SetFinishPoint("a").
		MustCompile()
	node, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "Step A", node.Name)
	assert.Equal(t, "first step", node.Description)
}

type calcArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func newCalcTool() tool.CallableTool {
	return tool.NewFunctionTool(func(ctx context.Context, args calcArgs) (int, error) {
		return args.A + args.B, nil
	}, tool.WithName("calc"), tool.WithDescription("adds two integers"))
}

func newFailingTool() tool.CallableTool {
	return tool.NewFunctionTool(func(ctx context.Context, args calcArgs) (int, error) {
		return 0, errors.New("division by zero")
	}, tool.WithName("explode"))
}

func TestToolsNodeExecutesCallsInOrder(t *testing.T) {
	tools := map[string]tool.CallableTool{
		"calc": newCalcTool(),
	}
	nodeFunc := NewToolsNodeFunc(tools)

	assistant := NewAssistantMessage("")
	assistant.ToolCalls = []ToolCall{
		{ID: "call-1", Name: "calc", Arguments: json.RawMessage(`{"a":1,"b":2}`)},
		{ID: "call-2", Name: "calc", Arguments: json.RawMessage(`{"a":10,"b":20}`)},
	}
	state := State{StateKeyMessages: []Message{NewUserMessage("add"), assistant}}

	result, err := nodeFunc(context.Background(), state)
	require.NoError(t, err)
	update, ok := result.(State)
	require.True(t, ok)

	msgs, ok := NormalizeMessages(update[StateKeyMessages])
	require.True(t, ok)
	require.Len(t, msgs, 2)
	// Results come back in call order.
	assert.Equal(t, "call-1", msgs[0].ToolCallID)
	assert.Equal(t, "3", msgs[0].Content)
	assert.Equal(t, "call-2", msgs[1].ToolCallID)
	assert.Equal(t, "30", msgs[1].Content)
}

func TestToolsNodeErrorsBecomeMessages(t *testing.T) {
	tools := map[string]tool.CallableTool{
		"explode": newFailingTool(),
	}
	nodeFunc := NewToolsNodeFunc(tools)

	assistant := NewAssistantMessage("")
	assistant.ToolCalls = []ToolCall{
		{ID: "call-1", Name: "explode", Arguments: json.RawMessage(`{}`)},
		{ID: "call-2", Name: "missing", Arguments: json.RawMessage(`{}`)},
	}
	state := State{StateKeyMessages: []Message{assistant}}

	result, err := nodeFunc(context.Background(), state)
	require.NoError(t, err, "tool failures must not fail the node")
	update := result.(State)
	msgs, _ := NormalizeMessages(update[StateKeyMessages])
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Error: division by zero")
	assert.Contains(t, msgs[1].Content, "Error: tool missing not found")
}

func TestToolsNodeRequiresAssistantMessage(t *testing.T) {
	nodeFunc := NewToolsNodeFunc(nil)

	_, err := nodeFunc(context.Background(), State{})
	require.Error(t, err)

	_, err = nodeFunc(context.Background(), State{
		StateKeyMessages: []Message{NewUserMessage("hi")},
	})
	require.Error(t, err)
}

func TestMessagesStateSchema(t *testing.T) {
	schema := MessagesStateSchema()
	state := schema.ApplyDefaults(State{})
	assert.NotNil(t, state[StateKeyMessages])
	assert.NotNil(t, state[StateKeyMetadata])

	updated := schema.ApplyUpdate(state, State{
		StateKeyMessages: []Message{NewUserMessage("hi")},
	})
	msgs, ok := NormalizeMessages(updated[StateKeyMessages])
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}
