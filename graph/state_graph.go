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
	"fmt"
	"reflect"

	"trpc.group/trpc-go/trpc-graph-go/log"
	"trpc.group/trpc-go/trpc-graph-go/tool"
)

// StateGraph provides a fluent interface for building graphs. This is the
// primary public API for creating executable graphs.
//
// Example usage:
//
//	schema := NewStateSchema().AddField("counter", StateField{...})
//	g, err := NewStateGraph(schema).
//	  AddNode("increment", incrementFunc).
//	  SetEntryPoint("increment").
//	  SetFinishPoint("increment").
//	  Compile()
//
// The compiled Graph is then executed with NewExecutor(g, ...).
type StateGraph struct {
	graph *Graph
	err   error
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	return &StateGraph{
		graph: New(schema),
	}
}

// Option configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// AddNode adds a node with the given ID and function.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.recordErr(sg.graph.addNode(node))
	return sg
}

// AddToolsNode adds a node that executes the pending tool calls of the
// last assistant message. Tool errors become error-shaped tool messages
// rather than node failures.
func (sg *StateGraph) AddToolsNode(id string, tools map[string]tool.CallableTool, opts ...Option) *StateGraph {
	return sg.AddNode(id, NewToolsNodeFunc(tools), opts...)
}

// AddEdge adds a static edge between two nodes.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	sg.recordErr(sg.graph.addEdge(&Edge{From: from, To: to}))
	return sg
}

// AddConditionalEdges adds conditional routing from a node. The condition
// result is looked up in pathMap; every target must be a declared node or
// End.
func (sg *StateGraph) AddConditionalEdges(from string, condition ConditionalFunc, pathMap map[string]string) *StateGraph {
	sg.recordErr(sg.graph.addConditionalEdge(&ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	}))
	return sg
}

// AddToolsConditionalEdges routes from an LLM-style node to a tools node
// when the last message carries tool calls, and to fallbackNode otherwise.
func (sg *StateGraph) AddToolsConditionalEdges(fromNode, toToolsNode, fallbackNode string) *StateGraph {
	condition := func(ctx context.Context, state State) (string, error) {
		msgs := MessagesFromState(state)
		if len(msgs) > 0 && len(msgs[len(msgs)-1].ToolCalls) > 0 {
			return toToolsNode, nil
		}
		return fallbackNode, nil
	}
	return sg.AddConditionalEdges(fromNode, condition, map[string]string{
		toToolsNode:  toToolsNode,
		fallbackNode: fallbackNode,
	})
}

// SetEntryPoint sets the entry point of the graph. This is equivalent to
// AddEdge(Start, nodeID).
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	sg.recordErr(sg.graph.setEntryPoint(nodeID))
	sg.AddEdge(Start, nodeID)
	return sg
}

// SetFinishPoint adds an edge from the node to End.
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	sg.AddEdge(nodeID, End)
	return sg
}

// Compile validates and returns the graph for execution.
func (sg *StateGraph) Compile() (*Graph, error) {
	if sg.err != nil {
		return nil, fmt.Errorf("invalid graph: %w", sg.err)
	}
	if err := sg.graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph) MustCompile() *Graph {
	graph, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}

func (sg *StateGraph) recordErr(err error) {
	if sg.err == nil && err != nil {
		sg.err = err
	}
}

// NewToolsNodeFunc creates a NodeFunc executing the tool calls requested
// by the last assistant message. Each call produces one tool message; a
// failing tool yields an error-shaped message instead of failing the node,
// so the model can react to the failure on the next turn.
func NewToolsNodeFunc(tools map[string]tool.CallableTool) NodeFunc {
	return func(ctx context.Context, state State) (any, error) {
		messages := MessagesFromState(state)
		if len(messages) == 0 {
			return nil, errors.New("no messages in state")
		}
		lastMessage := messages[len(messages)-1]
		if lastMessage.Role != RoleAssistant {
			return nil, errors.New("last message is not an assistant message")
		}
		newMessages := make([]Message, 0, len(lastMessage.ToolCalls))
		for _, toolCall := range lastMessage.ToolCalls {
			newMessages = append(newMessages, executeToolCall(ctx, tools, toolCall))
		}
		return State{
			StateKeyMessages: newMessages,
		}, nil
	}
}

func executeToolCall(ctx context.Context, tools map[string]tool.CallableTool, toolCall ToolCall) Message {
	t, ok := tools[toolCall.Name]
	if !ok {
		return NewToolMessage(toolCall.ID, toolCall.Name,
			fmt.Sprintf("Error: tool %s not found", toolCall.Name))
	}
	result, err := t.Call(ctx, toolCall.Arguments)
	if err != nil {
		log.Warnf("tool %s call failed: %v", toolCall.Name, err)
		return NewToolMessage(toolCall.ID, toolCall.Name,
			fmt.Sprintf("Error: %v", err))
	}
	content, err := json.Marshal(result)
	if err != nil {
		return NewToolMessage(toolCall.ID, toolCall.Name,
			fmt.Sprintf("Error: failed to serialize tool result: %v", err))
	}
	return NewToolMessage(toolCall.ID, toolCall.Name, string(content))
}

// MessagesStateSchema creates a state schema for message-based workflows:
// an appending message history plus replaceable input/response fields.
func MessagesStateSchema() *StateSchema {
	schema := NewStateSchema()
	schema.AddField(StateKeyMessages, StateField{
		Type:    reflect.TypeOf([]Message{}),
		Reducer: MessageReducer,
		Default: func() any { return []Message{} },
	})
	schema.AddField(StateKeyUserInput, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyLastResponse, StateField{
		Type:    reflect.TypeOf(""),
		Reducer: DefaultReducer,
	})
	schema.AddField(StateKeyMetadata, StateField{
		Type:    reflect.TypeOf(map[string]any{}),
		Reducer: MergeReducer,
		Default: func() any { return make(map[string]any) },
	})
	return schema
}
