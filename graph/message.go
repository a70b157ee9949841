//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import "encoding/json"

// Role constants for message authors.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the conversational history kept under
// StateKeyMessages. The shape is JSON-stable so histories survive
// checkpoint round-trips.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolCall is a pending tool invocation requested by an assistant message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool result message bound to a tool call ID.
func NewToolMessage(toolCallID, toolName, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		ToolName:   toolName,
	}
}

// MessageReducer appends conversational history. Entries carrying an ID
// that already exists replace the prior entry in place instead of
// appending, so edited messages do not duplicate.
func MessageReducer(existing, update any) any {
	existingMsgs, ok1 := NormalizeMessages(existing)
	updateMsgs, ok2 := NormalizeMessages(update)
	if !ok1 || !ok2 {
		return update
	}
	merged := make([]Message, len(existingMsgs))
	copy(merged, existingMsgs)
	for _, msg := range updateMsgs {
		if msg.ID != "" {
			replaced := false
			for i := range merged {
				if merged[i].ID == msg.ID {
					merged[i] = msg
					replaced = true
					break
				}
			}
			if replaced {
				continue
			}
		}
		merged = append(merged, msg)
	}
	return merged
}

// NormalizeMessages converts a state value into []Message. It accepts the
// native slice as well as the []any-of-maps shape produced by JSON
// checkpoint round-trips.
func NormalizeMessages(v any) ([]Message, bool) {
	switch msgs := v.(type) {
	case nil:
		return nil, true
	case []Message:
		return msgs, true
	case []any:
		out := make([]Message, 0, len(msgs))
		for _, m := range msgs {
			switch typed := m.(type) {
			case Message:
				out = append(out, typed)
			case map[string]any:
				data, err := json.Marshal(typed)
				if err != nil {
					return nil, false
				}
				var msg Message
				if err := json.Unmarshal(data, &msg); err != nil {
					return nil, false
				}
				out = append(out, msg)
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

// MessagesFromState reads and normalizes the message history under
// StateKeyMessages. Missing or foreign-typed values yield an empty slice.
func MessagesFromState(state State) []Message {
	msgs, ok := NormalizeMessages(state[StateKeyMessages])
	if !ok {
		return nil
	}
	return msgs
}
