// Package model abstracts the language-model capability behind a single
// request/response interface. Providers (Anthropic, OpenAI) live in
// sub-packages; agents and the coordinator depend only on this package.
package model

import (
	"context"
	"encoding/json"
)

// Message is one role-tagged turn handed to the model. Role is one of
// "system", "user", "assistant" or "tool".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model, unified across
// providers so downstream logic never branches per vendor.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgsMap decodes the call's JSON arguments into a generic map.
func (c ToolCall) ArgsMap() (map[string]any, error) {
	if len(c.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(c.Arguments, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a minimal JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the normalized model input.
type Request struct {
	System   string           `json:"system,omitempty"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// Response is a closed union: a model reply is either plain text or a
// request to invoke tools. Switch on the concrete type instead of probing
// for optional attributes.
type Response interface{ isResponse() }

// TextReply is a plain assistant text response.
type TextReply struct {
	Content string `json:"content"`
}

func (TextReply) isResponse() {}

// ToolInvocation is a response requesting one or more tool executions.
type ToolInvocation struct {
	Calls []ToolCall `json:"calls"`
	// Content carries any text the model emitted alongside the calls.
	Content string `json:"content,omitempty"`
}

func (ToolInvocation) isResponse() {}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface agents use to drive generation. Call is a
// suspension point: implementations must honor ctx cancellation and
// deadlines.
type Model interface {
	Call(ctx context.Context, req Request) (Response, error)
	Info() Info
}
