package model

import "context"

// BackendRequest carries everything one streaming turn needs: the full message
// history, the full tool list, and the fixed system instruction. The backend
// marks the last tool and the last message (when plain text) cache-eligible.
type BackendRequest struct {
	Model          string
	MaxTokens      int64
	System         string
	Messages       []Message
	Tools          []ToolDescriptor
	ThinkingBudget int64
}

// EmitFunc receives backend events in stream order. Returning an error aborts
// the stream.
type EmitFunc func(BackendEvent) error

// Backend abstracts the model provider. The interface lives in the model
// package so provider implementations can import model without a cycle.
type Backend interface {
	// Stream opens one streaming turn and emits decoded events in order,
	// ending with a message-stop event that carries the turn's token usage.
	Stream(ctx context.Context, req BackendRequest, emit EmitFunc) error
}
