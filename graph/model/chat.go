// Package model defines the chat-model boundary used by workflow nodes.
//
// Nodes depend on the ChatModel interface only. Concrete providers live in
// the openai, anthropic and google subpackages; MockChatModel serves tests.
//
// Example:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "Answer in one sentence."},
//	    {Role: model.RoleUser, Content: question},
//	}, nil)
package model

import (
	"context"
	"errors"
)

// ChatModel sends a conversation to a language model and returns its reply.
//
// Implementations must be safe for concurrent use: the grading node calls
// the same model from several goroutines.
type ChatModel interface {
	// Chat sends messages and returns the model's response. tools lists the
	// functions the model may call; nil means none.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a function the model may call. Schema is a JSON Schema
// object describing the arguments.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ChatOut is a model response.
type ChatOut struct {
	// Text is the assistant's reply. It may be empty when the model only
	// requested tool calls.
	Text string

	// ToolCalls lists the tool invocations the model requested.
	ToolCalls []ToolCall

	// Usage reports token consumption, when the provider returns it.
	Usage Usage
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// Usage is the token consumption of one Chat call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the sum of input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// ErrEmptyResponse is returned by providers when the API answered without any
// content.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ProviderError is a provider API failure classified for retry decisions.
type ProviderError struct {
	// Provider is "openai", "anthropic" or "google".
	Provider string

	// Code is one of rate_limited, timeout, invalid_api_key, quota_exceeded,
	// server_error, network_error or api_error.
	Code string

	// Retryable reports whether the call may succeed if repeated.
	Retryable bool

	Cause error
}

func (e *ProviderError) Error() string {
	if e.Cause == nil {
		return e.Provider + " " + e.Code
	}
	return e.Provider + " " + e.Code + ": " + e.Cause.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a ProviderError marked retryable. It
// fits graph.RetryPolicy.Retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}
