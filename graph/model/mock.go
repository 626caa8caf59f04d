package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Responses are returned in order and the last one repeats once the script
// is exhausted. Respond, when set, takes precedence and computes the reply
// from the messages, which suits concurrent callers whose order is not
// fixed. Err, when set, fails every call.
//
//	mock := &model.MockChatModel{Responses: []model.ChatOut{
//	    {Text: `{"datasource": "vectorstore"}`},
//	}}
type MockChatModel struct {
	Responses []ChatOut
	Respond   func(messages []Message) (ChatOut, error)
	Err       error

	mu    sync.Mutex
	calls [][]Message
	next  int
}

// Chat records the call and returns the scripted response.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, _ []ToolSpec) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]Message(nil), messages...))

	switch {
	case m.Err != nil:
		return ChatOut{}, m.Err
	case m.Respond != nil:
		return m.Respond(messages)
	case len(m.Responses) == 0:
		return ChatOut{}, nil
	}

	idx := min(m.next, len(m.Responses)-1)
	if m.next < len(m.Responses) {
		m.next++
	}
	return m.Responses[idx], nil
}

// Calls returns a copy of the recorded conversations.
func (m *MockChatModel) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

// CallCount returns the number of Chat calls.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears the call history and rewinds the script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
