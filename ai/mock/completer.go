package mock

import (
	"context"
	"sync"

	"github.com/poiesic/ragrelay/ai"
)

// MockCompleter is a test double for ai.Completer.
// Requests are recorded so tests can inspect the prompts that were sent.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, returns Response.
	CompleteFunc func(ctx context.Context, req ai.CompletionRequest) (string, error)

	// Response is the canned answer used when CompleteFunc is nil.
	Response string

	mu       sync.Mutex
	requests []ai.CompletionRequest
}

// NewMockCompleter creates a mock completer answering with a fixed string.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{Response: "mock answer"}
}

// Complete records the request and returns the configured answer.
func (m *MockCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return m.Response, nil
}

// CallCount returns the number of Complete calls.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockCompleter) LastRequest() ai.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ai.CompletionRequest{}
	}
	return m.requests[len(m.requests)-1]
}
