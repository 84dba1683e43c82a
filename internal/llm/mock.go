package llm

import (
	"context"
	"errors"
	"sync"
)

// MockGateway is a test double for Gateway. Requests are recorded in order.
type MockGateway struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req Request) (*AssistantMessage, error)

	mu       sync.Mutex
	requests []Request
}

func (m *MockGateway) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockGateway) Complete(ctx context.Context, req Request) (*AssistantMessage, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &AssistantMessage{Role: RoleAssistant, Content: "mock response", Provider: m.Name()}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockGateway) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// NewScriptedGateway returns a MockGateway that replies with the given
// messages in order, then fails with ModelUnavailableError once exhausted.
func NewScriptedGateway(replies ...*AssistantMessage) *MockGateway {
	var mu sync.Mutex
	next := 0
	m := &MockGateway{ProviderName: "scripted"}
	m.CompleteFunc = func(ctx context.Context, req Request) (*AssistantMessage, error) {
		if err := ctx.Err(); err != nil {
			return nil, unavailable(m.Name(), 0, err)
		}
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return nil, unavailable(m.Name(), 0, errors.New("script exhausted"))
		}
		r := *replies[next]
		next++
		if r.Role == "" {
			r.Role = RoleAssistant
		}
		r.Provider = m.Name()
		return &r, nil
	}
	return m
}
