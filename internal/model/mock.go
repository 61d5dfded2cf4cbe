package model

import (
	"context"
	"sync"
)

// MockProvider replays scripted responses in order and records the prompts
// it was called with. Once the script is exhausted it keeps returning the
// last entry.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int

	// SystemPrompts and UserPrompts capture every call for assertions.
	SystemPrompts []string
	UserPrompts   []string
}

// NewMockProvider scripts a sequence of successful responses.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses, errs: make([]error, len(responses))}
}

// Append adds a successful step to the script.
func (m *MockProvider) Append(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
	m.errs = append(m.errs, nil)
	return m
}

// ThenError appends a failing step to the script.
func (m *MockProvider) ThenError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, "")
	m.errs = append(m.errs, err)
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransientError{Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SystemPrompts = append(m.SystemPrompts, system)
	m.UserPrompts = append(m.UserPrompts, user)
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	if idx < 0 {
		return "", nil
	}
	if err := m.errs[idx]; err != nil {
		return "", err
	}
	return m.responses[idx], nil
}

// Calls reports how many times Complete ran.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
