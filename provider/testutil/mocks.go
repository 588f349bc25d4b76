package testutil

import (
	"context"
	"sync"

	"habitcoach/model"
)

// MockBackend implements model.Backend for testing. Each behaviour can be
// replaced through its func field.
type MockBackend struct {
	LoadFunc     func(ctx context.Context) error
	GenerateFunc func(ctx context.Context, prompt, promptContext string) (string, error)
	ReleaseFunc  func(ctx context.Context) error

	name string

	mu           sync.Mutex
	state        model.LoadState
	loadCalls    int
	releaseCalls int
	prompts      []string
}

// NewMockBackend creates a mock that loads instantly and echoes a fixed reply.
func NewMockBackend(name string) *MockBackend {
	mock := &MockBackend{name: name}
	mock.LoadFunc = func(ctx context.Context) error { return nil }
	mock.GenerateFunc = func(ctx context.Context, prompt, promptContext string) (string, error) {
		return "Mock response", nil
	}
	mock.ReleaseFunc = func(ctx context.Context) error { return nil }
	return mock
}

func (m *MockBackend) Name() string { return m.name }

func (m *MockBackend) State() model.LoadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockBackend) Load(ctx context.Context) error {
	m.mu.Lock()
	m.loadCalls++
	m.state = model.LoadLoading
	m.mu.Unlock()

	err := m.LoadFunc(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = model.LoadFailed
	} else {
		m.state = model.LoadReady
	}
	m.mu.Unlock()
	return err
}

func (m *MockBackend) Generate(ctx context.Context, prompt, promptContext string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, prompt, promptContext)
}

func (m *MockBackend) Release(ctx context.Context) error {
	m.mu.Lock()
	m.releaseCalls++
	m.state = model.LoadUnloaded
	m.mu.Unlock()
	return m.ReleaseFunc(ctx)
}

// LoadCalls reports how many times Load ran.
func (m *MockBackend) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ReleaseCalls reports how many times Release ran.
func (m *MockBackend) ReleaseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseCalls
}

// Prompts returns every prompt passed to Generate.
func (m *MockBackend) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
