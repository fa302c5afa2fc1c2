// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	calls  []ToolCall
	closed bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// AppendToolCall stores a copy of c, filling in ID and CreatedAt.
func (m *MockStore) AppendToolCall(_ context.Context, c *ToolCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.calls = append(m.calls, *c)
	return nil
}

// ListToolCalls returns matching calls newest first.
func (m *MockStore) ListToolCalls(_ context.Context, f ToolCallFilter) ([]ToolCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []ToolCall{}
	for _, c := range m.calls {
		if f.Since != nil && c.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.SessionID != nil && c.SessionID != *f.SessionID {
			continue
		}
		if f.Tool != nil && c.Tool != *f.Tool {
			continue
		}
		if f.Outcome != nil && c.Outcome != *f.Outcome {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Calls returns every stored call in append order.
func (m *MockStore) Calls() []ToolCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolCall(nil), m.calls...)
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
