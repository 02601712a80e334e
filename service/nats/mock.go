package nats

import (
	"context"
	"sync"

	"github.com/solspray/solspray/service/distribute"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*distribute.ProgressEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*distribute.ProgressEvent, 0),
	}
}

// PublishProgress records the event and returns any configured error.
func (m *MockPublisher) PublishProgress(ctx context.Context, event *distribute.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the mock closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetPublishError configures PublishProgress to fail.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Events returns a copy of the recorded events.
func (m *MockPublisher) Events() []*distribute.ProgressEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*distribute.ProgressEvent, len(m.publishedEvents))
	copy(out, m.publishedEvents)
	return out
}

// EventKinds returns the kinds of recorded events in publish order.
func (m *MockPublisher) EventKinds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := make([]string, len(m.publishedEvents))
	for i, ev := range m.publishedEvents {
		kinds[i] = ev.Kind
	}
	return kinds
}
