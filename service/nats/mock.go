package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu        sync.RWMutex
	published []*BuyMessage
	err       error
	closed    bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishBuy records the event and returns any configured error.
func (m *MockPublisher) PublishBuy(_ context.Context, msg *BuyMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, msg)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns a copy of everything published so far.
func (m *MockPublisher) Published() []*BuyMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*BuyMessage, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedForToken returns events published for one mint.
func (m *MockPublisher) PublishedForToken(mint string) []*BuyMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*BuyMessage
	for _, msg := range m.published {
		if msg.Token == mint {
			out = append(out, msg)
		}
	}
	return out
}

// SetPublishError makes subsequent publishes fail with err.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
