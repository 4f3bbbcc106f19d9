package payment

import (
	"context"
	"sync"
)

// MemoryAttempts is a process-local AttemptRegistry that forgets the oldest
// ids once capacity is reached.
type MemoryAttempts struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func NewMemoryAttempts(capacity int) *MemoryAttempts {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryAttempts{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

func (m *MemoryAttempts) FirstAttempt(_ context.Context, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[paymentID]; ok {
		return false, nil
	}
	if len(m.order) >= m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.seen, oldest)
	}
	m.seen[paymentID] = struct{}{}
	m.order = append(m.order, paymentID)
	return true, nil
}

func (m *MemoryAttempts) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
