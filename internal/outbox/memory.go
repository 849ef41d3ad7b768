package outbox

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a bounded in-process Store. Entries are lost on exit.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

// NewMemoryStore creates a MemoryStore holding at most capacity entries.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &MemoryStore{capacity: capacity}, nil
}

// Enqueue implements Store.
func (s *MemoryStore) Enqueue(_ context.Context, e Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	evicted := len(s.entries) - s.capacity
	if evicted <= 0 {
		return 0, nil
	}
	s.entries = append(s.entries[:0:0], s.entries[evicted:]...)
	return evicted, nil
}

// Oldest implements Store.
func (s *MemoryStore) Oldest(_ context.Context) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return Entry{}, false, nil
	}
	return s.entries[0], true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// MarkAttempt implements Store.
func (s *MemoryStore) MarkAttempt(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Attempts++
			return nil
		}
	}
	return nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}
