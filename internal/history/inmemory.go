package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process transcript store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]TurnRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]TurnRecord)}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Seq = len(s.records[record.CallID])
	s.records[record.CallID] = append(s.records[record.CallID], record)
	return nil
}

func (s *InMemoryStore) Transcript(_ context.Context, callID string) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[callID]
	out := make([]TurnRecord, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) DeleteCall(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, callID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
