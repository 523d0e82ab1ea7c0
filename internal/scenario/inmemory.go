package scenario

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore holds presets in process, seeded with the builtin scenarios.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]Scenario
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{items: make(map[string]Scenario)}
	now := time.Now().UTC()
	for _, sc := range BuiltinScenarios() {
		sc.CreatedAt = now
		sc.UpdatedAt = now
		s.items[sc.ID] = sc
	}
	return s
}

func (s *InMemoryStore) Create(_ context.Context, sc Scenario) (Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sc.CreatedAt = now
	sc.UpdatedAt = now
	s.items[sc.ID] = sc
	return sc, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.items[id]
	if !ok {
		return Scenario{}, ErrNotFound
	}
	return sc, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Scenario, 0, len(s.items))
	for _, sc := range s.items {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, sc Scenario) (Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[sc.ID]
	if !ok {
		return Scenario{}, ErrNotFound
	}
	sc.CreatedAt = existing.CreatedAt
	sc.UpdatedAt = time.Now().UTC()
	s.items[sc.ID] = sc
	return sc, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
