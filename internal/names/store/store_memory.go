package store

import (
	"context"
	"sync"

	id "ccns/pkg/domain"
	"ccns/pkg/platform/sentinel"
	"ccns/pkg/platform/tx"
)

// InMemory keeps name records in a map. Writes inside a transition register
// an undo that restores the previous record.
type InMemory struct {
	mu     sync.RWMutex
	owners map[id.Name]id.Address
}

func NewInMemory() *InMemory {
	return &InMemory{owners: make(map[id.Name]id.Address)}
}

func (s *InMemory) Set(ctx context.Context, name id.Name, owner id.Address) error {
	s.mu.Lock()
	prev, existed := s.owners[name]
	s.owners[name] = owner
	s.mu.Unlock()

	tx.Undo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.owners[name] = prev
			return
		}
		delete(s.owners, name)
	})
	return nil
}

func (s *InMemory) Get(_ context.Context, name id.Name) (id.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if owner, ok := s.owners[name]; ok {
		return owner, nil
	}
	return id.ZeroAddress, sentinel.ErrNotFound
}

// Len returns the number of stored records.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.owners)
}
