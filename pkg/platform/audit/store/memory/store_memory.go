package memory

import (
	"context"
	"sync"

	id "ccns/pkg/domain"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/tx"
)

// InMemoryStore keeps events in append order. Appends made inside a
// transition are removed again if the transition rolls back.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []entry
	seq    uint64
}

type entry struct {
	seq   uint64
	event audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.events = append(s.events, entry{seq: seq, event: event})
	s.mu.Unlock()

	tx.Undo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(s.events) - 1; i >= 0; i-- {
			if s.events[i].seq == seq {
				s.events = append(s.events[:i], s.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *InMemoryStore) ListByName(_ context.Context, name id.Name) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.event.Name == name {
			out = append(out, e.event)
		}
	}
	return out, nil
}

// ListAll returns every event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.event)
	}
	return out, nil
}

// ListByAction returns events with the given action in append order.
func (s *InMemoryStore) ListByAction(_ context.Context, action audit.AuditEvent) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.event.Action == string(action) {
			out = append(out, e.event)
		}
	}
	return out, nil
}
