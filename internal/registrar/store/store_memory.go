// Package store holds the registrar's chain link table and fee ledger.
package store

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	"ccns/internal/registrar"
	id "ccns/pkg/domain"
	"ccns/pkg/platform/sentinel"
	"ccns/pkg/platform/tx"
)

// InMemoryLinks keeps links in a map plus an insertion order slice.
type InMemoryLinks struct {
	mu    sync.RWMutex
	links map[id.ChainSelector]registrar.ChainLink
	order []id.ChainSelector
}

func NewInMemoryLinks() *InMemoryLinks {
	return &InMemoryLinks{links: make(map[id.ChainSelector]registrar.ChainLink)}
}

func (s *InMemoryLinks) Upsert(ctx context.Context, link registrar.ChainLink) error {
	s.mu.Lock()
	prev, existed := s.links[link.Selector]
	if existed {
		// position and first-enabled time are kept on overwrite
		link.EnabledAt = prev.EnabledAt
	} else {
		s.order = append(s.order, link.Selector)
	}
	s.links[link.Selector] = link
	s.mu.Unlock()

	tx.Undo(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.links[link.Selector] = prev
			return
		}
		delete(s.links, link.Selector)
		for i := len(s.order) - 1; i >= 0; i-- {
			if s.order[i] == link.Selector {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (s *InMemoryLinks) Get(_ context.Context, selector id.ChainSelector) (registrar.ChainLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[selector]
	if !ok {
		return registrar.ChainLink{}, sentinel.ErrNotFound
	}
	return link, nil
}

func (s *InMemoryLinks) List(_ context.Context) ([]registrar.ChainLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registrar.ChainLink, 0, len(s.order))
	for _, sel := range s.order {
		out = append(out, s.links[sel])
	}
	return out, nil
}

// InMemoryLedger is a single fee balance.
type InMemoryLedger struct {
	mu      sync.Mutex
	balance uint64
}

func NewInMemoryLedger(initial uint64) *InMemoryLedger {
	return &InMemoryLedger{balance: initial}
}

func (l *InMemoryLedger) Balance(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

func (l *InMemoryLedger) Credit(ctx context.Context, amount uint64) error {
	l.mu.Lock()
	next, carry := bits.Add64(l.balance, amount, 0)
	if carry != 0 {
		l.mu.Unlock()
		return fmt.Errorf("credit %d overflows balance: %w", amount, sentinel.ErrInvalidState)
	}
	l.balance = next
	l.mu.Unlock()

	tx.Undo(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.balance -= amount
	})
	return nil
}

func (l *InMemoryLedger) Debit(ctx context.Context, amount uint64) error {
	l.mu.Lock()
	if l.balance < amount {
		l.mu.Unlock()
		return fmt.Errorf("debit %d exceeds balance: %w", amount, sentinel.ErrInvalidState)
	}
	l.balance -= amount
	l.mu.Unlock()

	tx.Undo(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.balance += amount
	})
	return nil
}
