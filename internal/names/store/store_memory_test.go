package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	id "ccns/pkg/domain"
	"ccns/pkg/platform/sentinel"
	"ccns/pkg/platform/tx"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestSetAndGet() {
	s.Run("missing name returns ErrNotFound", func() {
		_, err := s.store.Get(s.ctx, "nobody.ccns")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("stores and overwrites", func() {
		a, b := id.NewRandomAddress(), id.NewRandomAddress()
		s.Require().NoError(s.store.Set(s.ctx, "alice.ccns", a))
		s.Require().NoError(s.store.Set(s.ctx, "alice.ccns", b))
		got, err := s.store.Get(s.ctx, "alice.ccns")
		s.Require().NoError(err)
		s.Equal(b, got)
	})
}

func (s *InMemoryStoreSuite) TestRollback() {
	s.Run("restores the previous owner", func() {
		a := id.NewRandomAddress()
		s.Require().NoError(s.store.Set(s.ctx, "alice.ccns", a))

		journal := tx.New(nil)
		ctx := tx.WithTx(s.ctx, journal)
		s.Require().NoError(s.store.Set(ctx, "alice.ccns", id.NewRandomAddress()))
		journal.Rollback()

		got, err := s.store.Get(s.ctx, "alice.ccns")
		s.Require().NoError(err)
		s.Equal(a, got)
	})

	s.Run("removes a record created in the transition", func() {
		journal := tx.New(nil)
		ctx := tx.WithTx(s.ctx, journal)
		s.Require().NoError(s.store.Set(ctx, "new.ccns", id.NewRandomAddress()))
		journal.Rollback()

		_, err := s.store.Get(s.ctx, "new.ccns")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
