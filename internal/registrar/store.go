package registrar

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks LinkStore,FeeLedger

import (
	"context"

	id "ccns/pkg/domain"
)

// LinkStore persists the insertion-ordered chain link table. Upsert of an
// existing selector replaces Receiver and GasLimit in place and keeps the
// original position. List returns links in dispatch order.
type LinkStore interface {
	Upsert(ctx context.Context, link ChainLink) error
	Get(ctx context.Context, selector id.ChainSelector) (ChainLink, error)
	List(ctx context.Context) ([]ChainLink, error)
}

// FeeLedger holds the registrar's fee balance. Debit returns
// sentinel.ErrInvalidState when the balance cannot cover amount.
type FeeLedger interface {
	Balance(ctx context.Context) (uint64, error)
	Credit(ctx context.Context, amount uint64) error
	Debit(ctx context.Context, amount uint64) error
}
