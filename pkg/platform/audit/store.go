package audit

import (
	"context"

	id "ccns/pkg/domain"
)

// Store persists audit events. Implementations must honor the transition
// journal in ctx so events of a reverted transition are never observable.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByName(ctx context.Context, name id.Name) ([]Event, error)
}
