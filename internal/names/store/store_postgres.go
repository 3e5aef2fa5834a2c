package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	id "ccns/pkg/domain"
	"ccns/pkg/platform/sentinel"
	txcontext "ccns/pkg/platform/tx"
)

// PostgresStore persists name records of one chain in the names table.
// Writes join the SQL transaction of the enclosing chain transition.
type PostgresStore struct {
	db    *sql.DB
	chain id.ChainSelector
}

// NewPostgres constructs a PostgreSQL-backed names store scoped to chain.
func NewPostgres(db *sql.DB, chain id.ChainSelector) *PostgresStore {
	return &PostgresStore{db: db, chain: chain}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.SQLFrom(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Set(ctx context.Context, name id.Name, owner id.Address) error {
	query := `
		INSERT INTO names (chain, name, owner, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain, name) DO UPDATE SET
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, int64(s.chain), name.String(), owner.Bytes(), time.Now())
	if err != nil {
		return fmt.Errorf("upsert name record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, name id.Name) (id.Address, error) {
	var raw []byte
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT owner FROM names WHERE chain = $1 AND name = $2`,
		int64(s.chain), name.String(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return id.ZeroAddress, sentinel.ErrNotFound
	}
	if err != nil {
		return id.ZeroAddress, fmt.Errorf("find name record: %w", err)
	}
	var owner id.Address
	if len(raw) != id.AddressLength {
		return id.ZeroAddress, fmt.Errorf("find name record: stored owner has %d bytes", len(raw))
	}
	copy(owner[:], raw)
	return owner, nil
}
