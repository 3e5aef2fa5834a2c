package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ccns/internal/registrar"
	id "ccns/pkg/domain"
	"ccns/pkg/platform/sentinel"
	txcontext "ccns/pkg/platform/tx"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.SQLFrom(ctx); ok {
		return tx
	}
	return db
}

// PostgresLinks stores chain links of one source chain. The position column
// is assigned on first insert and never updated, which preserves dispatch
// order across overwrites.
type PostgresLinks struct {
	db    *sql.DB
	chain id.ChainSelector
}

func NewPostgresLinks(db *sql.DB, chain id.ChainSelector) *PostgresLinks {
	return &PostgresLinks{db: db, chain: chain}
}

func (s *PostgresLinks) Upsert(ctx context.Context, link registrar.ChainLink) error {
	enabledAt := link.EnabledAt
	if enabledAt.IsZero() {
		enabledAt = time.Now()
	}
	query := `
		INSERT INTO chain_links (chain, selector, receiver, gas_limit, enabled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain, selector) DO UPDATE SET
			receiver = EXCLUDED.receiver,
			gas_limit = EXCLUDED.gas_limit
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		int64(s.chain),
		int64(link.Selector),
		link.Receiver.Bytes(),
		int64(link.GasLimit),
		enabledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chain link: %w", err)
	}
	return nil
}

func (s *PostgresLinks) Get(ctx context.Context, selector id.ChainSelector) (registrar.ChainLink, error) {
	query := `
		SELECT selector, receiver, gas_limit, enabled_at
		FROM chain_links
		WHERE chain = $1 AND selector = $2
	`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, int64(s.chain), int64(selector))
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return registrar.ChainLink{}, sentinel.ErrNotFound
	}
	if err != nil {
		return registrar.ChainLink{}, fmt.Errorf("find chain link: %w", err)
	}
	return link, nil
}

func (s *PostgresLinks) List(ctx context.Context) ([]registrar.ChainLink, error) {
	query := `
		SELECT selector, receiver, gas_limit, enabled_at
		FROM chain_links
		WHERE chain = $1
		ORDER BY position ASC
	`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, int64(s.chain))
	if err != nil {
		return nil, fmt.Errorf("query chain links: %w", err)
	}
	defer rows.Close()

	var links []registrar.ChainLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain links: %w", err)
	}
	return links, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (registrar.ChainLink, error) {
	var (
		selector int64
		receiver []byte
		gasLimit int64
		link     registrar.ChainLink
	)
	if err := row.Scan(&selector, &receiver, &gasLimit, &link.EnabledAt); err != nil {
		return registrar.ChainLink{}, err
	}
	if len(receiver) != id.AddressLength {
		return registrar.ChainLink{}, fmt.Errorf("stored receiver has %d bytes", len(receiver))
	}
	link.Selector = id.ChainSelector(uint64(selector))
	copy(link.Receiver[:], receiver)
	link.GasLimit = uint64(gasLimit)
	return link, nil
}

// PostgresLedger keeps the fee balance of one registrar in fee_balances.
// Amounts are NUMERIC(20,0) so the full uint64 range round-trips.
type PostgresLedger struct {
	db    *sql.DB
	chain id.ChainSelector
}

func NewPostgresLedger(db *sql.DB, chain id.ChainSelector) *PostgresLedger {
	return &PostgresLedger{db: db, chain: chain}
}

func (l *PostgresLedger) Balance(ctx context.Context) (uint64, error) {
	var raw string
	err := execer(ctx, l.db).QueryRowContext(ctx,
		`SELECT balance::text FROM fee_balances WHERE chain = $1`,
		int64(l.chain),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read fee balance: %w", err)
	}
	balance, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fee balance: %w", err)
	}
	return balance, nil
}

func (l *PostgresLedger) Credit(ctx context.Context, amount uint64) error {
	query := `
		INSERT INTO fee_balances (chain, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (chain) DO UPDATE SET balance = fee_balances.balance + EXCLUDED.balance
		WHERE fee_balances.balance + EXCLUDED.balance <= 18446744073709551615
	`
	res, err := execer(ctx, l.db).ExecContext(ctx, query, int64(l.chain), strconv.FormatUint(amount, 10))
	if err != nil {
		return fmt.Errorf("credit fee balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("credit %d overflows balance: %w", amount, sentinel.ErrInvalidState)
	}
	return nil
}

func (l *PostgresLedger) Debit(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return nil
	}
	query := `
		UPDATE fee_balances SET balance = balance - $2::numeric
		WHERE chain = $1 AND balance >= $2::numeric
	`
	res, err := execer(ctx, l.db).ExecContext(ctx, query, int64(l.chain), strconv.FormatUint(amount, 10))
	if err != nil {
		return fmt.Errorf("debit fee balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit fee balance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("debit %d exceeds balance: %w", amount, sentinel.ErrInvalidState)
	}
	return nil
}
