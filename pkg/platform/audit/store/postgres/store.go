package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	id "ccns/pkg/domain"
	audit "ccns/pkg/platform/audit"
	txcontext "ccns/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL. Appends join the SQL
// transaction of the enclosing chain transition, so rolled back transitions
// leave no events behind.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.SQLFrom(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, chain, peer,
			name, owner, actor, message_id, amount, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric, $12)
	`
	var messageID *uuid.UUID
	if !event.MessageID.IsNil() {
		mid := uuid.UUID(event.MessageID)
		messageID = &mid
	}

	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		event.Action,
		int64(event.Chain),
		int64(event.Peer),
		event.Name.String(),
		event.Owner.Bytes(),
		event.Actor.Bytes(),
		messageID,
		strconv.FormatUint(event.Amount, 10),
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByName returns events for a name, oldest first.
func (s *Store) ListByName(ctx context.Context, name id.Name) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, action, chain, peer,
			   name, owner, actor, message_id, amount::text, reason
		FROM audit_events
		WHERE name = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, name.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category  string
			chain     int64
			peer      int64
			name      string
			owner     []byte
			actor     []byte
			messageID *uuid.UUID
			amount    string
			event     audit.Event
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&event.Action,
			&chain,
			&peer,
			&name,
			&owner,
			&actor,
			&messageID,
			&amount,
			&event.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		event.Chain = id.ChainSelector(uint64(chain))
		event.Peer = id.ChainSelector(uint64(peer))
		event.Name = id.Name(name)
		copy(event.Owner[:], owner)
		copy(event.Actor[:], actor)
		if messageID != nil {
			event.MessageID = id.MessageID(*messageID)
		}
		if event.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("scan audit event amount: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
