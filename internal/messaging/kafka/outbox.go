package kafka

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ccns/internal/messaging"
	id "ccns/pkg/domain"
	txcontext "ccns/pkg/platform/tx"
)

// DefaultOutboxTable is created by the platform schema.
const DefaultOutboxTable = "message_outbox"

// Record is a message accepted by the Kafka router and staged for publishing.
type Record struct {
	ID          id.MessageID
	Source      id.ChainSelector
	Destination id.ChainSelector
	Message     messaging.Message
	Fee         uint64
	CreatedAt   time.Time
}

// Outbox stages accepted messages in Postgres. Rows inserted inside a chain
// transition share its SQL transaction, so a reverted transition stages
// nothing and a committed one can never lose its messages.
type Outbox struct {
	db    *sql.DB
	table string
}

// NewOutbox returns an outbox writing to table. An empty table selects
// DefaultOutboxTable.
func NewOutbox(db *sql.DB, table string) *Outbox {
	if table == "" {
		table = DefaultOutboxTable
	}
	return &Outbox{db: db, table: pq.QuoteIdentifier(table)}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (o *Outbox) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.SQLFrom(ctx); ok {
		return tx
	}
	return o.db
}

// Stage inserts rec as unpublished.
func (o *Outbox) Stage(ctx context.Context, rec Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, source, destination, sender, receiver,
			data, gas_limit, fee, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9)
	`, o.table)
	_, err := o.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		int64(rec.Source),
		int64(rec.Destination),
		rec.Message.Sender.Bytes(),
		rec.Message.Receiver.Bytes(),
		rec.Message.Data,
		strconv.FormatUint(rec.Message.GasLimit, 10),
		strconv.FormatUint(rec.Fee, 10),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("stage outbox message: %w", err)
	}
	return nil
}

// Pending returns up to limit unpublished records in staging order.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT id, source, destination, sender, receiver,
			   data, gas_limit::text, fee::text, created_at
		FROM %s
		WHERE published_at IS NULL
		ORDER BY seq ASC
		LIMIT $1
	`, o.table)
	rows, err := o.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			msgID       uuid.UUID
			source      int64
			destination int64
			sender      []byte
			receiver    []byte
			gasLimit    string
			fee         string
			rec         Record
		)
		if err := rows.Scan(&msgID, &source, &destination, &sender, &receiver,
			&rec.Message.Data, &gasLimit, &fee, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		rec.ID = id.MessageID(msgID)
		rec.Source = id.ChainSelector(uint64(source))
		rec.Destination = id.ChainSelector(uint64(destination))
		copy(rec.Message.Sender[:], sender)
		copy(rec.Message.Receiver[:], receiver)
		if rec.Message.GasLimit, err = strconv.ParseUint(gasLimit, 10, 64); err != nil {
			return nil, fmt.Errorf("scan outbox gas limit: %w", err)
		}
		if rec.Fee, err = strconv.ParseUint(fee, 10, 64); err != nil {
			return nil, fmt.Errorf("scan outbox fee: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// MarkPublished flags records as handed to Kafka.
func (o *Outbox) MarkPublished(ctx context.Context, ids []id.MessageID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, 0, len(ids))
	for _, msgID := range ids {
		raw = append(raw, msgID.String())
	}
	query := fmt.Sprintf(`UPDATE %s SET published_at = $2 WHERE id = ANY($1::uuid[])`, o.table)
	if _, err := o.db.ExecContext(ctx, query, pq.Array(raw), at); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
