package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	id "ccns/pkg/domain"
)

const (
	defaultRelayInterval = 500 * time.Millisecond
	defaultRelayBatch    = 100
)

// OutboxReader is the relay's view of the outbox.
type OutboxReader interface {
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, ids []id.MessageID, at time.Time) error
}

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Relay publishes staged outbox records. A record is marked published only
// after the broker acknowledged it, so a crash between the two steps
// republishes and destinations see the message again.
//
// With a topic admin, the topic of every destination is created the first
// time the relay sees it, so chains enabled at runtime need no broker-side
// auto creation.
type Relay struct {
	outbox      OutboxReader
	producer    Producer
	admin       TopicAdmin
	replication int16
	known       map[id.ChainSelector]struct{}
	prefix      string
	interval    time.Duration
	batch       int
	logger      *slog.Logger
	now         func() time.Time
}

type RelayOption func(*Relay)

func WithRelayInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRelayBatch(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithTopicAdmin creates destination topics before their first publish.
func WithTopicAdmin(admin TopicAdmin, replication int16) RelayOption {
	return func(r *Relay) {
		r.admin = admin
		r.replication = replication
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(outbox OutboxReader, producer Producer, topicPrefix string, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:   outbox,
		producer: producer,
		prefix:   topicPrefix,
		interval: defaultRelayInterval,
		known:    make(map[id.ChainSelector]struct{}),
		batch:    defaultRelayBatch,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run flushes the outbox every interval until ctx is cancelled. Flush errors
// are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.ErrorContext(ctx, "outbox flush failed", "error", err)
				}
				break
			}
			if n < r.batch {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many records were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.outbox.Pending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := r.ensureTopics(ctx, pending); err != nil {
		return 0, err
	}

	records := make([]*kgo.Record, 0, len(pending))
	ids := make([]id.MessageID, 0, len(pending))
	for _, rec := range pending {
		kr, err := encodeRecord(r.prefix, rec)
		if err != nil {
			return 0, err
		}
		records = append(records, kr)
		ids = append(ids, rec.ID)
	}

	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, err
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, err
	}

	r.logger.InfoContext(ctx, "outbox flushed", "published", len(ids))
	return len(ids), nil
}

// ensureTopics creates the topics of destinations not seen before. Run and
// Flush are not meant for concurrent use, so known needs no lock.
func (r *Relay) ensureTopics(ctx context.Context, pending []Record) error {
	if r.admin == nil {
		return nil
	}
	var fresh []id.ChainSelector
	for _, rec := range pending {
		if _, ok := r.known[rec.Destination]; ok {
			continue
		}
		r.known[rec.Destination] = struct{}{}
		fresh = append(fresh, rec.Destination)
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := EnsureTopics(ctx, r.admin, r.prefix, r.replication, fresh...); err != nil {
		for _, dest := range fresh {
			delete(r.known, dest)
		}
		return err
	}
	r.logger.InfoContext(ctx, "destination topics ensured", "destinations", fresh)
	return nil
}
