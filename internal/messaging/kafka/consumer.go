package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"ccns/internal/messaging"
	id "ccns/pkg/domain"
)

// Fetcher is satisfied by a *kgo.Client configured with a consumer group and
// auto commit disabled.
type Fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// Consumer hands records from the destination topic to the local receiver,
// presenting routerAddr as the caller.
//
// Deliveries the receiver marked with messaging.Reject are final: the
// receiver already recorded the rejection, so their offsets are committed. Any other failure stops the consumer
// without committing, and the record is redelivered on restart.
type Consumer struct {
	fetcher  Fetcher
	receiver messaging.Receiver
	router   id.Address
	endpoint id.Address
	logger   *slog.Logger
}

type ConsumerOption func(*Consumer)

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer delivers records addressed to endpoint, the address the receiver
// is deployed at. Records for other endpoints are skipped.
func NewConsumer(fetcher Fetcher, receiver messaging.Receiver, routerAddr, endpoint id.Address, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		fetcher:  fetcher,
		receiver: receiver,
		router:   routerAddr,
		endpoint: endpoint,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.fetcher.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return nil
			}
			c.logger.WarnContext(ctx, "fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}
		if err := c.process(ctx, fetches); err != nil {
			return err
		}
	}
}

// process delivers one poll worth of records, committing every record it
// finished with, including the ones before a failure.
func (c *Consumer) process(ctx context.Context, fetches kgo.Fetches) error {
	var done []*kgo.Record
	var failure error

	iter := fetches.RecordIter()
	for !iter.Done() {
		r := iter.Next()
		if err := c.deliver(ctx, r); err != nil {
			failure = err
			break
		}
		done = append(done, r)
	}

	if len(done) > 0 {
		if err := c.fetcher.CommitRecords(ctx, done...); err != nil {
			return fmt.Errorf("commit offsets: %w", err)
		}
	}
	return failure
}

// deliver returns an error only for failures that must be retried.
func (c *Consumer) deliver(ctx context.Context, r *kgo.Record) error {
	rec, err := decodeRecord(r)
	if err != nil {
		c.logger.ErrorContext(ctx, "dropping undecodable record",
			"topic", r.Topic,
			"partition", r.Partition,
			"offset", r.Offset,
			"error", err,
		)
		return nil
	}
	if rec.Message.Receiver != c.endpoint {
		c.logger.WarnContext(ctx, "skipping record for another receiver",
			"message_id", rec.ID,
			"receiver", rec.Message.Receiver,
		)
		return nil
	}

	err = c.receiver.Receive(ctx, c.router, messaging.Delivery{
		MessageID:      rec.ID,
		SourceSelector: rec.Source,
		Sender:         rec.Message.Sender,
		Data:           rec.Message.Data,
	})
	switch {
	case err == nil:
		return nil
	case messaging.IsRejected(err):
		return nil
	default:
		return fmt.Errorf("deliver message %s: %w", rec.ID, err)
	}
}
