package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	id "ccns/pkg/domain"
)

// TopicAdmin is satisfied by *kadm.Client.
type TopicAdmin interface {
	CreateTopics(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topics ...string) (kadm.CreateTopicResponses, error)
}

// EnsureTopics creates the topics of dests. Existing topics are left alone.
// A single partition keeps delivery order per destination.
func EnsureTopics(ctx context.Context, admin TopicAdmin, prefix string, replication int16, dests ...id.ChainSelector) error {
	if len(dests) == 0 {
		return nil
	}
	topics := make([]string, 0, len(dests))
	for _, dest := range dests {
		topics = append(topics, Topic(prefix, dest))
	}

	resp, err := admin.CreateTopics(ctx, 1, replication, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for topic, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, r.Err)
		}
	}
	return nil
}

// NewProducerClient connects a client for the relay.
func NewProducerClient(brokers []string, opts ...kgo.Opt) (*kgo.Client, error) {
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	cl, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return cl, nil
}

// NewConsumerClient connects a group consumer for the destination topic of
// chain. Offsets are committed explicitly by Consumer.
func NewConsumerClient(brokers []string, group, prefix string, chain id.ChainSelector, opts ...kgo.Opt) (*kgo.Client, error) {
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(Topic(prefix, chain)),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	cl, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return cl, nil
}
