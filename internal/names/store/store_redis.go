package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	id "ccns/pkg/domain"
	"ccns/pkg/platform/sentinel"
	"ccns/pkg/platform/tx"
)

// Redis key prefix for the per-chain names hash.
const namesKeyPrefix = "ccns:names:"

// RedisStore keeps name records of one chain in a single Redis hash. Redis
// does not take part in SQL transactions, so writes inside a transition
// register an undo that restores the previous field value.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger that reports failed undos.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedis constructs a Redis-backed names store scoped to chain.
func NewRedis(client *redis.Client, chain id.ChainSelector, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		key:    namesKeyPrefix + chain.String(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Set(ctx context.Context, name id.Name, owner id.Address) error {
	prev, err := s.client.HGet(ctx, s.key, name.String()).Result()
	existed := true
	if errors.Is(err, redis.Nil) {
		existed = false
	} else if err != nil {
		return fmt.Errorf("read previous name record: %w", err)
	}

	if err := s.client.HSet(ctx, s.key, name.String(), owner.String()).Err(); err != nil {
		return fmt.Errorf("store name record: %w", err)
	}

	tx.Undo(ctx, func() {
		// Undo runs after the transition context may be cancelled.
		undoCtx := context.WithoutCancel(ctx)
		s.undo(undoCtx, name, prev, existed)
	})
	return nil
}

// undo restores the field a reverted transition overwrote. A failure leaves
// the reverted owner in Redis; it is logged with the owner to restore.
func (s *RedisStore) undo(ctx context.Context, name id.Name, prev string, existed bool) {
	var err error
	if existed {
		err = s.client.HSet(ctx, s.key, name.String(), prev).Err()
	} else {
		err = s.client.HDel(ctx, s.key, name.String()).Err()
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to undo name record",
			"key", s.key,
			"name", name,
			"previous_owner", prev,
			"had_previous", existed,
			"error", err,
		)
	}
}

func (s *RedisStore) Get(ctx context.Context, name id.Name) (id.Address, error) {
	raw, err := s.client.HGet(ctx, s.key, name.String()).Result()
	if errors.Is(err, redis.Nil) {
		return id.ZeroAddress, sentinel.ErrNotFound
	}
	if err != nil {
		return id.ZeroAddress, fmt.Errorf("find name record: %w", err)
	}
	owner, err := id.ParseAddress(raw)
	if err != nil {
		return id.ZeroAddress, fmt.Errorf("decode name record: %w", err)
	}
	return owner, nil
}
