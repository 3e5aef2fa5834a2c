package store

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ccns/pkg/domain"
)

func TestRedisStore_FailedUndoIsLogged(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	require.NoError(t, client.Close())

	tests := []struct {
		name    string
		existed bool
	}{
		{name: "restore previous owner", existed: true},
		{name: "delete new record", existed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			store := NewRedis(client, 1000, WithRedisLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
			prev := id.NewRandomAddress().String()

			store.undo(context.Background(), "alice.ccns", prev, tt.existed)

			assert.Contains(t, buf.String(), "failed to undo name record")
			assert.Contains(t, buf.String(), `"name":"alice.ccns"`)
			assert.Contains(t, buf.String(), "ccns:names:1000")
		})
	}
}
