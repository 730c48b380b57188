package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRevokedMarker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevokedMarker(client redis.UniversalClient, prefix string) *RedisRevokedMarker {
	if prefix == "" {
		prefix = "revoked_session"
	}
	return &RedisRevokedMarker{client: client, prefix: prefix}
}

// Mark writes all tokens in one pipeline round-trip.
func (m *RedisRevokedMarker) Mark(ctx context.Context, ttl time.Duration, tokens ...string) error {
	if m.client == nil || ttl <= 0 || len(tokens) == 0 {
		return nil
	}
	pipe := m.client.Pipeline()
	for _, token := range tokens {
		if token == "" {
			continue
		}
		pipe.Set(ctx, m.key(token), "1", ttl)
	}
	_, err := pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (m *RedisRevokedMarker) IsMarked(ctx context.Context, token string) (bool, error) {
	if m.client == nil {
		return false, nil
	}
	n, err := m.client.Exists(ctx, m.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *RedisRevokedMarker) key(token string) string {
	return fmt.Sprintf("%s:%s", m.prefix, token)
}
