package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisSessionCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionCache(client redis.UniversalClient, prefix string) *RedisSessionCache {
	if prefix == "" {
		prefix = "session_cache"
	}
	return &RedisSessionCache{client: client, prefix: prefix}
}

func (c *RedisSessionCache) Put(ctx context.Context, token string, identity SessionIdentity, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(token), payload, ttl).Err()
}

func (c *RedisSessionCache) Get(ctx context.Context, token string) (SessionIdentity, bool, error) {
	if c.client == nil {
		return SessionIdentity{}, false, nil
	}
	raw, err := c.client.Get(ctx, c.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SessionIdentity{}, false, nil
	}
	if err != nil {
		return SessionIdentity{}, false, err
	}
	var identity SessionIdentity
	if err := json.Unmarshal(raw, &identity); err != nil || identity.UserID == "" {
		// Undecodable entries are dropped so the next lookup repairs them from the store.
		_ = c.client.Del(ctx, c.key(token)).Err()
		return SessionIdentity{}, false, nil
	}
	return identity, true, nil
}

func (c *RedisSessionCache) Invalidate(ctx context.Context, token string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(token)).Err()
}

func (c *RedisSessionCache) key(token string) string {
	return fmt.Sprintf("%s:%s", c.prefix, token)
}
