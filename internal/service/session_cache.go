package service

import (
	"context"
	"sync"
	"time"
)

// SessionIdentity is the cached view of a valid session: the owning user's identity.
// The JSON shape is shared with other readers of the cache and must stay {id, username, email}.
type SessionIdentity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SessionCache mirrors "session token is valid -> identity". It is never authoritative: a miss
// or an error means "ask the store".
type SessionCache interface {
	Put(ctx context.Context, token string, identity SessionIdentity, ttl time.Duration) error
	Get(ctx context.Context, token string) (SessionIdentity, bool, error)
	Invalidate(ctx context.Context, token string) error
}

type NoopSessionCache struct{}

func NewNoopSessionCache() *NoopSessionCache { return &NoopSessionCache{} }

func (c *NoopSessionCache) Put(context.Context, string, SessionIdentity, time.Duration) error {
	return nil
}

func (c *NoopSessionCache) Get(context.Context, string) (SessionIdentity, bool, error) {
	return SessionIdentity{}, false, nil
}

func (c *NoopSessionCache) Invalidate(context.Context, string) error { return nil }

type inMemoryEntry struct {
	identity  SessionIdentity
	expiresAt time.Time
}

type InMemorySessionCache struct {
	mu    sync.RWMutex
	store map[string]inMemoryEntry
	now   func() time.Time
}

func NewInMemorySessionCache() *InMemorySessionCache {
	return &InMemorySessionCache{store: make(map[string]inMemoryEntry), now: time.Now}
}

// Put stores identity under token. A non-positive ttl keeps the entry until invalidated.
func (c *InMemorySessionCache) Put(_ context.Context, token string, identity SessionIdentity, ttl time.Duration) error {
	entry := inMemoryEntry{identity: identity}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.store[token] = entry
	c.mu.Unlock()
	return nil
}

func (c *InMemorySessionCache) Get(_ context.Context, token string) (SessionIdentity, bool, error) {
	c.mu.RLock()
	entry, ok := c.store[token]
	c.mu.RUnlock()
	if !ok {
		return SessionIdentity{}, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.store[token]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.store, token)
		}
		c.mu.Unlock()
		return SessionIdentity{}, false, nil
	}
	return entry.identity, true, nil
}

func (c *InMemorySessionCache) Invalidate(_ context.Context, token string) error {
	c.mu.Lock()
	delete(c.store, token)
	c.mu.Unlock()
	return nil
}
