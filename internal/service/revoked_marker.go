package service

import (
	"context"
	"sync"
	"time"
)

// RevokedMarker remembers session tokens known to be revoked. Revocation is permanent, so a
// marker never goes stale; the TTL only bounds memory and should outlive the longest token.
type RevokedMarker interface {
	Mark(ctx context.Context, ttl time.Duration, tokens ...string) error
	IsMarked(ctx context.Context, token string) (bool, error)
}

type NoopRevokedMarker struct{}

func NewNoopRevokedMarker() *NoopRevokedMarker { return &NoopRevokedMarker{} }

func (NoopRevokedMarker) Mark(context.Context, time.Duration, ...string) error { return nil }

func (NoopRevokedMarker) IsMarked(context.Context, string) (bool, error) { return false, nil }

type InMemoryRevokedMarker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewInMemoryRevokedMarker() *InMemoryRevokedMarker {
	return &InMemoryRevokedMarker{entries: map[string]time.Time{}, now: time.Now}
}

func (m *InMemoryRevokedMarker) Mark(_ context.Context, ttl time.Duration, tokens ...string) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expires := m.now().Add(ttl)
	for _, token := range tokens {
		if token == "" {
			continue
		}
		m.entries[token] = expires
	}
	return nil
}

func (m *InMemoryRevokedMarker) IsMarked(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expires, ok := m.entries[token]
	if !ok {
		return false, nil
	}
	if !m.now().Before(expires) {
		delete(m.entries, token)
		return false, nil
	}
	return true, nil
}
