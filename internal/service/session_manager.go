package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/repository"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
)

const cacheFanout = 8

type SessionManagerOptions struct {
	CacheTTL          time.Duration
	CacheTimeout      time.Duration
	StoreTimeout      time.Duration
	InvalidateRetries int
	// RevokedMarkerTTL is how long revoked tokens stay marked. Zero disables marking.
	RevokedMarkerTTL time.Duration
}

// SessionManager owns the write side of the session lifecycle and keeps the cache in step
// with the store: the store write always commits first, the cache follows.
type SessionManager struct {
	sessions repository.SessionRepository
	cache    SessionCache
	marker   RevokedMarker
	opts     SessionManagerOptions
	logger   *slog.Logger
	backoff  func() backoff.BackOff
}

func NewSessionManager(sessions repository.SessionRepository, cache SessionCache, opts SessionManagerOptions, logger *slog.Logger) *SessionManager {
	if opts.InvalidateRetries < 1 {
		opts.InvalidateRetries = 1
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = 250 * time.Millisecond
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	return &SessionManager{
		sessions: sessions,
		cache:    cache,
		marker:   NewNoopRevokedMarker(),
		opts:     opts,
		logger:   logger,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

// WithRevokedMarker lets verification reject replayed revoked tokens without a store read.
func (m *SessionManager) WithRevokedMarker(marker RevokedMarker) *SessionManager {
	if marker != nil {
		m.marker = marker
	}
	return m
}

func identityOf(user *domain.User) SessionIdentity {
	return SessionIdentity{UserID: user.ID, Username: user.Username, Email: user.Email}
}

func (m *SessionManager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.opts.StoreTimeout)
}

// storeError maps a repository failure to the service taxonomy. Sentinels the caller cares
// about are passed through; anything else is logged and reported as unavailable.
func (m *SessionManager) storeError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrSessionNotOwned):
		return ErrUnauthorized
	}
	m.logger.ErrorContext(ctx, "session store failure", "operation", op, "error", err)
	return ErrDependencyUnavailable
}

// CreateSession persists a new session for user and mirrors it into the cache. A cache
// failure is logged and never fails the caller.
func (m *SessionManager) CreateSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	storeCtx, cancel := m.storeContext(ctx)
	session, err := m.sessions.Create(storeCtx, user.ID)
	cancel()
	if err != nil {
		return nil, m.storeError(ctx, "create", err)
	}
	m.put(ctx, session.SessionToken, identityOf(user))
	return session, nil
}

func (m *SessionManager) put(ctx context.Context, token string, identity SessionIdentity) {
	cacheCtx, cancel := context.WithTimeout(ctx, m.opts.CacheTimeout)
	defer cancel()
	if err := m.cache.Put(cacheCtx, token, identity, m.opts.CacheTTL); err != nil {
		observability.RecordSessionCacheOperation(ctx, "put", "error")
		m.logger.WarnContext(ctx, "session cache put failed", "user_id", identity.UserID, "error", err)
		return
	}
	observability.RecordSessionCacheOperation(ctx, "put", "success")
}

// Repair writes identity for a session that was found valid in the store. Revokes mark before
// they invalidate, so checking the marker again after the write catches a revoke that landed
// between the store read and the put.
func (m *SessionManager) Repair(ctx context.Context, token string, identity SessionIdentity) {
	if m.IsRevoked(ctx, token) {
		return
	}
	m.put(ctx, token, identity)
	if m.IsRevoked(ctx, token) {
		m.invalidate(ctx, token)
	}
}

// IsRevoked reports whether token carries a revocation marker. Marker failures read as
// "not marked" and leave the decision to the store.
func (m *SessionManager) IsRevoked(ctx context.Context, token string) bool {
	cacheCtx, cancel := context.WithTimeout(ctx, m.opts.CacheTimeout)
	defer cancel()
	marked, err := m.marker.IsMarked(cacheCtx, token)
	if err != nil {
		observability.RecordSessionCacheOperation(ctx, "marker_get", "error")
		m.logger.WarnContext(ctx, "revoked marker lookup failed", "error", err)
		return false
	}
	if marked {
		observability.RecordSessionCacheOperation(ctx, "marker_get", "hit")
	}
	return marked
}

func (m *SessionManager) mark(ctx context.Context, tokens ...string) {
	if m.opts.RevokedMarkerTTL <= 0 || len(tokens) == 0 {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, m.opts.CacheTimeout)
	defer cancel()
	if err := m.marker.Mark(cacheCtx, m.opts.RevokedMarkerTTL, tokens...); err != nil {
		observability.RecordSessionCacheOperation(ctx, "mark", "error")
		m.logger.WarnContext(ctx, "revoked marker write failed", "count", len(tokens), "error", err)
		return
	}
	observability.RecordSessionCacheOperation(ctx, "mark", "success")
}

// invalidate removes token from the cache, retrying with exponential backoff. A final
// failure leaves a stale entry that the periodic sweep removes.
func (m *SessionManager) invalidate(ctx context.Context, token string) bool {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		cacheCtx, cancel := context.WithTimeout(ctx, m.opts.CacheTimeout)
		defer cancel()
		return struct{}{}, m.cache.Invalidate(cacheCtx, token)
	}, backoff.WithBackOff(m.backoff()), backoff.WithMaxTries(uint(m.opts.InvalidateRetries)))
	if err != nil {
		observability.RecordSessionCacheOperation(ctx, "invalidate", "error")
		m.logger.WarnContext(ctx, "session cache invalidation failed, entry left for sweep",
			"attempts", m.opts.InvalidateRetries, "error", err)
		return false
	}
	observability.RecordSessionCacheOperation(ctx, "invalidate", "success")
	return true
}

// Revoke revokes sessionID on behalf of its owner and drops its cache entry. The returned
// status is "revoked" or "already_revoked".
func (m *SessionManager) Revoke(ctx context.Context, sessionID, requestingUserID, reason string) (string, error) {
	storeCtx, cancel := m.storeContext(ctx)
	defer cancel()
	session, err := m.sessions.FindByID(storeCtx, sessionID)
	if err != nil {
		observability.RecordSessionRevocation(ctx, reason, "error")
		return "", m.storeError(ctx, "revoke", err)
	}
	changed, err := m.sessions.Revoke(storeCtx, sessionID, requestingUserID, reason)
	if err != nil {
		observability.RecordSessionRevocation(ctx, reason, "error")
		return "", m.storeError(ctx, "revoke", err)
	}
	return m.afterRevoke(ctx, session.SessionToken, reason, changed), nil
}

// RevokeByID is the administrative revoke without an ownership check.
func (m *SessionManager) RevokeByID(ctx context.Context, sessionID, reason string) (string, error) {
	storeCtx, cancel := m.storeContext(ctx)
	defer cancel()
	session, err := m.sessions.FindByID(storeCtx, sessionID)
	if err != nil {
		observability.RecordSessionRevocation(ctx, reason, "error")
		return "", m.storeError(ctx, "revoke_by_id", err)
	}
	changed, err := m.sessions.RevokeByID(storeCtx, sessionID, reason)
	if err != nil {
		observability.RecordSessionRevocation(ctx, reason, "error")
		return "", m.storeError(ctx, "revoke_by_id", err)
	}
	return m.afterRevoke(ctx, session.SessionToken, reason, changed), nil
}

func (m *SessionManager) afterRevoke(ctx context.Context, token, reason string, changed bool) string {
	// Invalidate even when nothing changed: a previous attempt may have failed after commit.
	m.mark(ctx, token)
	m.invalidate(ctx, token)
	if !changed {
		observability.RecordSessionRevocation(ctx, reason, "already_revoked")
		return "already_revoked"
	}
	observability.RecordSessionRevocation(ctx, reason, "revoked")
	return "revoked"
}

// RevokeAllForUser revokes every active session of userID except exceptSessionID and returns
// how many were revoked.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID, exceptSessionID, reason string) (int, error) {
	storeCtx, cancel := m.storeContext(ctx)
	revoked, err := m.sessions.RevokeAllByUser(storeCtx, userID, exceptSessionID, reason)
	cancel()
	if err != nil {
		observability.RecordSessionRevocation(ctx, reason, "error")
		return 0, m.storeError(ctx, "revoke_all_by_user", err)
	}
	m.InvalidateSessions(ctx, revoked)
	for range revoked {
		observability.RecordSessionRevocation(ctx, reason, "revoked")
	}
	return len(revoked), nil
}

// InvalidateSessions marks sessions revoked, drops their cache entries concurrently and
// returns the number of entries confirmed removed.
func (m *SessionManager) InvalidateSessions(ctx context.Context, sessions []domain.Session) int {
	if len(sessions) == 0 {
		return 0
	}
	tokens := make([]string, len(sessions))
	for i := range sessions {
		tokens[i] = sessions[i].SessionToken
	}
	m.mark(ctx, tokens...)
	results := make([]bool, len(sessions))
	var g errgroup.Group
	g.SetLimit(cacheFanout)
	for i := range sessions {
		g.Go(func() error {
			results[i] = m.invalidate(ctx, sessions[i].SessionToken)
			return nil
		})
	}
	_ = g.Wait()
	ok := 0
	for _, r := range results {
		if r {
			ok++
		}
	}
	return ok
}

// RefreshUserCache rewrites the cached identity of every active session of user, used after
// the user's identity fields change.
func (m *SessionManager) RefreshUserCache(ctx context.Context, user *domain.User) error {
	storeCtx, cancel := m.storeContext(ctx)
	sessions, err := m.sessions.ListActiveByUser(storeCtx, user.ID)
	cancel()
	if err != nil {
		return m.storeError(ctx, "list_active_by_user", err)
	}
	identity := identityOf(user)
	var g errgroup.Group
	g.SetLimit(cacheFanout)
	for _, s := range sessions {
		g.Go(func() error {
			m.put(ctx, s.SessionToken, identity)
			return nil
		})
	}
	return g.Wait()
}

// InvalidateRevokedSince drops cache entries of sessions revoked at or after since. It bounds
// how long a failed invalidation can leave a revoked session looking valid.
func (m *SessionManager) InvalidateRevokedSince(ctx context.Context, since time.Time) (int, error) {
	storeCtx, cancel := m.storeContext(ctx)
	revoked, err := m.sessions.ListRevokedSince(storeCtx, since)
	cancel()
	if err != nil {
		return 0, m.storeError(ctx, "list_revoked_since", err)
	}
	return m.InvalidateSessions(ctx, revoked), nil
}
