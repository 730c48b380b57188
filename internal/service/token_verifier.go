package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/security"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

type VerifiedToken struct {
	Claims   *security.Claims
	Identity SessionIdentity
	// Source is "cache" when session validity came from the cache and "store" otherwise.
	Source string
}

// SessionToken is the server-side session the token is bound to.
func (v *VerifiedToken) SessionToken() string { return v.Claims.Session }

type TokenVerifier struct {
	jwt      *security.JWTManager
	sessions repository.SessionRepository
	users    repository.UserRepository
	cache    SessionCache
	manager  *SessionManager
	opts     SessionManagerOptions
	group    singleflight.Group
	logger   *slog.Logger
}

func NewTokenVerifier(jwt *security.JWTManager, sessions repository.SessionRepository, users repository.UserRepository, cache SessionCache, manager *SessionManager, opts SessionManagerOptions, logger *slog.Logger) *TokenVerifier {
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = 250 * time.Millisecond
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	return &TokenVerifier{
		jwt:      jwt,
		sessions: sessions,
		users:    users,
		cache:    cache,
		manager:  manager,
		opts:     opts,
		logger:   logger,
	}
}

// Verify checks signature, expiry and token type, then session validity: cache first, store on
// a miss, error or timeout. A store hit repairs the cache.
func (v *TokenVerifier) Verify(ctx context.Context, raw, tokenType string) (*VerifiedToken, error) {
	started := time.Now()
	ctx, span := observability.Tracer("auth").Start(ctx, "token.verify")
	defer span.End()
	span.SetAttributes(attribute.String("token.type", tokenType))

	verified, err := v.verify(ctx, raw, tokenType)
	elapsed := float64(time.Since(started).Microseconds()) / 1000
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("session.source", verified.Source))
		observability.RecordTokenValidation(ctx, "valid", verified.Source, elapsed)
	case errors.Is(err, ErrDependencyUnavailable):
		span.SetStatus(codes.Error, "dependency unavailable")
		observability.RecordTokenValidation(ctx, "unavailable", "store", elapsed)
	default:
		observability.RecordTokenValidation(ctx, "invalid", "none", elapsed)
	}
	return verified, err
}

func (v *TokenVerifier) verify(ctx context.Context, raw, tokenType string) (*VerifiedToken, error) {
	claims, err := v.jwt.Parse(raw, tokenType)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if identity, ok := v.fromCache(ctx, claims); ok {
		return &VerifiedToken{Claims: claims, Identity: identity, Source: "cache"}, nil
	}
	if v.manager.IsRevoked(ctx, claims.Session) {
		return nil, ErrTokenInvalid
	}

	result, err, _ := v.group.Do(claims.Session, func() (any, error) {
		return v.fromStore(ctx, claims.Session)
	})
	if err != nil {
		return nil, err
	}
	identity := result.(SessionIdentity)
	if identity.UserID != claims.UserID {
		return nil, ErrTokenInvalid
	}
	return &VerifiedToken{Claims: claims, Identity: identity, Source: "store"}, nil
}

func (v *TokenVerifier) fromCache(ctx context.Context, claims *security.Claims) (SessionIdentity, bool) {
	cacheCtx, cancel := context.WithTimeout(ctx, v.opts.CacheTimeout)
	defer cancel()
	identity, hit, err := v.cache.Get(cacheCtx, claims.Session)
	if err != nil {
		observability.RecordSessionCacheOperation(ctx, "get", "error")
		v.logger.WarnContext(ctx, "session cache lookup failed, falling back to store", "error", err)
		return SessionIdentity{}, false
	}
	if !hit {
		observability.RecordSessionCacheOperation(ctx, "get", "miss")
		return SessionIdentity{}, false
	}
	if identity.UserID != claims.UserID {
		observability.RecordSessionCacheOperation(ctx, "get", "mismatch")
		return SessionIdentity{}, false
	}
	observability.RecordSessionCacheOperation(ctx, "get", "hit")
	return identity, true
}

// fromStore resolves a session token against the store. Callers coalesce on the token, so the
// lookup runs detached from any single caller's cancellation but bounded by the store timeout.
func (v *TokenVerifier) fromStore(ctx context.Context, token string) (SessionIdentity, error) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.opts.StoreTimeout)
	defer cancel()

	session, err := v.sessions.FindByToken(storeCtx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return SessionIdentity{}, ErrTokenInvalid
		}
		v.logger.ErrorContext(ctx, "session lookup failed", "error", err)
		return SessionIdentity{}, ErrDependencyUnavailable
	}
	if session.IsRevoked {
		v.manager.mark(storeCtx, token)
		return SessionIdentity{}, ErrTokenInvalid
	}
	user, err := v.users.FindByID(storeCtx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return SessionIdentity{}, ErrTokenInvalid
		}
		v.logger.ErrorContext(ctx, "session owner lookup failed", "error", err)
		return SessionIdentity{}, ErrDependencyUnavailable
	}
	identity := identityOf(user)
	v.manager.Repair(storeCtx, token, identity)
	return identity, nil
}
