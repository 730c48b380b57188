package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/repository"
	"github.com/socialbot/follower-tracker/internal/security"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type AuthOptions struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
}

type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	manager  *SessionManager
	verifier *TokenVerifier
	jwt      *security.JWTManager
	opts     AuthOptions
	logger   *slog.Logger
	// dummyHash keeps the unknown-user path as slow as a wrong password.
	dummyHash string
}

func NewAuthService(users repository.UserRepository, sessions repository.SessionRepository, manager *SessionManager, verifier *TokenVerifier, jwt *security.JWTManager, opts AuthOptions, bcryptCost int, logger *slog.Logger) (*AuthService, error) {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	dummy, err := security.HashPassword("not-a-real-password", bcryptCost)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		manager:   manager,
		verifier:  verifier,
		jwt:       jwt,
		opts:      opts,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrInactiveAccount):
		return "inactive"
	case errors.Is(err, ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, ErrDependencyUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// Login checks credentials and opens a new session. Unknown users and wrong passwords are
// indistinguishable to the caller, and neither creates a session.
func (s *AuthService) Login(ctx context.Context, login, password string) (pair *TokenPair, err error) {
	ctx, span := observability.Tracer("auth").Start(ctx, "auth.login")
	defer func() {
		observability.RecordAuthLogin(statusOf(err))
		endSpan(span, err)
	}()

	user, err := s.lookupUser(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			security.VerifyPassword(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		s.logger.ErrorContext(ctx, "user lookup failed", "error", err)
		return nil, ErrDependencyUnavailable
	}
	if !security.VerifyPassword(user.PasswordHash, password) {
		s.logger.InfoContext(ctx, "login rejected", "user_id", user.ID, "reason", "bad_password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logger.InfoContext(ctx, "login rejected", "user_id", user.ID, "reason", "inactive")
		return nil, ErrInactiveAccount
	}

	session, err := s.manager.CreateSession(ctx, user)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))
	pair, err = s.mint(session.SessionToken, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID, "session_id", session.ID)
	return pair, nil
}

func (s *AuthService) lookupUser(ctx context.Context, login string) (*domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if strings.Contains(login, "@") {
		return s.users.FindByEmail(storeCtx, login)
	}
	return s.users.FindByUsername(storeCtx, login)
}

// Refresh mints a new pair bound to the same session as refreshToken. No session row is
// created and the session id never changes.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	ctx, span := observability.Tracer("auth").Start(ctx, "auth.refresh")
	defer func() {
		observability.RecordAuthRefresh(statusOf(err))
		endSpan(span, err)
	}()

	verified, err := s.verifier.Verify(ctx, refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if verified.Source == "cache" {
		// Refresh is rare enough to confirm against the store; this also repairs stale entries.
		if err := s.confirmSession(ctx, verified); err != nil {
			return nil, err
		}
	}
	return s.mint(verified.SessionToken(), verified.Identity.UserID, verified.Identity.Email)
}

func (s *AuthService) confirmSession(ctx context.Context, verified *VerifiedToken) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	session, err := s.sessions.FindByToken(storeCtx, verified.SessionToken())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrTokenInvalid
		}
		s.logger.ErrorContext(ctx, "session lookup failed", "error", err)
		return ErrDependencyUnavailable
	}
	if session.IsRevoked {
		s.manager.invalidate(ctx, session.SessionToken)
		return ErrTokenInvalid
	}
	return nil
}

// Logout revokes the session behind accessToken. A session already revoked by a concurrent
// caller is reported as "already_revoked".
func (s *AuthService) Logout(ctx context.Context, accessToken string) (status string, err error) {
	ctx, span := observability.Tracer("auth").Start(ctx, "auth.logout")
	defer func() {
		observability.RecordAuthLogout(statusOf(err))
		endSpan(span, err)
	}()

	verified, err := s.verifier.Verify(ctx, accessToken, security.TokenTypeAccess)
	if err != nil {
		return "", err
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	session, err := s.sessions.FindByToken(storeCtx, verified.SessionToken())
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", ErrTokenInvalid
		}
		s.logger.ErrorContext(ctx, "session lookup failed", "error", err)
		return "", ErrDependencyUnavailable
	}
	status, err = s.manager.Revoke(ctx, session.ID, verified.Identity.UserID, "user_logout")
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "logout", "user_id", verified.Identity.UserID, "session_id", session.ID, "status", status)
	return status, nil
}

// Validate verifies an access token for a protected request.
func (s *AuthService) Validate(ctx context.Context, accessToken string) (*VerifiedToken, error) {
	return s.verifier.Verify(ctx, accessToken, security.TokenTypeAccess)
}

func (s *AuthService) mint(sessionToken, userID, email string) (*TokenPair, error) {
	access, accessClaims, err := s.jwt.SignAccessToken(sessionToken, userID, email, s.opts.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := s.jwt.SignRefreshToken(sessionToken, userID, email, s.opts.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}
