package service

import (
	"context"
	"time"

	"github.com/socialbot/follower-tracker/internal/repository"
)

type SessionView struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	IsRevoked     bool       `json:"is_revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason *string    `json:"revoked_reason,omitempty"`
	IsCurrent     bool       `json:"is_current"`
}

type SessionService struct {
	sessions     repository.SessionRepository
	manager      *SessionManager
	storeTimeout time.Duration
}

func NewSessionService(sessions repository.SessionRepository, manager *SessionManager, storeTimeout time.Duration) *SessionService {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &SessionService{sessions: sessions, manager: manager, storeTimeout: storeTimeout}
}

// ListSessions returns the user's sessions, newest first. includeRevoked adds revoked ones.
func (s *SessionService) ListSessions(ctx context.Context, userID, currentSessionToken string, includeRevoked bool) ([]SessionView, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	list := s.sessions.ListActiveByUser
	if includeRevoked {
		list = s.sessions.ListByUser
	}
	sessions, err := list(storeCtx, userID)
	if err != nil {
		return nil, s.manager.storeError(ctx, "list_sessions", err)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:            session.ID,
			CreatedAt:     session.CreatedAt,
			IsRevoked:     session.IsRevoked,
			RevokedAt:     session.RevokedAt,
			RevokedReason: session.RevokedReason,
			IsCurrent:     session.SessionToken == currentSessionToken,
		})
	}
	return views, nil
}

// RevokeSession revokes one of userID's own sessions. Sessions of other users are reported as
// ErrUnauthorized and left untouched.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) (string, error) {
	return s.manager.Revoke(ctx, sessionID, userID, "user_session_revoked")
}

// RevokeOtherSessions revokes every session of userID except the one behind currentSessionToken.
func (s *SessionService) RevokeOtherSessions(ctx context.Context, userID, currentSessionToken string) (int, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	current, err := s.sessions.FindByToken(storeCtx, currentSessionToken)
	cancel()
	if err != nil {
		return 0, s.manager.storeError(ctx, "find_by_token", err)
	}
	if current.UserID != userID {
		return 0, ErrUnauthorized
	}
	return s.manager.RevokeAllForUser(ctx, userID, current.ID, "user_revoke_others")
}

func (s *SessionService) AdminRevokeSession(ctx context.Context, sessionID string) (string, error) {
	return s.manager.RevokeByID(ctx, sessionID, "admin_revoked")
}

func (s *SessionService) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	return s.manager.RevokeAllForUser(ctx, userID, "", reason)
}

// SweepRevoked drops cache entries of sessions revoked within window.
func (s *SessionService) SweepRevoked(ctx context.Context, window time.Duration) (int, error) {
	return s.manager.InvalidateRevokedSince(ctx, time.Now().Add(-window))
}
