package repository

import (
	"context"
	"errors"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/observability"
	"github.com/socialbot/follower-tracker/internal/security"

	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, userID string) (*domain.Session, error)
	FindByToken(ctx context.Context, token string) (*domain.Session, error)
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Session, error)
	Revoke(ctx context.Context, sessionID, requestingUserID, reason string) (bool, error)
	RevokeByID(ctx context.Context, sessionID, reason string) (bool, error)
	RevokeAllByUser(ctx context.Context, userID, exceptSessionID, reason string) ([]domain.Session, error)
	ListRevokedSince(ctx context.Context, since time.Time) ([]domain.Session, error)
}

type GormSessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &GormSessionRepository{db: db, now: time.Now}
}

func recordSessionOperation(ctx context.Context, op string, err error) {
	switch {
	case err == nil:
		observability.RecordRepositoryOperation(ctx, "session", op, "success")
	case errors.Is(err, ErrSessionNotFound):
		observability.RecordRepositoryOperation(ctx, "session", op, "not_found")
	case errors.Is(err, ErrSessionNotOwned):
		observability.RecordRepositoryOperation(ctx, "session", op, "not_owned")
	default:
		observability.RecordRepositoryOperation(ctx, "session", op, "error")
	}
}

func (r *GormSessionRepository) Create(ctx context.Context, userID string) (*domain.Session, error) {
	token, err := security.NewSessionToken(userID)
	if err != nil {
		recordSessionOperation(ctx, "create", err)
		return nil, err
	}
	s := &domain.Session{SessionToken: token, UserID: userID}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		recordSessionOperation(ctx, "create", err)
		return nil, err
	}
	recordSessionOperation(ctx, "create", nil)
	return s, nil
}

func (r *GormSessionRepository) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	s, err := r.first(ctx, "session_token = ?", token)
	recordSessionOperation(ctx, "find_by_token", err)
	return s, err
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := r.first(ctx, "id = ?", id)
	recordSessionOperation(ctx, "find_by_id", err)
	return s, err
}

func (r *GormSessionRepository) first(ctx context.Context, query string, arg any) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where(query, arg).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	recordSessionOperation(ctx, "list_by_user", err)
	return sessions, err
}

func (r *GormSessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Where("user_id = ? AND is_revoked = ?", userID, false).
		Order("created_at DESC").
		Find(&sessions).Error
	recordSessionOperation(ctx, "list_active_by_user", err)
	return sessions, err
}

// Revoke flips the session to revoked when requestingUserID owns it. changed is false when the
// session was already revoked, including by a concurrent caller.
func (r *GormSessionRepository) Revoke(ctx context.Context, sessionID, requestingUserID, reason string) (bool, error) {
	s, err := r.first(ctx, "id = ?", sessionID)
	if err != nil {
		recordSessionOperation(ctx, "revoke", err)
		return false, err
	}
	if s.UserID != requestingUserID {
		recordSessionOperation(ctx, "revoke", ErrSessionNotOwned)
		return false, ErrSessionNotOwned
	}
	changed, err := r.compareAndRevoke(ctx, r.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, requestingUserID), reason)
	recordSessionOperation(ctx, "revoke", err)
	return changed, err
}

func (r *GormSessionRepository) RevokeByID(ctx context.Context, sessionID, reason string) (bool, error) {
	if _, err := r.first(ctx, "id = ?", sessionID); err != nil {
		recordSessionOperation(ctx, "revoke_by_id", err)
		return false, err
	}
	changed, err := r.compareAndRevoke(ctx, r.db.WithContext(ctx).Where("id = ?", sessionID), reason)
	recordSessionOperation(ctx, "revoke_by_id", err)
	return changed, err
}

func (r *GormSessionRepository) compareAndRevoke(ctx context.Context, scoped *gorm.DB, reason string) (bool, error) {
	now := r.now().UTC()
	res := scoped.Model(&domain.Session{}).
		Where("is_revoked = ?", false).
		Updates(map[string]any{"is_revoked": true, "revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RevokeAllByUser revokes every active session of userID except exceptSessionID (may be empty)
// and returns the sessions it selected for revocation.
func (r *GormSessionRepository) RevokeAllByUser(ctx context.Context, userID, exceptSessionID, reason string) ([]domain.Session, error) {
	var revoked []domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("user_id = ? AND is_revoked = ?", userID, false)
		if exceptSessionID != "" {
			q = q.Where("id <> ?", exceptSessionID)
		}
		if err := q.Find(&revoked).Error; err != nil {
			return err
		}
		if len(revoked) == 0 {
			return nil
		}
		ids := make([]string, 0, len(revoked))
		for _, s := range revoked {
			ids = append(ids, s.ID)
		}
		now := r.now().UTC()
		if err := tx.Model(&domain.Session{}).
			Where("id IN ? AND is_revoked = ?", ids, false).
			Updates(map[string]any{"is_revoked": true, "revoked_at": now, "revoked_reason": reason}).Error; err != nil {
			return err
		}
		for i := range revoked {
			revoked[i].IsRevoked = true
			revoked[i].RevokedAt = &now
			revoked[i].RevokedReason = &reason
		}
		return nil
	})
	recordSessionOperation(ctx, "revoke_all_by_user", err)
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

func (r *GormSessionRepository) ListRevokedSince(ctx context.Context, since time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("is_revoked = ? AND revoked_at >= ?", true, since.UTC()).
		Order("revoked_at").
		Find(&sessions).Error
	recordSessionOperation(ctx, "list_revoked_since", err)
	return sessions, err
}
