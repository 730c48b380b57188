package repository

import (
	"context"
	"errors"
	"time"

	"github.com/socialbot/follower-tracker/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TrackRepository interface {
	Create(ctx context.Context, track *domain.Track) error
	FindByID(ctx context.Context, id string) (*domain.Track, error)
	FindByIDForUser(ctx context.Context, userID, id string) (*domain.Track, error)
	FindByProfileForUser(ctx context.Context, userID, profileUsername string) (*domain.Track, error)
	Update(ctx context.Context, track *domain.Track) error
	ListByUser(ctx context.Context, userID string, req PageRequest) (PageResult[domain.Track], error)
	ListAllByUser(ctx context.Context, userID string) ([]domain.Track, error)
	ListAlertEnabled(ctx context.Context) ([]domain.Track, error)
	DeleteForUser(ctx context.Context, userID, id string) error
	RecordFollowerCount(ctx context.Context, trackID string, count int) (*domain.Track, bool, error)
	HistorySince(ctx context.Context, trackIDs []string, since time.Time) ([]domain.FollowerHistory, error)
}

type GormTrackRepository struct {
	GormStore[domain.Track]
	db *gorm.DB
}

func NewTrackRepository(db *gorm.DB) TrackRepository {
	return &GormTrackRepository{GormStore: newGormStore[domain.Track](db, "track", ErrTrackNotFound), db: db}
}

func (r *GormTrackRepository) FindByIDForUser(ctx context.Context, userID, id string) (*domain.Track, error) {
	return r.findBy(ctx, "find_by_id_for_user", r.db.Where("user_id = ? AND id = ?", userID, id))
}

func (r *GormTrackRepository) FindByProfileForUser(ctx context.Context, userID, profileUsername string) (*domain.Track, error) {
	return r.findBy(ctx, "find_by_profile_for_user", r.db.Where("user_id = ? AND profile_username = ?", userID, profileUsername))
}

func (r *GormTrackRepository) findBy(ctx context.Context, op string, q *gorm.DB) (*domain.Track, error) {
	var t domain.Track
	err := q.WithContext(ctx).Order("created_at").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrTrackNotFound
	}
	r.record(ctx, op, err)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormTrackRepository) ListByUser(ctx context.Context, userID string, req PageRequest) (PageResult[domain.Track], error) {
	return r.list(ctx, "list_by_user", req, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	})
}

func (r *GormTrackRepository) ListAllByUser(ctx context.Context, userID string) ([]domain.Track, error) {
	var tracks []domain.Track
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&tracks).Error
	r.record(ctx, "list_all_by_user", err)
	return tracks, err
}

func (r *GormTrackRepository) ListAlertEnabled(ctx context.Context) ([]domain.Track, error) {
	var tracks []domain.Track
	err := r.db.WithContext(ctx).Where("alert_enabled = ?", true).Order("created_at").Find(&tracks).Error
	r.record(ctx, "list_alert_enabled", err)
	return tracks, err
}

func (r *GormTrackRepository) DeleteForUser(ctx context.Context, userID, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND id = ?", userID, id).Delete(&domain.Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTrackNotFound
		}
		return tx.Where("track_id = ?", id).Delete(&domain.FollowerHistory{}).Error
	})
	r.record(ctx, "delete_for_user", err)
	return err
}

// RecordFollowerCount stores count as the track's latest value. When it differs from the
// previous value a history row is appended in the same transaction and changed is true.
func (r *GormTrackRepository) RecordFollowerCount(ctx context.Context, trackID string, count int) (*domain.Track, bool, error) {
	var (
		track   domain.Track
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", trackID).First(&track).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTrackNotFound
			}
			return err
		}
		if track.LastFollowerCount == count {
			return nil
		}
		if err := tx.Create(&domain.FollowerHistory{TrackID: trackID, FollowerCount: count}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Track{}).Where("id = ?", trackID).Update("last_follower_count", count).Error; err != nil {
			return err
		}
		track.LastFollowerCount = count
		changed = true
		return nil
	})
	r.record(ctx, "record_follower_count", err)
	if err != nil {
		return nil, false, err
	}
	return &track, changed, nil
}

// HistorySince returns history rows of the given tracks created at or after since, oldest first.
func (r *GormTrackRepository) HistorySince(ctx context.Context, trackIDs []string, since time.Time) ([]domain.FollowerHistory, error) {
	var history []domain.FollowerHistory
	if len(trackIDs) == 0 {
		return history, nil
	}
	err := r.db.WithContext(ctx).
		Where("track_id IN ? AND created_at >= ?", trackIDs, since.UTC()).
		Order("created_at ASC").
		Order("id").
		Find(&history).Error
	r.record(ctx, "history_since", err)
	return history, err
}
