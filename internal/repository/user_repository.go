package repository

import (
	"context"
	"errors"

	"github.com/socialbot/follower-tracker/internal/domain"
	"github.com/socialbot/follower-tracker/internal/observability"

	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	SetActive(ctx context.Context, id string, active bool) error
	ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.User], error)
	Search(ctx context.Context, req SearchRequest) (PageResult[domain.User], error)
	Delete(ctx context.Context, id string) ([]domain.Session, error)
}

type GormUserRepository struct {
	GormStore[domain.User]
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{GormStore: newGormStore[domain.User](db, "user", ErrUserNotFound), db: db}
}

// userSearchColumns is the allow-list of searchable and sortable user fields.
var userSearchColumns = map[string]string{
	"id":         "id",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"chat_id":    "chat_id",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (r *GormUserRepository) Search(ctx context.Context, req SearchRequest) (PageResult[domain.User], error) {
	return r.search(ctx, req, userSearchColumns)
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findBy(ctx, "find_by_username", "username = ?", username)
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findBy(ctx, "find_by_email", "email = ?", email)
}

func (r *GormUserRepository) findBy(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	r.record(ctx, op, err)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("is_active", active)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	r.record(ctx, "set_active", err)
	return err
}

func (r *GormUserRepository) ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.User], error) {
	return r.list(ctx, "list_paged", req, func(db *gorm.DB) *gorm.DB { return db })
}

// Delete removes the user together with its sessions, tracks and follower history. The removed
// sessions are returned so their cache entries can be dropped.
func (r *GormUserRepository) Delete(ctx context.Context, id string) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&domain.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		if err := tx.Where("user_id = ?", id).Find(&sessions).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.Session{}).Error; err != nil {
			return err
		}
		trackIDs := tx.Model(&domain.Track{}).Select("id").Where("user_id = ?", id)
		if err := tx.Where("track_id IN (?)", trackIDs).Delete(&domain.FollowerHistory{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", id).Delete(&domain.Track{}).Error
	})
	r.record(ctx, "delete", err)
	if err != nil {
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_by_user", "success")
	return sessions, nil
}
