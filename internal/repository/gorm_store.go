package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/socialbot/follower-tracker/internal/observability"

	"gorm.io/gorm"
)

// GormStore is the shared CRUD base for entities keyed by a string id. Repositories embed it
// and add their own queries.
type GormStore[T any] struct {
	db       *gorm.DB
	entity   string
	notFound error
}

func newGormStore[T any](db *gorm.DB, entity string, notFound error) GormStore[T] {
	return GormStore[T]{db: db, entity: entity, notFound: notFound}
}

func (s GormStore[T]) record(ctx context.Context, op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, s.notFound):
		outcome = "not_found"
	case errors.Is(err, ErrDuplicate):
		outcome = "duplicate"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, s.entity, op, outcome)
}

func (s GormStore[T]) Create(ctx context.Context, item *T) error {
	err := translateWriteError(s.db.WithContext(ctx).Create(item).Error)
	s.record(ctx, "create", err)
	return err
}

func (s GormStore[T]) FindByID(ctx context.Context, id string) (*T, error) {
	var item T
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.notFound
	}
	s.record(ctx, "find_by_id", err)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s GormStore[T]) Update(ctx context.Context, item *T) error {
	err := translateWriteError(s.db.WithContext(ctx).Save(item).Error)
	s.record(ctx, "update", err)
	return err
}

func (s GormStore[T]) list(ctx context.Context, op string, req PageRequest, scope func(*gorm.DB) *gorm.DB) (PageResult[T], error) {
	return s.listOrdered(ctx, op, req, "", scope)
}

// listOrdered pages through scope. A non-empty order sorts ahead of the default newest-first
// order, which keeps pages stable when the sort column has ties.
func (s GormStore[T]) listOrdered(ctx context.Context, op string, req PageRequest, order string, scope func(*gorm.DB) *gorm.DB) (PageResult[T], error) {
	req = normalizePageRequest(req)
	result := PageResult[T]{Page: req.Page, PageSize: req.PageSize}

	var zero T
	base := scope(s.db.WithContext(ctx).Model(&zero))
	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		s.record(ctx, op, err)
		return PageResult[T]{}, err
	}
	offset := (req.Page - 1) * req.PageSize
	page := base
	if order != "" {
		page = page.Order(order)
	}
	if err := page.Order("created_at DESC").Order("id").Offset(offset).Limit(req.PageSize).Find(&result.Items).Error; err != nil {
		s.record(ctx, op, err)
		return PageResult[T]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	s.record(ctx, op, nil)
	return result, nil
}

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return ErrDuplicate
	}
	return err
}
