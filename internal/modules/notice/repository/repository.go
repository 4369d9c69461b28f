package notice

import (
	"context"
	"errors"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository maintains notice counters. Counters only ever move by
// relative increments so concurrent writers never overwrite each other.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Notice, error)
	AddViews(ctx context.Context, id uuid.UUID, n int64) error
	IncrementLikes(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Notice, error) {
	var notice entity.Notice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&notice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return &notice, nil
}

func (r *repository) AddViews(ctx context.Context, id uuid.UUID, n int64) error {
	return r.increment(ctx, id, "views", n)
}

func (r *repository) IncrementLikes(ctx context.Context, id uuid.UUID) error {
	return r.increment(ctx, id, "likes", 1)
}

func (r *repository) increment(ctx context.Context, id uuid.UUID, column string, n int64) error {
	result := r.db.WithContext(ctx).
		Model(&entity.Notice{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", n))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}
