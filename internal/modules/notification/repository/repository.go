package repository

import (
	"context"
	"errors"
	"time"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/internal/modules/notification/query"
	"anoa.com/noticeboard/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	CreateBulk(ctx context.Context, notifications []entity.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error)
	FindByRecipient(ctx context.Context, recipientID uuid.UUID, predicate query.RemotePredicate, limit int) ([]entity.Notification, error)
	FindAllByRecipient(ctx context.Context, recipientID uuid.UUID) ([]entity.Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)
	// MarkRead leaves an already-read row untouched.
	MarkRead(ctx context.Context, recipientID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)
	Delete(ctx context.Context, recipientID, id uuid.UUID) error
	DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error)
	DeleteRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
	// DeleteExpired removes every row past its expiry and returns the
	// recipients that lost at least one row.
	DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) CreateBulk(ctx context.Context, notifications []entity.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&notifications).Error
	})
}

func (r *notificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	var notification entity.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) FindByRecipient(ctx context.Context, recipientID uuid.UUID, predicate query.RemotePredicate, limit int) ([]entity.Notification, error) {
	q := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if predicate.Type != nil {
		q = q.Where("type = ?", *predicate.Type)
	}
	if predicate.IsRead != nil {
		q = q.Where("is_read = ?", *predicate.IsRead)
	}
	if predicate.Priority != nil {
		q = q.Where("priority = ?", *predicate.Priority)
	}
	q = q.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	notifications := []entity.Notification{}
	err := q.Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) FindAllByRecipient(ctx context.Context, recipientID uuid.UUID) ([]entity.Notification, error) {
	notifications := []entity.Notification{}
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at desc").
		Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var notification entity.Notification
		err := tx.Select("id", "is_read").
			Where("id = ? AND recipient_id = ?", id, recipientID).
			First(&notification).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrNotFound
		}
		if err != nil {
			return err
		}
		if notification.IsRead {
			return nil
		}
		return tx.Model(&entity.Notification{}).
			Where("id = ? AND is_read = ?", id, false).
			Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error
	})
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&entity.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Delete(&entity.Notification{})
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) DeleteRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recipient_id = ? AND is_read = ?", recipientID, true).
		Delete(&entity.Notification{})
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, int64, error) {
	var deleted []entity.Notification
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "recipient_id"}}}).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&deleted).Error
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[uuid.UUID]struct{}, len(deleted))
	recipients := make([]uuid.UUID, 0, len(deleted))
	for _, n := range deleted {
		if _, ok := seen[n.RecipientID]; ok {
			continue
		}
		seen[n.RecipientID] = struct{}{}
		recipients = append(recipients, n.RecipientID)
	}
	return recipients, int64(len(deleted)), nil
}
