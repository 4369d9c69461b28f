package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/internal/modules/notification/query"
	notifRepo "anoa.com/noticeboard/internal/modules/notification/repository"
	"anoa.com/noticeboard/pkg/apperror"
	"anoa.com/noticeboard/pkg/sanitize"
	"github.com/google/uuid"
)

// DefaultFeedLimit caps the records of one live snapshot.
const DefaultFeedLimit = 50

// Unsubscribe releases a live query. Calling it more than once is safe.
type Unsubscribe func()

type NotificationService interface {
	Create(ctx context.Context, notification *entity.Notification) (uuid.UUID, error)
	CreateBulk(ctx context.Context, notifications []entity.Notification) error

	// Subscribe delivers the first snapshot before returning, then a full
	// snapshot after every change to the recipient's records. Callbacks
	// must not call the returned Unsubscribe.
	Subscribe(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter, onSnapshot func([]entity.Notification), onError func(error)) (Unsubscribe, error)
	SubscribeUnreadCount(ctx context.Context, recipientID uuid.UUID, onCount func(int64), onError func(error)) (Unsubscribe, error)

	List(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter) ([]entity.Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)

	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
	Delete(ctx context.Context, recipientID, id uuid.UUID) error
	DeleteAll(ctx context.Context, recipientID uuid.UUID) error
	DeleteRead(ctx context.Context, recipientID uuid.UUID) error

	Stats(ctx context.Context, recipientID uuid.UUID) (*entity.NotificationStats, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type notificationService struct {
	repo      notifRepo.NotificationRepository
	feed      ChangeFeed
	feedLimit int
	now       func() time.Time
}

func NewNotificationService(repo notifRepo.NotificationRepository, feed ChangeFeed, feedLimit int) NotificationService {
	if feedLimit <= 0 {
		feedLimit = DefaultFeedLimit
	}
	return &notificationService{
		repo:      repo,
		feed:      feed,
		feedLimit: feedLimit,
		now:       time.Now,
	}
}

func (s *notificationService) Create(ctx context.Context, notification *entity.Notification) (uuid.UUID, error) {
	if err := s.prepare(notification); err != nil {
		return uuid.Nil, apperror.Remote("create notification", err)
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return uuid.Nil, apperror.Remote("create notification", err)
	}

	s.publish(ctx, notification.RecipientID, "create")
	return notification.ID, nil
}

func (s *notificationService) CreateBulk(ctx context.Context, notifications []entity.Notification) error {
	for i := range notifications {
		if err := s.prepare(&notifications[i]); err != nil {
			return apperror.Remote("create notifications", fmt.Errorf("item %d: %w", i, err))
		}
	}
	if err := s.repo.CreateBulk(ctx, notifications); err != nil {
		return apperror.Remote("create notifications", err)
	}

	published := make(map[uuid.UUID]struct{}, len(notifications))
	for _, n := range notifications {
		if _, ok := published[n.RecipientID]; ok {
			continue
		}
		published[n.RecipientID] = struct{}{}
		s.publish(ctx, n.RecipientID, "create")
	}
	return nil
}

// prepare enforces the creation defaults the store would assign.
func (s *notificationService) prepare(n *entity.Notification) error {
	if n.RecipientID == uuid.Nil {
		return fmt.Errorf("%w: recipient is required", apperror.ErrInvalidInput)
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: unknown notification type %q", apperror.ErrInvalidInput, n.Type)
	}
	if n.Priority == "" {
		n.Priority = entity.PriorityNormal
	}
	if !n.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", apperror.ErrInvalidInput, n.Priority)
	}
	n.Title = sanitize.Text(n.Title)
	n.Message = sanitize.Text(n.Message)
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", apperror.ErrInvalidInput)
	}

	n.ID = uuid.Nil
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = s.now()
	return nil
}

func (s *notificationService) Subscribe(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter, onSnapshot func([]entity.Notification), onError func(error)) (Unsubscribe, error) {
	predicate := query.Remote(filter)
	return s.watch(ctx, recipientID, func(ctx context.Context, sub *subscription) error {
		records, err := s.repo.FindByRecipient(ctx, recipientID, predicate, s.feedLimit)
		if err != nil {
			return err
		}
		sub.deliver(func() { onSnapshot(records) })
		return nil
	}, onError)
}

func (s *notificationService) SubscribeUnreadCount(ctx context.Context, recipientID uuid.UUID, onCount func(int64), onError func(error)) (Unsubscribe, error) {
	return s.watch(ctx, recipientID, func(ctx context.Context, sub *subscription) error {
		count, err := s.repo.CountUnread(ctx, recipientID)
		if err != nil {
			return err
		}
		sub.deliver(func() { onCount(count) })
		return nil
	}, onError)
}

func (s *notificationService) List(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter) ([]entity.Notification, error) {
	records, err := s.repo.FindByRecipient(ctx, recipientID, query.Remote(filter), s.feedLimit)
	if err != nil {
		return nil, apperror.Remote("list notifications", err)
	}
	return records, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, apperror.Remote("count unread notifications", err)
	}
	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, recipientID, id, s.now()); err != nil {
		return apperror.Remote("mark notification read", err)
	}
	s.publish(ctx, recipientID, "read")
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	affected, err := s.repo.MarkAllRead(ctx, recipientID, s.now())
	if err != nil {
		return apperror.Remote("mark all notifications read", err)
	}
	if affected > 0 {
		s.publish(ctx, recipientID, "read_all")
	}
	return nil
}

func (s *notificationService) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, recipientID, id); err != nil {
		return apperror.Remote("delete notification", err)
	}
	s.publish(ctx, recipientID, "delete")
	return nil
}

func (s *notificationService) DeleteAll(ctx context.Context, recipientID uuid.UUID) error {
	affected, err := s.repo.DeleteAll(ctx, recipientID)
	if err != nil {
		return apperror.Remote("delete all notifications", err)
	}
	if affected > 0 {
		s.publish(ctx, recipientID, "delete_all")
	}
	return nil
}

func (s *notificationService) DeleteRead(ctx context.Context, recipientID uuid.UUID) error {
	affected, err := s.repo.DeleteRead(ctx, recipientID)
	if err != nil {
		return apperror.Remote("delete read notifications", err)
	}
	if affected > 0 {
		s.publish(ctx, recipientID, "delete_read")
	}
	return nil
}

func (s *notificationService) Stats(ctx context.Context, recipientID uuid.UUID) (*entity.NotificationStats, error) {
	records, err := s.repo.FindAllByRecipient(ctx, recipientID)
	if err != nil {
		return nil, apperror.Remote("notification stats", err)
	}
	return query.BuildStats(records), nil
}

func (s *notificationService) SweepExpired(ctx context.Context) (int64, error) {
	recipients, deleted, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, apperror.Remote("sweep expired notifications", err)
	}
	for _, recipientID := range recipients {
		s.publish(ctx, recipientID, "expire")
	}
	return deleted, nil
}

// publish failures are logged and never fail the write.
func (s *notificationService) publish(ctx context.Context, recipientID uuid.UUID, op string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, recipientID, op); err != nil {
		log.Printf("[notification] failed to publish %s for %s: %v", op, recipientID, err)
	}
}
