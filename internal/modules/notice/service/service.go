package notice

import (
	"context"
	"errors"
	"log"
	"time"

	"anoa.com/noticeboard/internal/entity"
	noticeRepo "anoa.com/noticeboard/internal/modules/notice/repository"
	"anoa.com/noticeboard/pkg/apperror"
	"github.com/google/uuid"
)

type NoticeService interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Notice, error)
	IncrementView(ctx context.Context, noticeID, viewerID uuid.UUID) error
	Like(ctx context.Context, noticeID uuid.UUID) error
	SyncViews(ctx context.Context) (int, error)
	StartViewSyncWorker(ctx context.Context, interval time.Duration)
}

type noticeService struct {
	repo   noticeRepo.Repository
	buffer ViewBuffer
}

// NewNoticeService builds the counter service. With a nil buffer every
// view goes straight to the store.
func NewNoticeService(repo noticeRepo.Repository, buffer ViewBuffer) NoticeService {
	return &noticeService{repo: repo, buffer: buffer}
}

func (s *noticeService) Get(ctx context.Context, id uuid.UUID) (*entity.Notice, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *noticeService) IncrementView(ctx context.Context, noticeID, viewerID uuid.UUID) error {
	if s.buffer == nil {
		return s.repo.AddViews(ctx, noticeID, 1)
	}
	if _, err := s.repo.FindByID(ctx, noticeID); err != nil {
		return err
	}
	_, err := s.buffer.Add(ctx, noticeID, viewerID)
	return err
}

func (s *noticeService) Like(ctx context.Context, noticeID uuid.UUID) error {
	return s.repo.IncrementLikes(ctx, noticeID)
}

// SyncViews flushes buffered views into the store and returns the number
// of notices updated.
func (s *noticeService) SyncViews(ctx context.Context) (int, error) {
	if s.buffer == nil {
		return 0, nil
	}

	ids, err := s.buffer.Pending(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, id := range ids {
		n, err := s.buffer.Take(ctx, id)
		if err != nil {
			log.Printf("[notice] failed to take views for %s: %v", id, err)
			continue
		}
		if n <= 0 {
			continue
		}
		if err := s.repo.AddViews(ctx, id, n); err != nil {
			log.Printf("[notice] failed to add views for %s: %v", id, err)
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			if restoreErr := s.buffer.Restore(ctx, id, n); restoreErr != nil {
				log.Printf("[notice] lost %d views for %s: %v", n, id, restoreErr)
			}
			continue
		}
		synced++
	}

	if synced > 0 {
		log.Printf("[notice] synced views for %d notices", synced)
	}
	return synced, nil
}

func (s *noticeService) StartViewSyncWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SyncViews(ctx); err != nil {
				log.Printf("[notice] view sync failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
