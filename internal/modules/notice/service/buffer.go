package notice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	pendingViewsKey = "pending:notice_views"
	viewerWindow    = time.Hour
)

// ViewBuffer accumulates view increments between flushes.
type ViewBuffer interface {
	// Add records one view by viewerID. A viewer is counted at most once
	// per window; Add reports whether the view was counted.
	Add(ctx context.Context, noticeID, viewerID uuid.UUID) (bool, error)
	Pending(ctx context.Context) ([]uuid.UUID, error)
	// Take removes and returns the buffered count for noticeID.
	Take(ctx context.Context, noticeID uuid.UUID) (int64, error)
	// Restore puts n views back after a failed flush.
	Restore(ctx context.Context, noticeID uuid.UUID, n int64) error
}

type redisBuffer struct {
	client *redis.Client
}

func NewRedisBuffer(client *redis.Client) ViewBuffer {
	return &redisBuffer{client: client}
}

func viewsKey(noticeID uuid.UUID) string {
	return fmt.Sprintf("notice:views:%s", noticeID)
}

func (b *redisBuffer) Add(ctx context.Context, noticeID, viewerID uuid.UUID) (bool, error) {
	viewerKey := fmt.Sprintf("notice:viewer:%s:%s", noticeID, viewerID)
	first, err := b.client.SetNX(ctx, viewerKey, "viewed", viewerWindow).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check viewer: %w", err)
	}
	if !first {
		return false, nil
	}

	pipe := b.client.TxPipeline()
	pipe.Incr(ctx, viewsKey(noticeID))
	pipe.SAdd(ctx, pendingViewsKey, noticeID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to buffer view: %w", err)
	}
	return true, nil
}

func (b *redisBuffer) Pending(ctx context.Context) ([]uuid.UUID, error) {
	members, err := b.client.SMembers(ctx, pendingViewsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending views: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			b.client.SRem(ctx, pendingViewsKey, member)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *redisBuffer) Take(ctx context.Context, noticeID uuid.UUID) (int64, error) {
	if err := b.client.SRem(ctx, pendingViewsKey, noticeID.String()).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear pending view: %w", err)
	}
	n, err := b.client.GetDel(ctx, viewsKey(noticeID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to take view count: %w", err)
	}
	return n, nil
}

func (b *redisBuffer) Restore(ctx context.Context, noticeID uuid.UUID, n int64) error {
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, viewsKey(noticeID), n)
	pipe.SAdd(ctx, pendingViewsKey, noticeID.String())
	_, err := pipe.Exec(ctx)
	return err
}
