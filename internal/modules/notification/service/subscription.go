package service

import (
	"context"
	"sync"

	"anoa.com/noticeboard/pkg/apperror"
	"github.com/google/uuid"
)

type subscription struct {
	mu     sync.Mutex
	closed bool
	once   sync.Once
	cancel context.CancelFunc
	stop   func()
}

// deliver runs fn unless the subscription has been disposed. Holding mu
// across fn makes close wait for an in-flight callback, so nothing is
// delivered once close has returned.
func (s *subscription) deliver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

func (s *subscription) close() {
	s.once.Do(func() {
		s.cancel()
		s.stop()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
}

// watch opens a change watch for recipientID and calls refresh once
// synchronously and again after every signal. refresh errors after the
// first delivery go to onError; the subscription stays open.
func (s *notificationService) watch(ctx context.Context, recipientID uuid.UUID, refresh func(context.Context, *subscription) error, onError func(error)) (Unsubscribe, error) {
	if s.feed == nil {
		return nil, &apperror.SubscriptionError{Err: apperror.ErrUnavailable}
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, stop, err := s.feed.Watch(ctx, recipientID)
	if err != nil {
		cancel()
		return nil, &apperror.SubscriptionError{Err: err}
	}

	sub := &subscription{cancel: cancel, stop: stop}
	if err := refresh(ctx, sub); err != nil {
		sub.close()
		return nil, &apperror.SubscriptionError{Err: err}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				if err := refresh(ctx, sub); err != nil && ctx.Err() == nil && onError != nil {
					onError(apperror.Remote("refresh live snapshot", err))
				}
			}
		}
	}()

	return sub.close, nil
}
