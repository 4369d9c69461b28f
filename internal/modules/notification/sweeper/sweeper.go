package sweeper

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Store deletes every record whose expiry has passed.
type Store interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper runs expiry sweeps in the background. At most one sweep is in
// flight; a trigger that arrives while one runs is dropped.
type Sweeper struct {
	store   Store
	running atomic.Bool
	done    func(deleted int64, err error)
}

type Option func(*Sweeper)

// WithDone registers fn to be called after every sweep that ran.
func WithDone(fn func(deleted int64, err error)) Option {
	return func(s *Sweeper) { s.done = fn }
}

func New(store Store, opts ...Option) *Sweeper {
	s := &Sweeper{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger starts a sweep and returns immediately. It reports whether a
// sweep was started.
func (s *Sweeper) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	go s.sweep(context.WithoutCancel(ctx))
	return true
}

func (s *Sweeper) Running() bool {
	return s.running.Load()
}

func (s *Sweeper) sweep(ctx context.Context) {
	defer s.running.Store(false)

	deleted, err := s.store.SweepExpired(ctx)
	if err != nil {
		log.Printf("[sweeper] failed to delete expired notifications: %v", err)
	} else if deleted > 0 {
		log.Printf("[sweeper] deleted %d expired notifications", deleted)
	}
	if s.done != nil {
		s.done(deleted, err)
	}
}

// StartWorker triggers a sweep every interval until ctx is done.
func (s *Sweeper) StartWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Trigger(ctx)
		case <-ctx.Done():
			return
		}
	}
}
