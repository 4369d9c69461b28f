package handler

import (
	"context"
	"sync"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/internal/modules/notification/query"
	notifService "anoa.com/noticeboard/internal/modules/notification/service"
	"anoa.com/noticeboard/pkg/apperror"
	"github.com/google/uuid"
)

// fakeService keeps records in memory and pushes a snapshot to every open
// subscription after each write.
type fakeService struct {
	mu         sync.Mutex
	records    []entity.Notification
	calls      []string
	lastFilter entity.NotificationFilter
	created    []entity.Notification
	err        error
	swept      int64
	watchers   map[int]func()
	nextWatch  int
}

var _ notifService.NotificationService = (*fakeService)(nil)

func newFakeService(records ...entity.Notification) *fakeService {
	return &fakeService{records: records, watchers: map[int]func(){}}
}

func (f *fakeService) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeService) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) Create(ctx context.Context, n *entity.Notification) (uuid.UUID, error) {
	if err := f.record("create"); err != nil {
		return uuid.Nil, err
	}
	f.mu.Lock()
	n.ID = uuid.New()
	f.created = append(f.created, *n)
	f.mu.Unlock()
	return n.ID, nil
}

func (f *fakeService) CreateBulk(ctx context.Context, notifications []entity.Notification) error {
	if err := f.record("create_bulk"); err != nil {
		return err
	}
	f.mu.Lock()
	f.created = append(f.created, notifications...)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) snapshot(recipientID uuid.UUID, filter entity.NotificationFilter) []entity.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	predicate := query.Remote(filter)
	out := []entity.Notification{}
	for _, n := range f.records {
		if n.RecipientID == recipientID && predicate.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeService) unread(recipientID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.records {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count
}

func (f *fakeService) watch(refresh func()) notifService.Unsubscribe {
	f.mu.Lock()
	id := f.nextWatch
	f.nextWatch++
	f.watchers[id] = refresh
	f.mu.Unlock()

	refresh()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, id)
	}
}

func (f *fakeService) changed() {
	f.mu.Lock()
	watchers := make([]func(), 0, len(f.watchers))
	for _, w := range f.watchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()
	for _, w := range watchers {
		w()
	}
}

func (f *fakeService) Subscribe(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter, onSnapshot func([]entity.Notification), onError func(error)) (notifService.Unsubscribe, error) {
	if err := f.record("subscribe"); err != nil {
		return nil, &apperror.SubscriptionError{Err: err}
	}
	return f.watch(func() { onSnapshot(f.snapshot(recipientID, filter)) }), nil
}

func (f *fakeService) SubscribeUnreadCount(ctx context.Context, recipientID uuid.UUID, onCount func(int64), onError func(error)) (notifService.Unsubscribe, error) {
	return f.watch(func() { onCount(f.unread(recipientID)) }), nil
}

func (f *fakeService) List(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter) ([]entity.Notification, error) {
	if err := f.record("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastFilter = filter
	f.mu.Unlock()
	return query.ApplyLocal(f.snapshot(recipientID, filter), filter), nil
}

func (f *fakeService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if err := f.record("unread_count"); err != nil {
		return 0, err
	}
	return f.unread(recipientID), nil
}

func (f *fakeService) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	if err := f.record("mark_read"); err != nil {
		return err
	}
	found := false
	f.mu.Lock()
	for i := range f.records {
		if f.records[i].ID == id && f.records[i].RecipientID == recipientID {
			f.records[i].IsRead = true
			found = true
		}
	}
	f.mu.Unlock()
	if !found {
		return apperror.Remote("mark notification read", apperror.ErrNotFound)
	}
	f.changed()
	return nil
}

func (f *fakeService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	if err := f.record("mark_all_read"); err != nil {
		return err
	}
	f.mu.Lock()
	for i := range f.records {
		if f.records[i].RecipientID == recipientID {
			f.records[i].IsRead = true
		}
	}
	f.mu.Unlock()
	f.changed()
	return nil
}

func (f *fakeService) remove(call string, drop func(entity.Notification) bool) error {
	if err := f.record(call); err != nil {
		return err
	}
	f.mu.Lock()
	kept := f.records[:0]
	for _, n := range f.records {
		if !drop(n) {
			kept = append(kept, n)
		}
	}
	f.records = kept
	f.mu.Unlock()
	f.changed()
	return nil
}

func (f *fakeService) Delete(ctx context.Context, recipientID, id uuid.UUID) error {
	return f.remove("delete", func(n entity.Notification) bool {
		return n.ID == id && n.RecipientID == recipientID
	})
}

func (f *fakeService) DeleteAll(ctx context.Context, recipientID uuid.UUID) error {
	return f.remove("delete_all", func(n entity.Notification) bool { return n.RecipientID == recipientID })
}

func (f *fakeService) DeleteRead(ctx context.Context, recipientID uuid.UUID) error {
	return f.remove("delete_read", func(n entity.Notification) bool {
		return n.RecipientID == recipientID && n.IsRead
	})
}

func (f *fakeService) Stats(ctx context.Context, recipientID uuid.UUID) (*entity.NotificationStats, error) {
	if err := f.record("stats"); err != nil {
		return nil, err
	}
	return query.BuildStats(f.snapshot(recipientID, entity.NotificationFilter{})), nil
}

func (f *fakeService) SweepExpired(ctx context.Context) (int64, error) {
	if err := f.record("sweep"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swept, nil
}

func (f *fakeService) add(n entity.Notification) {
	f.mu.Lock()
	f.records = append([]entity.Notification{n}, f.records...)
	f.mu.Unlock()
	f.changed()
}
