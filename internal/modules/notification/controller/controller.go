package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"anoa.com/noticeboard/internal/entity"
	"anoa.com/noticeboard/internal/modules/notification/query"
	notifService "anoa.com/noticeboard/internal/modules/notification/service"
	"anoa.com/noticeboard/pkg/apperror"
	"github.com/google/uuid"
)

// Mode decides how mutations reach the canonical list.
type Mode int

const (
	// ModeLive leaves every change to the next live snapshot.
	ModeLive Mode = iota
	// ModeStatic patches the canonical list as soon as a mutation is issued.
	ModeStatic
)

func (m Mode) String() string {
	if m == ModeStatic {
		return "static"
	}
	return "live"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "live":
		return ModeLive, nil
	case "static":
		return ModeStatic, nil
	default:
		return ModeLive, fmt.Errorf("%w: unknown mode %q", apperror.ErrInvalidInput, s)
	}
}

// Remote is the part of the notification service a controller drives.
type Remote interface {
	Create(ctx context.Context, notification *entity.Notification) (uuid.UUID, error)
	Subscribe(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter, onSnapshot func([]entity.Notification), onError func(error)) (notifService.Unsubscribe, error)
	SubscribeUnreadCount(ctx context.Context, recipientID uuid.UUID, onCount func(int64), onError func(error)) (notifService.Unsubscribe, error)
	List(ctx context.Context, recipientID uuid.UUID, filter entity.NotificationFilter) ([]entity.Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
	Delete(ctx context.Context, recipientID, id uuid.UUID) error
	DeleteAll(ctx context.Context, recipientID uuid.UUID) error
	DeleteRead(ctx context.Context, recipientID uuid.UUID) error
	Stats(ctx context.Context, recipientID uuid.UUID) (*entity.NotificationStats, error)
}

// Alerter receives the records that appeared in a snapshot.
type Alerter interface {
	Dispatch(ctx context.Context, batch []entity.Notification)
}

// State is what the host renders.
type State struct {
	Notifications []entity.Notification     `json:"notifications"`
	UnreadCount   int64                     `json:"unread_count"`
	Stats         *entity.NotificationStats `json:"stats,omitempty"`
	Filter        entity.NotificationFilter `json:"filter"`
	Mode          Mode                      `json:"mode"`
	Loading       bool                      `json:"loading"`
	Error         string                    `json:"error,omitempty"`
}

type Option func(*Controller)

func WithMode(mode Mode) Option {
	return func(c *Controller) { c.mode = mode }
}

func WithFilter(filter entity.NotificationFilter) Option {
	return func(c *Controller) { c.filter = filter }
}

// WithListener registers fn for every state change. fn is called with the
// controller lock held and must not call back into the controller.
func WithListener(fn func(State)) Option {
	return func(c *Controller) { c.listener = fn }
}

func WithNavigator(fn func(ctx context.Context, actionURL string)) Option {
	return func(c *Controller) { c.navigate = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns one recipient's canonical notification list. At most one
// record subscription is open at a time.
type Controller struct {
	recipientID uuid.UUID
	remote      Remote
	alerter     Alerter
	listener    func(State)
	navigate    func(ctx context.Context, actionURL string)
	now         func() time.Time

	// opMu serializes the public operations. Snapshot callbacks only take mu.
	opMu sync.Mutex

	mu          sync.Mutex
	baseCtx     context.Context
	records     []entity.Notification
	filter      entity.NotificationFilter
	mode        Mode
	loading     bool
	errMsg      string
	feedFailed  bool
	unread      int64
	stats       *entity.NotificationStats
	generation  uint64
	unsubList   notifService.Unsubscribe
	unsubUnread notifService.Unsubscribe
	closed      bool
}

func New(recipientID uuid.UUID, remote Remote, alerter Alerter, opts ...Option) *Controller {
	c := &Controller{
		recipientID: recipientID,
		remote:      remote,
		alerter:     alerter,
		now:         time.Now,
		baseCtx:     context.Background(),
		records:     []entity.Notification{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) RecipientID() uuid.UUID {
	return c.recipientID
}

// Start opens the live subscription, or performs the first fetch in
// static mode. ctx bounds the lifetime of the subscriptions.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.baseCtx = ctx
	mode := c.mode
	c.mu.Unlock()

	if mode == ModeLive {
		return c.openLive()
	}
	return c.loadOnce(ctx, nil)
}

// Close disposes both subscriptions. Snapshots still in flight are dropped.
func (c *Controller) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeLive()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetFilter replaces the filter. In live mode the old subscription is
// disposed before the new one is opened; the canonical list is kept until
// the new subscription's first snapshot replaces it.
func (c *Controller) SetFilter(ctx context.Context, filter entity.NotificationFilter) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.filter = filter
	mode := c.mode
	c.notifyLocked()
	c.mu.Unlock()

	if mode == ModeLive {
		c.closeLive()
		return c.openLive()
	}
	return c.loadOnce(ctx, nil)
}

// SetMode switches between live and static propagation. Existing state
// is not reconciled.
func (c *Controller) SetMode(ctx context.Context, mode Mode) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	c.mode = mode
	if mode == ModeStatic {
		c.loading = false
	}
	c.notifyLocked()
	c.mu.Unlock()

	if mode == ModeLive {
		return c.openLive()
	}
	c.closeLive()
	return nil
}

// LoadOnce fetches the list and unread count once. It is a no-op in live
// mode. A non-nil filter replaces the current one first.
func (c *Controller) LoadOnce(ctx context.Context, filter *entity.NotificationFilter) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.loadOnce(ctx, filter)
}

// Refresh reloads the list (re-opening a failed live subscription) and
// recomputes stats.
func (c *Controller) Refresh(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	mode := c.mode
	reopen := c.unsubList == nil
	c.mu.Unlock()

	var err error
	if mode == ModeLive {
		if reopen {
			err = c.openLive()
		}
	} else {
		err = c.loadOnce(ctx, nil)
	}

	stats, statsErr := c.remote.Stats(ctx, c.recipientID)
	c.mu.Lock()
	if statsErr != nil {
		c.setErrorLocked(statsErr)
	} else {
		c.stats = stats
	}
	c.notifyLocked()
	c.mu.Unlock()

	return errors.Join(err, statsErr)
}

func (c *Controller) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		return c.remote.MarkRead(ctx, c.recipientID, id)
	}, func(now time.Time) {
		for i := range c.records {
			if c.records[i].ID == id && !c.records[i].IsRead {
				c.records[i].MarkRead(now)
				c.unread = max(c.unread-1, 0)
			}
		}
	})
}

func (c *Controller) MarkAllAsRead(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		return c.remote.MarkAllRead(ctx, c.recipientID)
	}, func(now time.Time) {
		for i := range c.records {
			c.records[i].MarkRead(now)
		}
		c.unread = 0
	})
}

func (c *Controller) Delete(ctx context.Context, id uuid.UUID) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		return c.remote.Delete(ctx, c.recipientID, id)
	}, func(time.Time) {
		c.records = removeWhere(c.records, func(n entity.Notification) bool {
			if n.ID == id && !n.IsRead {
				c.unread = max(c.unread-1, 0)
			}
			return n.ID == id
		})
	})
}

func (c *Controller) DeleteAll(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		return c.remote.DeleteAll(ctx, c.recipientID)
	}, func(time.Time) {
		c.records = []entity.Notification{}
		c.unread = 0
	})
}

func (c *Controller) DeleteRead(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context) error {
		return c.remote.DeleteRead(ctx, c.recipientID)
	}, func(time.Time) {
		c.records = removeWhere(c.records, func(n entity.Notification) bool { return n.IsRead })
	})
}

// Create originates a record, usually for another recipient. The
// canonical list is not touched.
func (c *Controller) Create(ctx context.Context, notification *entity.Notification) (uuid.UUID, error) {
	id, err := c.remote.Create(ctx, notification)
	if err != nil {
		c.mu.Lock()
		c.setErrorLocked(err)
		c.notifyLocked()
		c.mu.Unlock()
		return uuid.Nil, err
	}
	return id, nil
}

// Open handles the recipient clicking a list item: the item is marked
// read and the host is asked to navigate to its action URL.
func (c *Controller) Open(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	var target *entity.Notification
	for i := range c.records {
		if c.records[i].ID == id {
			n := c.records[i]
			target = &n
			break
		}
	}
	c.mu.Unlock()

	if target == nil {
		return apperror.ErrNotFound
	}

	var err error
	if !target.IsRead {
		err = c.MarkAsRead(ctx, id)
	}
	if target.ActionURL != "" && c.navigate != nil {
		c.navigate(ctx, target.ActionURL)
	}
	return err
}

// mutate issues a remote mutation. In static mode patch is applied to
// the canonical list first and is kept even if the remote call fails.
func (c *Controller) mutate(ctx context.Context, call func(context.Context) error, patch func(now time.Time)) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.mode == ModeStatic {
		patch(c.now())
		c.records = keepMatching(c.records, c.filter)
		c.notifyLocked()
	}
	c.mu.Unlock()

	err := call(ctx)
	if err != nil {
		c.mu.Lock()
		c.setErrorLocked(err)
		c.notifyLocked()
		c.mu.Unlock()
	}
	return err
}

func (c *Controller) loadOnce(ctx context.Context, filter *entity.NotificationFilter) error {
	c.mu.Lock()
	if c.mode == ModeLive {
		c.mu.Unlock()
		return nil
	}
	if filter != nil {
		c.filter = *filter
	}
	current := c.filter
	c.loading = true
	c.notifyLocked()
	c.mu.Unlock()

	records, err := c.remote.List(ctx, c.recipientID, current)
	var unread int64
	if err == nil {
		unread, err = c.remote.UnreadCount(ctx, c.recipientID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.setErrorLocked(err)
		c.notifyLocked()
		return err
	}
	c.records = records
	c.unread = unread
	c.errMsg = ""
	c.feedFailed = false
	c.notifyLocked()
	return nil
}

// openLive opens the record and unread-count subscriptions for the
// current filter. Must be called with opMu held and mu released.
func (c *Controller) openLive() error {
	c.mu.Lock()
	if c.closed || c.mode != ModeLive {
		c.mu.Unlock()
		return nil
	}
	c.generation++
	gen := c.generation
	ctx := c.baseCtx
	filter := c.filter
	c.loading = true
	c.notifyLocked()
	c.mu.Unlock()

	unsubList, err := c.remote.Subscribe(ctx, c.recipientID, filter,
		func(records []entity.Notification) { c.applySnapshot(ctx, gen, records) },
		func(err error) { c.feedError(gen, err) })
	if err != nil {
		c.subscribeFailed(gen, err)
		return err
	}

	unsubUnread, err := c.remote.SubscribeUnreadCount(ctx, c.recipientID,
		func(count int64) { c.applyUnread(gen, count) },
		func(err error) { c.feedError(gen, err) })
	if err != nil {
		unsubList()
		c.subscribeFailed(gen, err)
		return err
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		unsubList()
		unsubUnread()
		return nil
	}
	c.unsubList = unsubList
	c.unsubUnread = unsubUnread
	c.mu.Unlock()
	return nil
}

// closeLive disposes the open subscriptions. Bumping the generation first
// drops any delivery that is already on its way.
func (c *Controller) closeLive() {
	c.mu.Lock()
	c.generation++
	unsubList, unsubUnread := c.unsubList, c.unsubUnread
	c.unsubList, c.unsubUnread = nil, nil
	c.mu.Unlock()

	if unsubList != nil {
		unsubList()
	}
	if unsubUnread != nil {
		unsubUnread()
	}
}

func (c *Controller) applySnapshot(ctx context.Context, gen uint64, incoming []entity.Notification) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	arrivals := NewArrivals(c.records, incoming)
	c.records = incoming
	c.loading = false
	if c.feedFailed {
		c.errMsg = ""
		c.feedFailed = false
	}
	c.notifyLocked()
	c.mu.Unlock()

	if len(arrivals) > 0 && c.alerter != nil {
		c.alerter.Dispatch(ctx, arrivals)
	}
}

func (c *Controller) applyUnread(gen uint64, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		return
	}
	c.unread = count
	c.notifyLocked()
}

func (c *Controller) feedError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		return
	}
	log.Printf("[notification] live feed error for %s: %v", c.recipientID, err)
	c.loading = false
	c.setErrorLocked(err)
	c.feedFailed = true
	c.notifyLocked()
}

func (c *Controller) subscribeFailed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	log.Printf("[notification] failed to subscribe for %s: %v", c.recipientID, err)
	c.loading = false
	c.errMsg = "failed to load notifications: " + err.Error()
	c.feedFailed = true
	c.notifyLocked()
}

func (c *Controller) setErrorLocked(err error) {
	c.errMsg = err.Error()
	c.feedFailed = false
}

func (c *Controller) stateLocked() State {
	var stats *entity.NotificationStats
	if c.stats != nil {
		copied := *c.stats
		stats = &copied
	}
	return State{
		Notifications: query.ApplyLocal(c.records, c.filter),
		UnreadCount:   c.unread,
		Stats:         stats,
		Filter:        c.filter,
		Mode:          c.mode,
		Loading:       c.loading,
		Error:         c.errMsg,
	}
}

func (c *Controller) notifyLocked() {
	if c.listener != nil {
		c.listener(c.stateLocked())
	}
}

// NewArrivals returns the records of incoming whose id is not in previous,
// in incoming order.
func NewArrivals(previous, incoming []entity.Notification) []entity.Notification {
	seen := make(map[uuid.UUID]struct{}, len(previous))
	for _, n := range previous {
		seen[n.ID] = struct{}{}
	}
	var arrivals []entity.Notification
	for _, n := range incoming {
		if _, ok := seen[n.ID]; !ok {
			arrivals = append(arrivals, n)
		}
	}
	return arrivals
}

func removeWhere(records []entity.Notification, drop func(entity.Notification) bool) []entity.Notification {
	out := make([]entity.Notification, 0, len(records))
	for _, n := range records {
		if !drop(n) {
			out = append(out, n)
		}
	}
	return out
}

// keepMatching re-applies the remote predicate to a patched list, so a
// record marked read leaves an unread-only view.
func keepMatching(records []entity.Notification, filter entity.NotificationFilter) []entity.Notification {
	predicate := query.Remote(filter)
	return removeWhere(records, func(n entity.Notification) bool { return !predicate.Matches(n) })
}
