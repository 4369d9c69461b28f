package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChangeFeed carries "recipient X changed" signals between writers and
// live queries. A signal carries no state; watchers re-read the store.
type ChangeFeed interface {
	Publish(ctx context.Context, recipientID uuid.UUID, op string) error
	// Watch returns a channel that receives at least one value after every
	// Publish for recipientID. Pending signals coalesce. stop releases the
	// watch and may be called more than once.
	Watch(ctx context.Context, recipientID uuid.UUID) (changes <-chan struct{}, stop func(), err error)
}

type changeMessage struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Op          string    `json:"op"`
}

func channelName(recipientID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", recipientID.String())
}

type redisFeed struct {
	client *redis.Client
}

// NewRedisFeed publishes change signals on the per-recipient Redis
// channel, so every API instance sees writes made by the others.
func NewRedisFeed(client *redis.Client) ChangeFeed {
	return &redisFeed{client: client}
}

func (f *redisFeed) Publish(ctx context.Context, recipientID uuid.UUID, op string) error {
	payload, err := json.Marshal(changeMessage{RecipientID: recipientID, Op: op})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, channelName(recipientID), payload).Err()
}

func (f *redisFeed) Watch(ctx context.Context, recipientID uuid.UUID) (<-chan struct{}, func(), error) {
	pubsub := f.client.Subscribe(ctx, channelName(recipientID))

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to redis channel: %w", err)
	}

	changes := make(chan struct{}, 1)
	messages := pubsub.Channel()
	go func() {
		// messages is closed by pubsub.Close
		for range messages {
			select {
			case changes <- struct{}{}:
			default:
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Printf("[notification] failed to close redis subscription: %v", err)
			}
		})
	}
	return changes, stop, nil
}

type localWatcher struct {
	changes chan struct{}
}

type localFeed struct {
	mu       sync.Mutex
	watchers map[uuid.UUID]map[*localWatcher]struct{}
}

// NewLocalFeed is an in-process ChangeFeed for single-instance deployments
// without Redis.
func NewLocalFeed() ChangeFeed {
	return &localFeed{watchers: make(map[uuid.UUID]map[*localWatcher]struct{})}
}

func (f *localFeed) Publish(ctx context.Context, recipientID uuid.UUID, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for w := range f.watchers[recipientID] {
		select {
		case w.changes <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *localFeed) Watch(ctx context.Context, recipientID uuid.UUID) (<-chan struct{}, func(), error) {
	w := &localWatcher{changes: make(chan struct{}, 1)}

	f.mu.Lock()
	if f.watchers[recipientID] == nil {
		f.watchers[recipientID] = make(map[*localWatcher]struct{})
	}
	f.watchers[recipientID][w] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.watchers[recipientID], w)
			if len(f.watchers[recipientID]) == 0 {
				delete(f.watchers, recipientID)
			}
		})
	}
	return w.changes, stop, nil
}
