package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type EventKind string

const (
	EventSignOut EventKind = "sign_out"
	EventSignIn  EventKind = "sign_in"
)

type Event struct {
	Kind   EventKind `json:"kind"`
	Phone  string    `json:"phone,omitempty"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Broadcaster fans session events out to every surface sharing the same identity.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events and a cancel func that closes it.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// LocalBroadcaster delivers events within one process. Slow subscribers miss events
// rather than block publishers.
type LocalBroadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{subs: make(map[int]chan Event)}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, 8)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

const DefaultChannel = "infrastreet:session"

// RedisBroadcaster publishes session events over Redis pub/sub so that sign-out on one
// device or process reaches the others.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBroadcaster connects to redisURL and checks the connection.
func NewRedisBroadcaster(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisBroadcasterWithClient(client, DefaultChannel, logger), nil
}

func NewRedisBroadcasterWithClient(client *redis.Client, channel string, logger *zap.Logger) *RedisBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{client: client, channel: channel, logger: logger}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(subCtx, b.channel)

	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	out := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("Dropping malformed session event", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	stop := func() {
		cancel()
		<-done
	}
	return out, stop, nil
}

func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
