package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastreet/marketplace/internal/model"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocalBroadcaster(t *testing.T) {
	b := NewLocalBroadcaster()
	ch, stop, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), Event{Kind: EventSignOut, Origin: "a"}))
	ev := <-ch
	assert.Equal(t, EventSignOut, ev.Kind)

	stop()
	stop()
	_, ok := <-ch
	assert.False(t, ok)
	require.NoError(t, b.Publish(context.Background(), Event{Kind: EventSignOut}))
}

func TestRedisBroadcaster_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	b := NewRedisBroadcasterWithClient(client, "test:session", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, stop, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.Publish(ctx, Event{Kind: EventSignOut, Phone: "5551234567", Origin: "cli", At: at}))

	select {
	case ev := <-events:
		assert.Equal(t, EventSignOut, ev.Kind)
		assert.Equal(t, "5551234567", ev.Phone)
		assert.Equal(t, "cli", ev.Origin)
		assert.True(t, at.Equal(ev.At))
	case <-ctx.Done():
		t.Fatal("timed out waiting for session event")
	}
}

func TestRedisBroadcaster_SignOutAcrossManagers(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	first := NewManager(NewMemoryStore(), NewRedisBroadcasterWithClient(client, "", nil), nil)
	second := NewManager(NewMemoryStore(), NewRedisBroadcasterWithClient(client, "", nil), nil)
	require.NoError(t, first.SignIn(ctx, model.User{Phone: "5551234567"}))
	require.NoError(t, second.SignIn(ctx, model.User{Phone: "5551234567"}))

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- second.Watch(watchCtx) }()

	require.Eventually(t, func() bool {
		_ = first.SignOut(ctx)
		return !second.Current().SignedIn()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestNewRedisBroadcaster_BadURL(t *testing.T) {
	_, err := NewRedisBroadcaster(context.Background(), "://nope", nil)
	assert.Error(t, err)
}
