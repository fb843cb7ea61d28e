package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khiwniti/beta-bitebase/internal/messaging"
)

func newStreamClient(t *testing.T) (*messaging.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := messaging.NewRedisClient(messaging.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRecorder_RecordsPublishedTurns(t *testing.T) {
	client, _ := newStreamClient(t)
	store, err := New(client.RawClient(), Options{})
	require.NoError(t, err)

	rec := NewRecorder(client, store, RecorderConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	pub := messaging.NewTurnPublisher(client, "")
	event := messaging.NewTurnEvent(messaging.SourceCopilot, "u1", "s1", "m1", "hello", "Hi! How can I help?", map[string]interface{}{"page": "home"})
	_, err = pub.PublishTurn(context.Background(), event)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		page, err := store.List(context.Background(), "u1", 1, 10)
		return err == nil && len(page.Messages) == 1
	}, 5*time.Second, 50*time.Millisecond)

	page, err := store.List(context.Background(), "u1", 1, 10)
	require.NoError(t, err)
	got := page.Messages[0]
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, "Hi! How can I help?", got.AIResponse)
	assert.Equal(t, "home", got.Context["page"])
	assert.Equal(t, time.Unix(event.Created, 0).UTC(), got.Timestamp)
	require.Eventually(t, func() bool {
		return pendingCount(client) == 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}
}

// pendingCount returns the recorder group's unacknowledged events, or -1.
func pendingCount(client *messaging.RedisClient) int64 {
	pending, err := client.RawClient().XPending(context.Background(), messaging.StreamChatTurns, "chat-history").Result()
	if err != nil {
		return -1
	}
	return pending.Count
}

func TestRecorder_RecordsTurnsLeftPendingByAnEarlierRun(t *testing.T) {
	client, _ := newStreamClient(t)
	store, err := New(client.RawClient(), Options{})
	require.NoError(t, err)

	event := messaging.NewTurnEvent(messaging.SourceCopilot, "u1", "s1", "m1", "hello", "Hi!", nil)
	_, err = messaging.NewTurnPublisher(client, "").PublishTurn(context.Background(), event)
	require.NoError(t, err)

	// An earlier run received the event and stopped before saving it.
	readCtx, stopRead := context.WithCancel(context.Background())
	msgs, err := client.Subscribe(readCtx, messaging.StreamChatTurns, "chat-history", "backend")
	require.NoError(t, err)
	select {
	case <-msgs:
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
	stopRead()
	assert.EqualValues(t, 1, pendingCount(client))

	rec := NewRecorder(client, store, RecorderConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	require.Eventually(t, func() bool {
		page, err := store.List(context.Background(), "u1", 1, 10)
		return err == nil && len(page.Messages) == 1 && pendingCount(client) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRecorder_DeadLettersAndReplays(t *testing.T) {
	client, _ := newStreamClient(t)
	storeRedis := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: storeRedis.Addr()})
	t.Cleanup(func() { rdb.Close() })
	hook := &faultHook{}
	rdb.AddHook(hook)
	store, err := New(rdb, Options{})
	require.NoError(t, err)

	rec := NewRecorder(client, store, RecorderConfig{MaxRetries: 2})
	ctx := context.Background()
	event := messaging.NewTurnEvent(messaging.SourceCopilot, "u1", "s1", "m1", "q", "a", nil)

	hook.failNext(1000)
	assert.True(t, rec.handle(ctx, messaging.Message{ID: "1-0", Values: event.ToRedisValues()}))

	count, err := rec.DeadLetters().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	letters, err := rec.DeadLetters().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "m1", letters[0].Event.MessageID)
	assert.Equal(t, 2, letters[0].RetryCount)
	assert.False(t, storeRedis.Exists("chat_message:m1"))

	replayed, err := rec.ReplayDeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, replayed)

	hook.failNext(0)
	replayed, err = rec.ReplayDeadLetters(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	count, err = rec.DeadLetters().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	page, err := store.List(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "q", page.Messages[0].UserMessage)
}

func TestRecorder_DropsUndecodableEvents(t *testing.T) {
	client, _ := newStreamClient(t)
	store, err := New(client.RawClient(), Options{})
	require.NoError(t, err)
	rec := NewRecorder(client, store, RecorderConfig{})

	assert.True(t, rec.handle(context.Background(), messaging.Message{ID: "1-0", Values: map[string]interface{}{"id": "x"}}))

	count, err := rec.DeadLetters().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMessageFromEvent(t *testing.T) {
	msg := messageFromEvent(messaging.TurnEvent{ID: "evt-1", UserID: "u1"})
	assert.Equal(t, "evt-1", msg.MessageID)
	assert.True(t, msg.Timestamp.IsZero())
}
