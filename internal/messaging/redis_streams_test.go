package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient starts an in-memory Redis and connects a client to it
func setupTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisClient_Connection(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsConnected(context.Background()))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{URL: "redis://127.0.0.1:1", PingTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestRedisClient_PublishAndSubscribe(t *testing.T) {
	client, _ := setupTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := "test:turns:" + t.Name()

	msgChan, err := client.Subscribe(ctx, stream, "test-group", "test-consumer")
	require.NoError(t, err)

	event := NewTurnEvent(SourceCopilot, "u1", "s1", "m1", "hi", "hello", map[string]interface{}{"page": "dashboard"})
	msgID, err := client.Publish(ctx, stream, event.ToRedisValues())
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)

	select {
	case msg := <-msgChan:
		assert.Equal(t, stream, msg.Stream)
		got, err := TurnEventFromRedisValues(msg.Values)
		require.NoError(t, err)
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, "hello", got.AssistantMessage)
		assert.Equal(t, "dashboard", got.Context["page"])
		assert.Equal(t, event.Created, got.Created)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	cancel()
	select {
	case _, open := <-msgChan:
		for open {
			_, open = <-msgChan
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSubscribe_ExistingGroup(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := client.Subscribe(ctx, "test:dup", "g", "c1")
	require.NoError(t, err)
	_, err = client.Subscribe(ctx, "test:dup", "g", "c2")
	assert.NoError(t, err)
}

func TestSubscribe_RedeliversUntilAcked(t *testing.T) {
	client, _ := setupTestClient(t)
	stream := "test:redeliver"
	id, err := client.Publish(context.Background(), stream, map[string]interface{}{"n": "1"})
	require.NoError(t, err)

	receive := func() (Message, bool) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		msgs, err := client.Subscribe(ctx, stream, "g", "c1")
		require.NoError(t, err)
		select {
		case msg := <-msgs:
			return msg, true
		case <-time.After(1500 * time.Millisecond):
			return Message{}, false
		}
	}

	first, ok := receive()
	require.True(t, ok)
	assert.Equal(t, id, first.ID)

	again, ok := receive()
	require.True(t, ok, "unacknowledged message is delivered again")
	assert.Equal(t, id, again.ID)

	require.NoError(t, client.Ack(context.Background(), stream, "g", id))
	_, ok = receive()
	assert.False(t, ok)
}

func TestTurnEventFromRedisValues_Invalid(t *testing.T) {
	_, err := TurnEventFromRedisValues(map[string]interface{}{"id": "x"})
	assert.Error(t, err)

	_, err = TurnEventFromRedisValues(map[string]interface{}{"user_id": "u", "created": "yesterday"})
	assert.Error(t, err)
}

func TestDeadLetterQueue(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	dlq := NewDeadLetterQueue(client, StreamChatTurns)
	assert.Equal(t, "bitebase:chat:turns:dlq", dlq.Stream())

	event := NewTurnEvent(SourceCopilot, "u1", "s1", "m1", "hi", "hello", nil)
	require.NoError(t, dlq.Send(ctx, event, "history unavailable", 3))

	count, err := dlq.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	letters, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, event.ID, letters[0].Event.ID)
	assert.Equal(t, "history unavailable", letters[0].Error)
	assert.Equal(t, 3, letters[0].RetryCount)
	assert.NotZero(t, letters[0].DeadAt)

	require.NoError(t, dlq.Delete(ctx, letters[0].DLQID))
	count, err = dlq.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWithRetry(t *testing.T) {
	client, _ := setupTestClient(t)

	calls := 0
	err := client.WithRetry(context.Background(), 3, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = client.WithRetry(context.Background(), 2, func() error {
		calls++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestTurnPublisher(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	pub := NewTurnPublisher(client, "")
	event := NewTurnEvent(SourceCopilot, "u1", "s1", "m1", "hi", "hello", nil)
	id, err := pub.PublishTurn(ctx, event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := client.RawClient().XRange(ctx, StreamChatTurns, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].Values["user_id"])

	mr.Close()
	_, err = pub.PublishTurn(ctx, event)
	assert.Error(t, err)
}
