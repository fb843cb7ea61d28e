package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store, err := New(rdb, opts)
	require.NoError(t, err)
	return store, mr
}

func saveExchange(ctx context.Context, store *Store, userID, userMessage, aiResponse string, msgContext map[string]interface{}) (string, error) {
	msg := Message{
		MessageID:   uuid.NewString(),
		UserID:      userID,
		UserMessage: userMessage,
		AIResponse:  aiResponse,
		Context:     msgContext,
	}
	if _, err := store.SaveMessage(ctx, msg); err != nil {
		return "", err
	}
	return msg.MessageID, nil
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestSaveAndList(t *testing.T) {
	store, mr := newTestStore(t, Options{})
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		id, err := saveExchange(ctx, store, "u1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), map[string]interface{}{"n": i})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, 7*24*time.Hour, mr.TTL("chat_message:"+ids[0]))

	page, err := store.List(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.TotalCount)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "q3", page.Messages[0].UserMessage)
	assert.Equal(t, "a2", page.Messages[1].AIResponse)
	assert.Equal(t, ids[2], page.Messages[0].MessageID)

	second, err := store.List(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "q1", second.Messages[0].UserMessage)

	empty, err := store.List(ctx, "nobody", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, DefaultPageSize, empty.PageSize)
	assert.NotNil(t, empty.Messages)
	assert.Empty(t, empty.Messages)
}

func TestSave_CapsHistory(t *testing.T) {
	store, _ := newTestStore(t, Options{MaxMessages: 3})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := saveExchange(ctx, store, "u1", fmt.Sprintf("q%d", i), "a", nil)
		require.NoError(t, err)
	}

	page, err := store.List(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.TotalCount)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "q5", page.Messages[0].UserMessage)
	assert.Equal(t, "q3", page.Messages[2].UserMessage)
}

func TestSaveMessage_Idempotent(t *testing.T) {
	store, _ := newTestStore(t, Options{})
	ctx := context.Background()
	msg := Message{MessageID: "m1", UserID: "u1", UserMessage: "hi", AIResponse: "hello"}

	created, err := store.SaveMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = store.SaveMessage(ctx, msg)
	require.NoError(t, err)
	assert.False(t, created)

	page, err := store.List(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount)

	_, err = store.SaveMessage(ctx, Message{UserID: "u1"})
	assert.Error(t, err)
}

func TestSaveMessage_FailedSaveLeavesNothingBehind(t *testing.T) {
	store, mr := newTestStore(t, Options{})
	hook := &faultHook{}
	store.rdb.AddHook(hook)
	ctx := context.Background()
	msg := Message{MessageID: "m1", UserID: "u1", UserMessage: "hi", AIResponse: "hello"}

	hook.failNext(1)
	_, err := store.SaveMessage(ctx, msg)
	require.ErrorIs(t, err, errInjected)
	assert.False(t, mr.Exists("chat_message:m1"))
	assert.False(t, mr.Exists("chat_history:u1"))

	created, err := store.SaveMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, created)

	page, err := store.List(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].MessageID)
}

func TestList_SkipsExpiredMessages(t *testing.T) {
	store, mr := newTestStore(t, Options{MessageTTL: time.Minute})
	ctx := context.Background()

	_, err := saveExchange(ctx, store, "u1", "old", "a", nil)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = saveExchange(ctx, store, "u1", "new", "a", nil)
	require.NoError(t, err)

	page, err := store.List(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalCount)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "new", page.Messages[0].UserMessage)
}

func TestClear(t *testing.T) {
	store, mr := newTestStore(t, Options{})
	ctx := context.Background()

	id, err := saveExchange(ctx, store, "u1", "q", "a", nil)
	require.NoError(t, err)
	_, err = saveExchange(ctx, store, "u2", "q", "a", nil)
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, "u1"))
	assert.False(t, mr.Exists("chat_message:"+id))
	assert.False(t, mr.Exists("chat_history:u1"))
	assert.True(t, mr.Exists("chat_history:u2"))

	require.NoError(t, store.Clear(ctx, "nobody"))
}

func TestFeedback(t *testing.T) {
	store, mr := newTestStore(t, Options{})
	ctx := context.Background()

	for _, rating := range []int{0, 6, -1} {
		err := store.SaveFeedback(ctx, Feedback{MessageID: "m1", UserID: "u1", Rating: rating})
		assert.ErrorIs(t, err, ErrInvalidRating)
	}

	require.NoError(t, store.SaveFeedback(ctx, Feedback{MessageID: "m1", UserID: "u1", Feedback: "useful", Rating: 5}))
	assert.Equal(t, 30*24*time.Hour, mr.TTL("chat_feedback:m1"))

	fb, err := store.Feedback(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.Equal(t, 5, fb.Rating)
	assert.Equal(t, "useful", fb.Feedback)
	assert.False(t, fb.Timestamp.IsZero())

	missing, err := store.Feedback(ctx, "m2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreFailure(t *testing.T) {
	store, mr := newTestStore(t, Options{})
	mr.Close()
	ctx := context.Background()

	_, err := saveExchange(ctx, store, "u1", "q", "a", nil)
	assert.Error(t, err)
	_, err = store.List(ctx, "u1", 1, 10)
	assert.Error(t, err)
	assert.Error(t, store.Clear(ctx, "u1"))
}
