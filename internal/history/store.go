// Package history keeps the user backend's chat history and message feedback
// in Redis. Unlike the conversation log it is per user, capped by count and
// kept for days rather than minutes.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

const (
	DefaultMessageTTL  = 7 * 24 * time.Hour
	DefaultFeedbackTTL = 30 * 24 * time.Hour
	DefaultMaxMessages = 100
	DefaultPageSize    = 50

	messagePrefix  = "chat_message:"
	historyPrefix  = "chat_history:"
	feedbackPrefix = "chat_feedback:"
)

// saveScript stores a message body and indexes it in one step, or does
// nothing when the id is already stored.
var saveScript = redis.NewScript(`
if not redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 0
end
redis.call("LPUSH", KEYS[2], ARGV[3])
redis.call("LTRIM", KEYS[2], 0, tonumber(ARGV[4]) - 1)
return 1
`)

// ErrInvalidRating is returned for ratings outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Message is one stored exchange.
type Message struct {
	MessageID   string                 `json:"message_id"`
	UserID      string                 `json:"user_id"`
	UserMessage string                 `json:"user_message"`
	AIResponse  string                 `json:"ai_response"`
	Context     map[string]interface{} `json:"context"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Feedback is a user's rating of one message.
type Feedback struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Feedback  string    `json:"feedback"`
	Rating    int       `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Page is one page of a user's history, newest first.
type Page struct {
	Messages   []Message `json:"messages"`
	TotalCount int64     `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}

// Options tunes a Store. Zero values take the package defaults.
type Options struct {
	MessageTTL  time.Duration
	FeedbackTTL time.Duration
	MaxMessages int
}

// Store is the Redis-backed chat history.
type Store struct {
	rdb         redis.UniversalClient
	messageTTL  time.Duration
	feedbackTTL time.Duration
	maxMessages int
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Store on an existing client.
func New(rdb redis.UniversalClient, opts Options) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("history: redis client must not be nil")
	}
	s := &Store{
		rdb:         rdb,
		messageTTL:  opts.MessageTTL,
		feedbackTTL: opts.FeedbackTTL,
		maxMessages: opts.MaxMessages,
		logger:      logging.WithComponent("history"),
		now:         time.Now,
	}
	if s.messageTTL <= 0 {
		s.messageTTL = DefaultMessageTTL
	}
	if s.feedbackTTL <= 0 {
		s.feedbackTTL = DefaultFeedbackTTL
	}
	if s.maxMessages <= 0 {
		s.maxMessages = DefaultMaxMessages
	}
	return s, nil
}

// SaveMessage stores msg and prepends it to the user's history. A message id
// that is already stored is left alone, so redelivered events are harmless.
// It reports whether the message was new.
func (s *Store) SaveMessage(ctx context.Context, msg Message) (bool, error) {
	if msg.MessageID == "" || msg.UserID == "" {
		return false, errors.New("history: message_id and user_id are required")
	}
	if msg.Context == nil {
		msg.Context = map[string]interface{}{}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("failed to marshal message: %w", err)
	}

	created, err := saveScript.Run(ctx, s.rdb,
		[]string{messagePrefix + msg.MessageID, historyPrefix + msg.UserID},
		data, s.messageTTL.Milliseconds(), msg.MessageID, s.maxMessages).Int64()
	if err != nil {
		metrics.HistoryOperations.WithLabelValues("save", metrics.ResultError).Inc()
		return false, fmt.Errorf("failed to save message: %w", err)
	}
	if created == 0 {
		metrics.HistoryOperations.WithLabelValues("save", metrics.ResultMiss).Inc()
		return false, nil
	}
	metrics.HistoryOperations.WithLabelValues("save", metrics.ResultOK).Inc()
	return true, nil
}

// List returns one page of the user's history. Expired messages still
// indexed are skipped but counted in TotalCount.
func (s *Store) List(ctx context.Context, userID string, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	listKey := historyPrefix + userID
	start := int64((page - 1) * pageSize)
	end := start + int64(pageSize) - 1

	var idsCmd *redis.StringSliceCmd
	var countCmd *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		idsCmd = pipe.LRange(ctx, listKey, start, end)
		countCmd = pipe.LLen(ctx, listKey)
		return nil
	})
	if err != nil {
		metrics.HistoryOperations.WithLabelValues("list", metrics.ResultError).Inc()
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	messages := make([]Message, 0, len(idsCmd.Val()))
	if ids := idsCmd.Val(); len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = messagePrefix + id
		}
		values, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			metrics.HistoryOperations.WithLabelValues("list", metrics.ResultError).Inc()
			return nil, fmt.Errorf("failed to read messages: %w", err)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var m Message
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				s.logger.Warn("Skipping undecodable history message", "message_id", ids[i], "error", err)
				continue
			}
			messages = append(messages, m)
		}
	}

	metrics.HistoryOperations.WithLabelValues("list", metrics.ResultOK).Inc()
	return &Page{
		Messages:   messages,
		TotalCount: countCmd.Val(),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Clear deletes every message of the user and the history index.
func (s *Store) Clear(ctx context.Context, userID string) error {
	listKey := historyPrefix + userID
	ids, err := s.rdb.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		metrics.HistoryOperations.WithLabelValues("clear", metrics.ResultError).Inc()
		return fmt.Errorf("failed to read history: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, messagePrefix+id)
	}
	keys = append(keys, listKey)
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		metrics.HistoryOperations.WithLabelValues("clear", metrics.ResultError).Inc()
		return fmt.Errorf("failed to clear history: %w", err)
	}
	metrics.HistoryOperations.WithLabelValues("clear", metrics.ResultOK).Inc()
	return nil
}

// SaveFeedback stores a rating for a message.
func (s *Store) SaveFeedback(ctx context.Context, fb Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return ErrInvalidRating
	}
	if fb.MessageID == "" {
		return errors.New("history: message_id is required")
	}
	fb.Timestamp = s.now().UTC()

	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	if err := s.rdb.Set(ctx, feedbackPrefix+fb.MessageID, data, s.feedbackTTL).Err(); err != nil {
		metrics.HistoryOperations.WithLabelValues("feedback", metrics.ResultError).Inc()
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	metrics.HistoryOperations.WithLabelValues("feedback", metrics.ResultOK).Inc()
	return nil
}

// Feedback returns the stored feedback for a message, or nil.
func (s *Store) Feedback(ctx context.Context, messageID string) (*Feedback, error) {
	data, err := s.rdb.Get(ctx, feedbackPrefix+messageID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feedback: %w", err)
	}
	var fb Feedback
	if err := json.Unmarshal(data, &fb); err != nil {
		return nil, fmt.Errorf("failed to decode feedback: %w", err)
	}
	return &fb, nil
}
