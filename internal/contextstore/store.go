// Package contextstore keeps the short-lived conversation log of each chat
// session in Redis. A log holds at most MaxTurns turns and expires TTL after
// its last write.
package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

const (
	DefaultMaxTurns = 10
	DefaultTTL      = time.Hour
	DefaultTimeout  = 2 * time.Second

	conversationPrefix = "conversation:"
	maxWatchAttempts   = 3
)

// ErrConflict is returned by AppendTurn when concurrent writers to the same
// session kept invalidating the optimistic transaction.
var ErrConflict = errors.New("contextstore: concurrent update conflict")

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Turn is one user message and the assistant reply to it.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// Options tunes a Store. Zero values take the package defaults.
type Options struct {
	MaxTurns int
	TTL      time.Duration
	Timeout  time.Duration
}

// Store is the Redis-backed conversation log.
type Store struct {
	rdb      redis.UniversalClient
	maxTurns int
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Store on top of an existing Redis client.
func New(rdb redis.UniversalClient, opts Options) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("contextstore: redis client must not be nil")
	}
	s := &Store{
		rdb:      rdb,
		maxTurns: opts.MaxTurns,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		logger:   logging.WithComponent("contextstore"),
		now:      time.Now,
	}
	if s.maxTurns <= 0 {
		s.maxTurns = DefaultMaxTurns
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s, nil
}

// MaxTurns reports the retained log length.
func (s *Store) MaxTurns() int { return s.maxTurns }

// TTL reports the sliding expiry.
func (s *Store) TTL() time.Duration { return s.ttl }

// AppendTurn appends a turn, trims the log to the newest MaxTurns entries and
// resets the expiry, all inside one WATCH/MULTI transaction on the session key.
func (s *Store) AppendTurn(ctx context.Context, userID, sessionID, userMessage, assistantMessage string) error {
	key := conversationKey(userID, sessionID)
	turn := Turn{
		User:      userMessage,
		Assistant: assistantMessage,
		Timestamp: s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	txf := func(tx *redis.Tx) error {
		turns, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		turns = append(turns, turn)
		if len(turns) > s.maxTurns {
			turns = turns[len(turns)-s.maxTurns:]
		}
		data, err := json.Marshal(turns)
		if err != nil {
			return fmt.Errorf("encode conversation: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetEx(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			metrics.ContextStoreOperations.WithLabelValues("append", metrics.ResultOK).Inc()
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			metrics.ContextStoreOperations.WithLabelValues("append", metrics.ResultError).Inc()
			return fmt.Errorf("append turn: %w", err)
		}
		s.logger.Debug("Conversation update raced, retrying", "user_id", userID, "session_id", sessionID, "attempt", attempt+1)
	}

	metrics.ContextStoreOperations.WithLabelValues("append", metrics.ResultError).Inc()
	return ErrConflict
}

// ReadLog returns the session log oldest first. It never fails: a missing or
// expired key, an unreachable store and a corrupt payload all read as empty.
func (s *Store) ReadLog(ctx context.Context, userID, sessionID string) []Turn {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := conversationKey(userID, sessionID)
	turns, err := s.load(ctx, s.rdb, key)
	if err != nil {
		s.logger.Warn("Failed to read conversation context", "user_id", userID, "session_id", sessionID, "error", err)
		metrics.ContextStoreOperations.WithLabelValues("read", metrics.ResultError).Inc()
		return []Turn{}
	}
	if len(turns) == 0 {
		metrics.ContextStoreOperations.WithLabelValues("read", metrics.ResultMiss).Inc()
	} else {
		metrics.ContextStoreOperations.WithLabelValues("read", metrics.ResultOK).Inc()
	}
	return turns
}

// Clear deletes the session log immediately.
func (s *Store) Clear(ctx context.Context, userID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.Del(ctx, conversationKey(userID, sessionID)).Err(); err != nil {
		metrics.ContextStoreOperations.WithLabelValues("clear", metrics.ResultError).Inc()
		return fmt.Errorf("clear conversation: %w", err)
	}
	metrics.ContextStoreOperations.WithLabelValues("clear", metrics.ResultOK).Inc()
	return nil
}

// load reads and decodes a log. A missing key is an empty log. A payload that
// does not decode is logged and read as empty so the next append replaces it.
func (s *Store) load(ctx context.Context, c getter, key string) ([]Turn, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, err
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		s.logger.Warn("Discarding undecodable conversation", "key", key, "error", err)
		return []Turn{}, nil
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// Last returns at most n of the newest turns, oldest first.
func Last(turns []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func conversationKey(userID, sessionID string) string {
	return conversationPrefix + userID + ":" + sessionID
}

// sessionFromKey extracts the session id from a conversation key of userID.
// A remainder holding ':' belongs to a user whose id extends userID.
func sessionFromKey(userID, key string) (string, bool) {
	prefix := conversationPrefix + userID + ":"
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	sessionID := strings.TrimPrefix(key, prefix)
	if sessionID == "" || strings.Contains(sessionID, ":") {
		return "", false
	}
	return sessionID, true
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// sessionPattern is the SCAN pattern matching every conversation of userID.
func sessionPattern(userID string) string {
	return conversationPrefix + globEscaper.Replace(userID) + ":*"
}
