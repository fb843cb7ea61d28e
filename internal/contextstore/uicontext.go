package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const uiContextPrefix = "copilot_context:"

// SaveContext stores the UI context a client reported for a session. It
// expires after the store TTL like the conversation itself.
func (s *Store) SaveContext(ctx context.Context, userID, sessionID string, uiContext map[string]any) error {
	data, err := json.Marshal(uiContext)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.rdb.SetEx(ctx, uiContextKey(userID, sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

// LoadContext returns the last stored UI context, or nil when none is live.
func (s *Store) LoadContext(ctx context.Context, userID, sessionID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.rdb.Get(ctx, uiContextKey(userID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return out, nil
}

func uiContextKey(userID, sessionID string) string {
	return uiContextPrefix + userID + ":" + sessionID
}
