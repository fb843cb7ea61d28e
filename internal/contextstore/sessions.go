package contextstore

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const DefaultPageSize = 50

// SessionSummary describes one live conversation of a user.
type SessionSummary struct {
	SessionID        string `json:"session_id"`
	Turns            int    `json:"turns"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

// Sessions lists the user's live conversations, sorted by session id.
func (s *Store) Sessions(ctx context.Context, userID string) ([]SessionSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pattern := sessionPattern(userID)
	var summaries []SessionSummary

	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		sessionID, ok := sessionFromKey(userID, key)
		if !ok {
			continue
		}
		turns, err := s.load(ctx, s.rdb, key)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		if len(turns) == 0 {
			continue
		}
		ttl, err := s.rdb.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("ttl session %s: %w", sessionID, err)
		}
		summaries = append(summaries, SessionSummary{
			SessionID:        sessionID,
			Turns:            len(turns),
			ExpiresInSeconds: int64(ttl / time.Second),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].SessionID < summaries[j].SessionID })
	return summaries, nil
}

// Page is one slice of a conversation log.
type Page struct {
	Turns      []Turn `json:"turns"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

// Paginate slices a log into 1-based pages. Out of range pages are empty.
func Paginate(turns []Turn, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	p := Page{Turns: []Turn{}, TotalCount: len(turns), Page: page, PageSize: pageSize}
	start := (page - 1) * pageSize
	if start >= len(turns) {
		return p
	}
	end := start + pageSize
	if end > len(turns) {
		end = len(turns)
	}
	p.Turns = turns[start:end]
	return p
}
