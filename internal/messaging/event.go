package messaging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event sources
const (
	SourceCopilot = "copilot"
	SourceBackend = "backend"
)

// Default stream names
const (
	StreamChatTurns = "bitebase:chat:turns"
	dlqSuffix       = ":dlq"
)

// TurnEvent announces one completed conversation turn to other services
type TurnEvent struct {
	ID               string                 `json:"id"`
	Source           string                 `json:"source"`
	UserID           string                 `json:"user_id"`
	SessionID        string                 `json:"session_id"`
	MessageID        string                 `json:"message_id"`
	UserMessage      string                 `json:"user_message"`
	AssistantMessage string                 `json:"assistant_message"`
	Context          map[string]interface{} `json:"context,omitempty"`
	Created          int64                  `json:"created"`
}

var newEventID = func() string { return uuid.NewString() }

// NewTurnEvent creates a turn event with generated ID and timestamp
func NewTurnEvent(source, userID, sessionID, messageID, userMessage, assistantMessage string, ctx map[string]interface{}) TurnEvent {
	return TurnEvent{
		ID:               newEventID(),
		Source:           source,
		UserID:           userID,
		SessionID:        sessionID,
		MessageID:        messageID,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		Context:          ctx,
		Created:          time.Now().Unix(),
	}
}

// ToRedisValues converts TurnEvent to Redis stream values map
func (e TurnEvent) ToRedisValues() map[string]interface{} {
	contextJSON, _ := json.Marshal(e.Context)

	return map[string]interface{}{
		"id":                e.ID,
		"source":            e.Source,
		"user_id":           e.UserID,
		"session_id":        e.SessionID,
		"message_id":        e.MessageID,
		"user_message":      e.UserMessage,
		"assistant_message": e.AssistantMessage,
		"context":           string(contextJSON),
		"created":           strconv.FormatInt(e.Created, 10),
	}
}

// TurnEventFromRedisValues creates TurnEvent from Redis stream values
func TurnEventFromRedisValues(values map[string]interface{}) (*TurnEvent, error) {
	e := &TurnEvent{
		ID:               stringValue(values, "id"),
		Source:           stringValue(values, "source"),
		UserID:           stringValue(values, "user_id"),
		SessionID:        stringValue(values, "session_id"),
		MessageID:        stringValue(values, "message_id"),
		UserMessage:      stringValue(values, "user_message"),
		AssistantMessage: stringValue(values, "assistant_message"),
	}
	if e.UserID == "" {
		return nil, fmt.Errorf("turn event %q has no user_id", e.ID)
	}

	if v := stringValue(values, "context"); v != "" && v != "null" {
		if err := json.Unmarshal([]byte(v), &e.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}

	if v := stringValue(values, "created"); v != "" {
		created, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created: %w", err)
		}
		e.Created = created
	}

	return e, nil
}

// DeadLetterStreamName returns the stream that collects failed events of stream
func DeadLetterStreamName(stream string) string {
	return stream + dlqSuffix
}

func stringValue(values map[string]interface{}, key string) string {
	v, _ := values[key].(string)
	return v
}
