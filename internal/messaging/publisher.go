package messaging

import (
	"context"
	"fmt"
)

// TurnPublisher writes turn events to a stream
type TurnPublisher struct {
	client *RedisClient
	stream string
}

// NewTurnPublisher creates a publisher for stream, StreamChatTurns when empty
func NewTurnPublisher(client *RedisClient, stream string) *TurnPublisher {
	if stream == "" {
		stream = StreamChatTurns
	}
	return &TurnPublisher{client: client, stream: stream}
}

// PublishTurn appends the event and returns its stream entry ID
func (p *TurnPublisher) PublishTurn(ctx context.Context, event TurnEvent) (string, error) {
	id, err := p.client.Publish(ctx, p.stream, event.ToRedisValues())
	if err != nil {
		return "", fmt.Errorf("failed to publish turn %s: %w", event.ID, err)
	}
	return id, nil
}
