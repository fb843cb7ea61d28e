package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadLetterQueue keeps turn events that could not be processed
type DeadLetterQueue struct {
	client *RedisClient
	stream string
}

// DeadLetter represents an event that failed processing
type DeadLetter struct {
	DLQID      string
	Event      TurnEvent
	Error      string
	RetryCount int
	DeadAt     int64
}

// NewDeadLetterQueue creates a DLQ for the given source stream
func NewDeadLetterQueue(client *RedisClient, sourceStream string) *DeadLetterQueue {
	return &DeadLetterQueue{client: client, stream: DeadLetterStreamName(sourceStream)}
}

// Stream returns the dead-letter stream name
func (d *DeadLetterQueue) Stream() string {
	return d.stream
}

// Send stores a failed event in the DLQ
func (d *DeadLetterQueue) Send(ctx context.Context, event TurnEvent, errorMsg string, retryCount int) error {
	values := event.ToRedisValues()
	values["error"] = errorMsg
	values["retry_count"] = strconv.Itoa(retryCount)
	values["dead_at"] = strconv.FormatInt(time.Now().Unix(), 10)

	_, err := d.client.Publish(ctx, d.stream, values)
	return err
}

// List returns up to count dead letters, newest first
func (d *DeadLetterQueue) List(ctx context.Context, count int) ([]DeadLetter, error) {
	results, err := d.client.RawClient().XRevRangeN(ctx, d.stream, "+", "-", int64(count)).Result()
	if errors.Is(err, redis.Nil) {
		return []DeadLetter{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xrevrange failed: %w", err)
	}

	letters := make([]DeadLetter, 0, len(results))
	for _, msg := range results {
		letter, err := parseDeadLetter(msg)
		if err != nil {
			continue
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

// Delete removes a dead letter
func (d *DeadLetterQueue) Delete(ctx context.Context, dlqID string) error {
	return d.client.RawClient().XDel(ctx, d.stream, dlqID).Err()
}

// Count returns the number of dead letters
func (d *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return d.client.RawClient().XLen(ctx, d.stream).Result()
}

func parseDeadLetter(msg redis.XMessage) (DeadLetter, error) {
	event, err := TurnEventFromRedisValues(msg.Values)
	if err != nil {
		return DeadLetter{}, err
	}
	letter := DeadLetter{
		DLQID: msg.ID,
		Event: *event,
		Error: stringValue(msg.Values, "error"),
	}
	letter.RetryCount, _ = strconv.Atoi(stringValue(msg.Values, "retry_count"))
	letter.DeadAt, _ = strconv.ParseInt(stringValue(msg.Values, "dead_at"), 10, 64)
	return letter, nil
}
