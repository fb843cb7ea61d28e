package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khiwniti/beta-bitebase/internal/logging"
)

// RedisConfig holds configuration for Redis connection
type RedisConfig struct {
	URL         string
	PingTimeout time.Duration
}

// RedisClient wraps go-redis with BiteBase-specific stream operations
type RedisClient struct {
	rdb *redis.Client
	cfg RedisConfig
}

// Message represents a message from a Redis Stream
type Message struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// NewRedisClient creates a new Redis client with connection validation
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{
		rdb: rdb,
		cfg: cfg,
	}, nil
}

// Ping checks if Redis is reachable
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish publishes a message to a Redis Stream using XADD
func (c *RedisClient) Publish(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	result, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed: %w", err)
	}

	return result, nil
}

// Subscribe subscribes to a stream using consumer groups with XREADGROUP.
// Messages left pending by an earlier run of the same consumer are delivered
// first. Delivered messages stay pending until acknowledged with Ack. The
// returned channel is closed when ctx is cancelled.
func (c *RedisClient) Subscribe(ctx context.Context, stream, group, consumer string) (<-chan Message, error) {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("xgroup create failed: %w", err)
	}

	msgChan := make(chan Message, 100)

	go c.readLoop(ctx, stream, group, consumer, msgChan)

	return msgChan, nil
}

// readLoop continuously reads messages from the stream
func (c *RedisClient) readLoop(ctx context.Context, stream, group, consumer string, msgChan chan<- Message) {
	defer close(msgChan)
	logger := logging.WithComponent("messaging")

	// "0" walks this consumer's pending entries; ">" reads new ones.
	start := "0"
	for {
		if ctx.Err() != nil {
			return
		}

		results, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, start},
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Redis stream read failed", "stream", stream, "error", err)
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		delivered := 0
		for _, result := range results {
			for _, msg := range result.Messages {
				select {
				case msgChan <- Message{ID: msg.ID, Stream: stream, Values: msg.Values}:
				case <-ctx.Done():
					return
				}
				delivered++
				if start != ">" {
					start = msg.ID
				}
			}
		}
		if start != ">" && delivered == 0 {
			start = ">"
		}
	}
}

// Ack acknowledges a message delivered by Subscribe
func (c *RedisClient) Ack(ctx context.Context, stream, group, id string) error {
	if err := c.rdb.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("xack failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// RawClient returns the underlying go-redis client for advanced operations
func (c *RedisClient) RawClient() *redis.Client {
	return c.rdb
}

// IsConnected checks if the client is connected to Redis
func (c *RedisClient) IsConnected(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// WithRetry executes fn up to maxRetries times with a linear backoff
func (c *RedisClient) WithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < maxRetries-1 && !sleepCtx(ctx, time.Duration(i+1)*100*time.Millisecond) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
