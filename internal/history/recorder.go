package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/messaging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

const (
	defaultRecordRetries = 3
	defaultReplayBatch   = 100
)

// RecorderConfig names the stream a Recorder consumes.
type RecorderConfig struct {
	Stream     string
	Group      string
	Consumer   string
	MaxRetries int
}

// Recorder saves turn events published by the copilot into chat history.
// Events that cannot be saved go to the stream's dead-letter queue.
type Recorder struct {
	client *messaging.RedisClient
	store  *Store
	dlq    *messaging.DeadLetterQueue
	cfg    RecorderConfig
	logger *slog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(client *messaging.RedisClient, store *Store, cfg RecorderConfig) *Recorder {
	if cfg.Stream == "" {
		cfg.Stream = messaging.StreamChatTurns
	}
	if cfg.Group == "" {
		cfg.Group = "chat-history"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "backend"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRecordRetries
	}
	return &Recorder{
		client: client,
		store:  store,
		dlq:    messaging.NewDeadLetterQueue(client, cfg.Stream),
		cfg:    cfg,
		logger: logging.WithComponent("recorder"),
	}
}

// DeadLetters returns the recorder's dead-letter queue.
func (r *Recorder) DeadLetters() *messaging.DeadLetterQueue {
	return r.dlq
}

// Run consumes events until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	msgs, err := r.client.Subscribe(ctx, r.cfg.Stream, r.cfg.Group, r.cfg.Consumer)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.cfg.Stream, err)
	}
	r.logger.Info("Recording turn events", "stream", r.cfg.Stream, "group", r.cfg.Group)

	for msg := range msgs {
		if !r.handle(ctx, msg) {
			continue
		}
		if err := r.client.Ack(ctx, msg.Stream, r.cfg.Group, msg.ID); err != nil {
			r.logger.Warn("Failed to acknowledge turn event", "id", msg.ID, "error", err)
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// handle records one event. It reports whether the event is settled, that
// is saved, dead-lettered or undecodable, and may be acknowledged.
func (r *Recorder) handle(ctx context.Context, msg messaging.Message) bool {
	event, err := messaging.TurnEventFromRedisValues(msg.Values)
	if err != nil {
		metrics.TurnEvents.WithLabelValues("invalid").Inc()
		r.logger.Warn("Dropping undecodable turn event", "id", msg.ID, "error", err)
		return true
	}

	err = r.client.WithRetry(ctx, r.cfg.MaxRetries, func() error {
		_, err := r.store.SaveMessage(ctx, messageFromEvent(*event))
		return err
	})
	if err == nil {
		metrics.TurnEvents.WithLabelValues("recorded").Inc()
		return true
	}

	r.logger.Error("Failed to record turn event", "event_id", event.ID, "user_id", event.UserID, "error", err)
	if dlqErr := r.dlq.Send(ctx, *event, err.Error(), r.cfg.MaxRetries); dlqErr != nil {
		r.logger.Error("Failed to dead-letter turn event", "event_id", event.ID, "error", dlqErr)
		return false
	}
	metrics.TurnEvents.WithLabelValues("dead_lettered").Inc()
	return true
}

// ReplayDeadLetters retries up to batch dead letters and removes the ones
// that were saved. It returns how many were replayed.
func (r *Recorder) ReplayDeadLetters(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultReplayBatch
	}
	letters, err := r.dlq.List(ctx, batch)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, letter := range letters {
		if _, err := r.store.SaveMessage(ctx, messageFromEvent(letter.Event)); err != nil {
			r.logger.Warn("Dead letter replay failed", "dlq_id", letter.DLQID, "error", err)
			continue
		}
		if err := r.dlq.Delete(ctx, letter.DLQID); err != nil {
			return replayed, fmt.Errorf("failed to delete dead letter %s: %w", letter.DLQID, err)
		}
		replayed++
		metrics.TurnEvents.WithLabelValues("replayed").Inc()
	}
	if replayed > 0 {
		r.logger.Info("Replayed dead letters", "count", replayed)
	}
	return replayed, nil
}

func messageFromEvent(e messaging.TurnEvent) Message {
	ts := time.Unix(e.Created, 0).UTC()
	if e.Created == 0 {
		ts = time.Time{}
	}
	id := e.MessageID
	if id == "" {
		id = e.ID
	}
	return Message{
		MessageID:   id,
		UserID:      e.UserID,
		UserMessage: e.UserMessage,
		AIResponse:  e.AssistantMessage,
		Context:     e.Context,
		Timestamp:   ts,
	}
}
