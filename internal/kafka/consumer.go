package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	Reader MessageReader
	Topic  string
	Logger *logger.Logger
	// RetryBackoff is the first pause after a failure; it doubles up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{
		Reader:       reader,
		Topic:        topic,
		Logger:       log,
		RetryBackoff: 500 * time.Millisecond,
		MaxBackoff:   30 * time.Second,
	}
}

// Start consumes scan events until ctx is cancelled. A message is committed only after handler
// succeeds, and a failing handler is retried so later commits never skip it. Undecodable
// messages are committed and skipped.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, event models.ScanEvent) error) error {
	c.Logger.Info("KAFKA", fmt.Sprintf("Scan event consumer started on %s", c.Topic))

	fetchBackoff := c.RetryBackoff
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			if !sleepCtx(ctx, fetchBackoff) {
				return nil
			}
			fetchBackoff = c.nextBackoff(fetchBackoff)
			continue
		}
		fetchBackoff = c.RetryBackoff

		event, err := decodeScanEvent(msg)
		if err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Skipping malformed scan event at offset %d: %v", msg.Offset, err))
		} else if !c.handleWithRetry(ctx, msg, event, handler) {
			return nil
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// The message is redelivered after a rebalance; the handler is idempotent on eventId.
			c.Logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d: %v", msg.Offset, err))
		}
	}
}

// handleWithRetry reports false when ctx ended before handler succeeded.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, event models.ScanEvent, handler func(ctx context.Context, event models.ScanEvent) error) bool {
	backoff := c.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, event)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.Logger.Error("KAFKA", fmt.Sprintf("Failed to handle scan event %s at offset %d (attempt %d), retrying in %s: %v",
			event.EventID, msg.Offset, attempt, backoff, err))
		if !sleepCtx(ctx, backoff) {
			return false
		}
		backoff = c.nextBackoff(backoff)
	}
}

func (c *Consumer) nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	d *= 2
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func decodeScanEvent(msg kafka.Message) (models.ScanEvent, error) {
	var event models.ScanEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, err
	}
	if event.UniqueID == "" {
		event.UniqueID = string(msg.Key)
	}
	if event.EventID == "" {
		return event, errors.New("scan event without eventId")
	}
	return event, nil
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
