// Package kafka carries JSON events between replicas over segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// MessageHandler processes one message. A returned error is retried a few
// times before the message is skipped.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads a topic as a member of a consumer group, committing each
// message after its handler returns.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.Policy
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic, starting at the newest
// offset when the group has none committed.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	}), handler, slog.Default().With("component", "kafka-consumer", "topic", topic, "group", cfg.ConsumerGroup))
}

func newConsumer(reader *kafka.Reader, handler MessageHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  reader,
		handler: handler,
		retry: resilience.Policy{
			MaxAttempts: 3,
			Backoff:     resilience.Backoff{Initial: 50 * time.Millisecond, Max: time.Second},
		},
		logger: logger,
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")
	fetchFailures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			fetchFailures++
			delay := c.retry.Backoff.Delay(fetchFailures)
			c.logger.Warn("fetch failed", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		fetchFailures = 0
		c.dispatch(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// dispatch runs the handler with retries. A message that still fails is
// logged and dropped so it cannot block the partition.
func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	err := resilience.Retry(ctx, "kafka-handle", c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil {
		c.logger.Error("dropping message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
