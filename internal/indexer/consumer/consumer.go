// Package consumer reacts to index.complete events published by other
// replicas sharing the index directory.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// CommitConsumer wraps a Kafka consumer on the index.complete topic.
type CommitConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *CommitConsumer {
	return &CommitConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "commit-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (cc *CommitConsumer) Start(ctx context.Context) error {
	cc.logger.Info("commit consumer starting")
	return cc.consumer.Start(ctx)
}

// HandleCommit returns a handler calling onCommit for every commit made by
// another process. Events from origin itself and undecodable messages are
// skipped.
func HandleCommit(origin string, onCommit func(ctx context.Context, event indexer.CommitEvent)) kafka.MessageHandler {
	logger := slog.Default().With("component", "commit-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.CommitEvent](value)
		if err != nil {
			logger.Error("failed to decode commit event", "error", err, "key", string(key))
			return nil
		}
		if event.Origin == origin {
			return nil
		}
		logger.Debug("remote commit observed",
			"origin", event.Origin,
			"generation", event.Generation,
			"docs_added", event.DocsAdded,
		)
		onCommit(ctx, event)
		return nil
	}
}
