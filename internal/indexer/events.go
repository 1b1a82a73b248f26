package indexer

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// CommitEventType labels commit announcements on the wire.
const CommitEventType = "index.complete"

// CommitEvent is published on the index.complete topic after each commit.
type CommitEvent struct {
	Origin      string    `json:"origin"`
	Generation  uint64    `json:"generation"`
	DocsAdded   int       `json:"docs_added"`
	Segments    int       `json:"segments"`
	Merged      bool      `json:"merged"`
	Source      string    `json:"source"`
	CommittedAt time.Time `json:"committed_at"`
}

// Ingestion sources used as metric labels.
const (
	SourceAPI      = "api"
	SourceUpload   = "upload"
	SourceDatabase = "database"
	SourceFolder   = "folder"
)

type sourceKey struct{}

// WithSource tags ctx with the ingestion source of the documents it carries.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set by WithSource, defaulting to api.
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return SourceAPI
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// PublishHook returns a commit hook that announces commits on Kafka so other
// replicas can drop cached results. origin identifies this process.
func PublishHook(pub Publisher, origin string, timeout time.Duration) CommitHook {
	logger := slog.Default().With("component", "commit-publisher")
	return func(ctx context.Context, event CommitEvent) {
		event.Origin = origin
		go func() {
			pubCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := pub.Publish(pubCtx, kafka.Event{
				Key:   strconv.FormatUint(event.Generation, 10),
				Type:  CommitEventType,
				Value: event,
			})
			if err != nil {
				logger.Warn("failed to publish commit event", "generation", event.Generation, "error", err)
			}
		}()
	}
}
