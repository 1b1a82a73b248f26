package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Publisher delivers events to the analytics topic; *kafka.Producer
// implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector counts events in the local Aggregator at once and forwards
// them to Kafka from a background loop.
type Collector struct {
	publisher  Publisher
	aggregator *Aggregator
	origin     string
	events     chan any
	dropped    atomic.Int64
	logger     *slog.Logger
	done       chan struct{}
}

// NewCollector creates a collector. publisher and aggregator may be nil.
func NewCollector(publisher Publisher, aggregator *Aggregator, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher:  publisher,
		aggregator: aggregator,
		events:     make(chan any, bufferSize),
		logger:     slog.Default().With("component", "analytics-collector"),
		done:       make(chan struct{}),
	}
}

// WithOrigin stamps published events with the replica ID so the replica
// can skip them when they come back from the topic. Call before Start.
func (c *Collector) WithOrigin(origin string) *Collector {
	c.origin = origin
	return c
}

// Start launches the publishing loop and returns.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.events:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drain()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.events), "kafka", c.publisher != nil)
}

// Track records event and queues it for publishing without blocking. When
// the queue is full the event is only counted locally.
func (c *Collector) Track(event any) {
	if c.aggregator != nil {
		c.aggregator.Record(event)
	}
	if c.publisher == nil {
		return
	}
	select {
	case c.events <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics queue full, events dropped", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events never reached the publisher.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be published.
// Start must have been called.
func (c *Collector) Close() {
	close(c.events)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event any) {
	var msg kafka.Event
	switch e := event.(type) {
	case SearchEvent:
		e.Origin = c.origin
		msg = kafka.Event{Key: e.Query, Type: string(e.Type), Value: e}
	case IndexEvent:
		e.Origin = c.origin
		msg = kafka.Event{Key: e.Source, Type: string(e.Type), Value: e}
	default:
		return
	}
	if err := c.publisher.Publish(ctx, msg); err != nil {
		c.logger.Warn("failed to publish analytics event", "type", msg.Type, "error", err)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
