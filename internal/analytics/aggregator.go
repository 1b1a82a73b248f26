// Package analytics tracks search and ingestion events: it keeps running
// aggregates in process and publishes the raw events to Kafka so every
// replica can report cluster-wide figures.
package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

const (
	latencyWindow = 10000
	// DefaultTop is how many queries each ranking lists by default.
	DefaultTop = 10
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	TotalDocsIndexed  int64            `json:"total_docs_indexed"`
	DocsSkipped       int64            `json:"docs_skipped"`
	IndexRequests     int64            `json:"index_requests"`
	DocsBySource      map[string]int64 `json:"docs_by_source"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	LastGeneration    uint64           `json:"last_generation"`
	Since             time.Time        `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into counters. Latency percentiles cover the
// most recent searches only.
type Aggregator struct {
	mu            sync.Mutex
	searches      int64
	cacheHits     int64
	zeroResults   int64
	indexRequests int64
	docsIndexed   int64
	docsSkipped   int64
	bySource      map[string]int64
	latencies     []int64
	next          int
	queries       map[string]int64
	zeroQueries   map[string]int64
	generation    uint64
	since         time.Time
	logger        *slog.Logger
}

func NewAggregator() *Aggregator {
	a := &Aggregator{logger: slog.Default().With("component", "analytics-aggregator")}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.searches, a.cacheHits, a.zeroResults = 0, 0, 0
	a.indexRequests, a.docsIndexed, a.docsSkipped = 0, 0, 0
	a.bySource = make(map[string]int64)
	a.latencies = make([]int64, 0, 1024)
	a.next = 0
	a.queries = make(map[string]int64)
	a.zeroQueries = make(map[string]int64)
	a.generation = 0
	a.since = time.Now().UTC()
}

// Reset clears every aggregate.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

// Record folds one event into the aggregates. Unknown types are ignored.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case *SearchEvent:
		a.recordSearch(*e)
	case IndexEvent:
		a.recordIndex(e)
	case *IndexEvent:
		a.recordIndex(*e)
	}
}

// HandleEvent feeds events published by other replicas into agg. Events
// stamped with origin are this replica's own and already counted.
func HandleEvent(agg *Aggregator, origin string) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		head, err := kafka.DecodeJSON[struct {
			Type   EventType `json:"type"`
			Origin string    `json:"origin"`
		}](value)
		if err != nil {
			agg.logger.Warn("undecodable analytics event", "error", err)
			return nil
		}
		if origin != "" && head.Origin == origin {
			return nil
		}
		if head.Type == EventIndex {
			if event, err := kafka.DecodeJSON[IndexEvent](value); err == nil {
				agg.recordIndex(event)
			}
			return nil
		}
		if event, err := kafka.DecodeJSON[SearchEvent](value); err == nil {
			agg.recordSearch(event)
		}
		return nil
	}
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.searches++
	if event.CacheHit {
		a.cacheHits++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	a.queries[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroQueries[event.Query]++
	}
	a.generation = max(a.generation, event.Generation)
}

func (a *Aggregator) recordIndex(event IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.indexRequests++
	a.docsIndexed += int64(event.Documents)
	a.docsSkipped += int64(event.Skipped)
	if event.Source != "" {
		a.bySource[event.Source] += int64(event.Documents)
	}
	a.generation = max(a.generation, event.Generation)
}

// Stats snapshots the aggregates, listing at most top queries per ranking.
func (a *Aggregator) Stats(top int) AggregatedStats {
	if top <= 0 {
		top = DefaultTop
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:     a.searches,
		TotalDocsIndexed:  a.docsIndexed,
		DocsSkipped:       a.docsSkipped,
		IndexRequests:     a.indexRequests,
		DocsBySource:      make(map[string]int64, len(a.bySource)),
		CacheHits:         a.cacheHits,
		CacheMisses:       a.searches - a.cacheHits,
		ZeroResultCount:   a.zeroResults,
		TopQueries:        topN(a.queries, top),
		ZeroResultQueries: topN(a.zeroQueries, top),
		LastGeneration:    a.generation,
		Since:             a.since,
	}
	for source, n := range a.bySource {
		stats.DocsBySource[source] = n
	}
	if n := len(a.latencies); n > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(n)
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if minutes := time.Since(a.since).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(a.searches) / minutes
	}
	return stats
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []int64, pct int) int64 {
	idx := (pct*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
