package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventZeroResult EventType = "zero_result"
	EventIndex      EventType = "index"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Clauses    int       `json:"clauses"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Origin     string    `json:"origin,omitempty"`
}

// IndexEvent summarises one ingestion request.
type IndexEvent struct {
	Type       EventType `json:"type"`
	Source     string    `json:"source"`
	Documents  int       `json:"documents"`
	Skipped    int       `json:"skipped"`
	Generation uint64    `json:"generation"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Origin     string    `json:"origin,omitempty"`
}
