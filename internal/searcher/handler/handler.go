// Package handler serves GET /search and the cache administration endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, q *parser.Query, limit int) (*executor.SearchResult, error)
}

// GenerationSource reports the latest committed index generation.
// *store.Store implements it.
type GenerationSource interface {
	LatestGeneration() (uint64, error)
}

type Tracker interface {
	Track(event any)
}

// Options configure query defaults.
type Options struct {
	DefaultField string
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	parser      *parser.Parser
	executor    SearchExecutor
	generations GenerationSource
	cache       *cache.QueryCache
	tracker     Tracker
	metrics     *metrics.Metrics
	opts        Options
	logger      *slog.Logger
}

// New builds the handler. queryCache, tracker and m may be nil.
func New(
	p *parser.Parser,
	exec SearchExecutor,
	generations GenerationSource,
	queryCache *cache.QueryCache,
	tracker Tracker,
	m *metrics.Metrics,
	opts Options,
) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = executor.DefaultLimit
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}
	return &Handler{
		parser:      p,
		executor:    exec,
		generations: generations,
		cache:       queryCache,
		tracker:     tracker,
		metrics:     m,
		opts:        opts,
		logger:      slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search", middleware.GetRequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	raw := r.URL.Query().Get("q")
	limit := h.opts.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, h.opts.MaxResults)
	}

	if strings.TrimSpace(raw) == "" {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{Query: raw, Results: []executor.ScoredResult{}})
		return
	}

	_, parseSpan := tracing.Child(ctx, "parse")
	q, err := h.parser.Parse(raw, h.opts.DefaultField)
	parseSpan.End()
	if err != nil {
		h.countQuery("malformed")
		if errors.Is(err, apperrors.ErrMalformedQuery) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error("query parsing failed", "query", raw, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	result, cacheHit, err := h.execute(ctx, q, limit)
	if err != nil {
		h.countQuery("error")
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		log.Error("search execution failed", "query", raw, "error", err, "status_code", status)
		h.writeError(w, status, "search failed")
		return
	}
	// Cached results may come from an equivalent query spelled differently.
	resp := *result
	resp.Query = raw

	latency := time.Since(start)
	h.observe(resp, cacheHit, latency)
	log.Info("search completed",
		"query", raw,
		"parsed", q.String(),
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		eventType := analytics.EventCacheMiss
		switch {
		case resp.TotalHits == 0:
			eventType = analytics.EventZeroResult
		case cacheHit:
			eventType = analytics.EventCacheHit
		}
		h.tracker.Track(analytics.SearchEvent{
			Type:       eventType,
			Query:      raw,
			Clauses:    len(q.Clauses),
			TotalHits:  resp.TotalHits,
			Returned:   len(resp.Results),
			LatencyMs:  latency.Milliseconds(),
			CacheHit:   cacheHit,
			Generation: resp.Generation,
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, &resp)
}

// execute consults the cache under the latest generation, so a commit
// never serves stale results.
func (h *Handler) execute(ctx context.Context, q *parser.Query, limit int) (*executor.SearchResult, bool, error) {
	if h.cache == nil || h.generations == nil {
		res, err := h.executor.Execute(ctx, q, limit)
		return res, false, err
	}
	gen, err := h.generations.LatestGeneration()
	if err != nil {
		return nil, false, err
	}
	key := cache.Key(q, limit, gen)
	_, span := tracing.Child(ctx, "cache")
	defer span.End()
	span.SetAttr("generation", gen)
	return h.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, q, limit)
	})
}

func (h *Handler) observe(res executor.SearchResult, cacheHit bool, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	status := "miss"
	if cacheHit {
		status = "hit"
		h.metrics.CacheHitsTotal.Inc()
	} else if h.cache != nil {
		h.metrics.CacheMissesTotal.Inc()
	}
	resultType := "hit"
	if res.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(status).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.Observe(float64(len(res.Results)))
}

func (h *Handler) countQuery(resultType string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"remote":   h.cache.Remote(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
