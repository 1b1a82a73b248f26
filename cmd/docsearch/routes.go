package main

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/handler"
	searchhandler "github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// handlers groups everything the HTTP surface dispatches to.
type handlers struct {
	ingest    *ingesthandler.Handler
	search    *searchhandler.Handler
	analytics *analytics.Handler
	health    *health.Checker
	metrics   *metrics.Metrics
	// limiter throttles the write endpoints; nil disables it.
	limiter *middleware.Limiter
}

func newLimiter(cfg config.ServerConfig) *middleware.Limiter {
	if cfg.IngestRateLimit <= 0 {
		return nil
	}
	return middleware.NewLimiter(cfg.IngestRateLimit, time.Minute)
}

func routes(cfg *config.Config, h handlers) http.Handler {
	write := func(fn http.HandlerFunc) http.Handler {
		if h.limiter == nil {
			return fn
		}
		return middleware.RateLimit(h.limiter)(fn)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /index", write(h.ingest.Index))
	mux.Handle("POST /index_path", write(h.ingest.IndexPath))
	mux.Handle("POST /index_db", write(h.ingest.IndexDB))
	mux.HandleFunc("GET /stats", h.ingest.Stats)
	mux.Handle("GET /search", middleware.Timeout(cfg.Search.Timeout)(http.HandlerFunc(h.search.Search)))
	mux.HandleFunc("GET /cache/stats", h.search.CacheStats)
	mux.Handle("POST /cache/flush", write(h.search.CacheInvalidate))
	mux.HandleFunc("GET /analytics", h.analytics.Stats)
	mux.Handle("POST /analytics/reset", write(h.analytics.Reset))
	mux.HandleFunc("GET /health/live", h.health.LiveHandler())
	mux.HandleFunc("GET /health/ready", h.health.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	mws := []func(http.Handler) http.Handler{middleware.RequestID}
	if len(cfg.Server.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(cfg.Server.CORSOrigins))
	}
	mws = append(mws, middleware.Metrics(h.metrics))
	return middleware.Chain(mux, mws...)
}
