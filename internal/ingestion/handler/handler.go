// Package handler serves the ingestion endpoints: single documents as JSON,
// multipart uploads and walks of the configured database.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/dbwalk"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

const defaultMaxUpload = 32 << 20

// DatabaseSource walks a database into documents. *dbwalk.Walker
// implements it.
type DatabaseSource interface {
	Walk(ctx context.Context) (*dbwalk.Result, error)
}

// Tracker receives analytics events. *analytics.Collector implements it.
type Tracker interface {
	Track(event any)
}

type Handler struct {
	engine    *indexer.Engine
	registry  *extract.Registry
	db        DatabaseSource
	tracker   Tracker
	maxUpload int64
	logger    *slog.Logger
}

// New builds the handler. db and tracker may be nil.
func New(engine *indexer.Engine, registry *extract.Registry, db DatabaseSource, tracker Tracker, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		engine:    engine,
		registry:  registry,
		db:        db,
		tracker:   tracker,
		maxUpload: maxUpload,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Index commits one JSON document.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "index", indexer.SourceAPI)
	defer h.endSpan(ctx, span)
	log := logger.FromContext(ctx)

	var req ingestion.IndexRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIndexRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, ingestion.ErrorResponse{
				Status:  ingestion.StatusError,
				Message: "validation failed",
				Fields:  validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.engine.AddDocument(ctx, indexer.Document{Content: req.Content, Filename: req.Filename})
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("indexing failed", "error", err, "status_code", status)
		h.writeError(w, status, indexFailureMessage(err))
		return
	}
	log.Info("document indexed", "doc_id", id, "filename", req.Filename)
	h.track(ctx, indexer.SourceAPI, 1, 0, start)
	h.writeJSON(w, http.StatusCreated, ingestion.IndexResponse{
		Status:   ingestion.StatusSuccess,
		Message:  "Document indexed successfully",
		Document: req.Content,
		DocID:    id,
	})
}

// IndexPath extracts and indexes the files of a multipart upload. Files
// that cannot be extracted are skipped and reported in the summary.
func (h *Handler) IndexPath(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "index_path", indexer.SourceUpload)
	defer h.endSpan(ctx, span)
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		h.writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	summary := ingestion.UploadSummary{Warnings: []string{}}
	docs := make([]indexer.Document, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			summary.Failed++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", fh.Filename, err))
			continue
		}
		text, err := h.registry.ExtractFile(fh.Filename, f)
		f.Close()
		switch {
		case err == nil:
			docs = append(docs, indexer.Document{Content: text, Filename: fh.Filename})
		case errors.Is(err, apperrors.ErrExtractionEmpty), errors.Is(err, apperrors.ErrUnsupportedFormat):
			summary.Skipped++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", fh.Filename, err))
			log.Warn("skipping uploaded file", "file", fh.Filename, "error", err)
		default:
			summary.Failed++
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", fh.Filename, err))
			log.Warn("failed to extract uploaded file", "file", fh.Filename, "error", err)
		}
	}

	res, ok := h.ingest(ctx, w, docs)
	if !ok {
		return
	}
	summary.Indexed = res.Indexed
	summary.Failed += res.Failed
	summary.Generation = res.Generation
	h.track(ctx, indexer.SourceUpload, res.Indexed, summary.Skipped+summary.Failed, start)
	h.writeJSON(w, http.StatusOK, summary)
}

// IndexDB walks the configured database and indexes one document per cell.
func (h *Handler) IndexDB(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "index_db", indexer.SourceDatabase)
	defer h.endSpan(ctx, span)
	if h.db == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	walked, err := h.db.Walk(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("database walk failed", "error", err)
		h.writeError(w, http.StatusBadGateway, "reading database failed")
		return
	}
	res, ok := h.ingest(ctx, w, walked.Documents)
	if !ok {
		return
	}
	h.track(ctx, indexer.SourceDatabase, res.Indexed, res.Failed, start)
	h.writeJSON(w, http.StatusOK, ingestion.DatabaseSummary{
		Tables:       walked.Tables,
		Documents:    res.Indexed,
		Failed:       res.Failed,
		FailedTables: walked.FailedTables,
		Generation:   res.Generation,
	})
}

// Stats reports the committed state of the index.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":         h.engine.Store().Stats(),
		"commit_policy": h.engine.Policy(),
	})
}

// ingest hands docs to the engine. When nothing could be committed the
// error response is written and ok is false.
func (h *Handler) ingest(ctx context.Context, w http.ResponseWriter, docs []indexer.Document) (indexer.BatchResult, bool) {
	res, err := h.engine.Ingest(ctx, docs)
	if err != nil {
		log := logger.FromContext(ctx)
		if res.Indexed == 0 {
			status := apperrors.HTTPStatusCode(err)
			log.Error("bulk ingestion failed", "error", err, "docs", len(docs), "status_code", status)
			h.writeError(w, status, indexFailureMessage(err))
			return res, false
		}
		log.Warn("bulk ingestion partially failed", "error", err, "indexed", res.Indexed, "failed", res.Failed)
	}
	return res, true
}

func (h *Handler) track(ctx context.Context, source string, docs, skipped int, start time.Time) {
	if h.tracker == nil {
		return
	}
	h.tracker.Track(analytics.IndexEvent{
		Type:       analytics.EventIndex,
		Source:     source,
		Documents:  docs,
		Skipped:    skipped,
		Generation: h.engine.Store().Generation(),
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
		RequestID:  middleware.GetRequestID(ctx),
	})
}

func (h *Handler) startSpan(r *http.Request, name, source string) (context.Context, *tracing.Span) {
	ctx := logger.WithAttrs(indexer.WithSource(r.Context(), source), "source", source)
	return tracing.Start(ctx, name, middleware.GetRequestID(ctx))
}

func (h *Handler) endSpan(ctx context.Context, span *tracing.Span) {
	span.End()
	span.Log(ctx, logger.FromContext(ctx))
}

func indexFailureMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrLockConflict):
		return "index is locked by another writer, retry later"
	case errors.Is(err, apperrors.ErrIOFailure):
		return "index storage failure"
	default:
		return "indexing failed"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ingestion.ErrorResponse{Status: ingestion.StatusError, Message: message})
}
