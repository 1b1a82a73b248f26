// Package indexer drives the index store for ingestion: it acquires the
// write lock with bounded retries, applies the configured commit policy and
// notifies commit hooks.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// Document is the unit of ingestion.
type Document struct {
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}

// BatchResult summarises an ingestion call.
type BatchResult struct {
	DocIDs     []uint64 `json:"doc_ids"`
	Indexed    int      `json:"indexed"`
	Failed     int      `json:"failed"`
	Generation uint64   `json:"generation"`
}

// CommitHook runs after every successful commit. Hooks must not block for
// long; the context is never cancelled by the ingest request.
type CommitHook func(ctx context.Context, event CommitEvent)

type Engine struct {
	store    *store.Store
	policy   string
	lockWait time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	hooksMu sync.RWMutex
	hooks   []CommitHook
}

// NewEngine wraps st. m may be nil.
func NewEngine(st *store.Store, cfg config.IndexConfig, m *metrics.Metrics) *Engine {
	policy := cfg.CommitPolicy
	if policy == "" {
		policy = config.CommitPerDocument
	}
	e := &Engine{
		store:    st,
		policy:   policy,
		lockWait: cfg.LockWaitTimeout,
		metrics:  m,
		logger:   slog.Default().With("component", "indexer"),
	}
	e.updateGauges()
	return e
}

func (e *Engine) Store() *store.Store {
	return e.store
}

// Policy returns the commit policy used by Ingest.
func (e *Engine) Policy() string {
	return e.policy
}

// OnCommit registers a hook.
func (e *Engine) OnCommit(hook CommitHook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, hook)
}

// AddDocument indexes doc and commits immediately.
func (e *Engine) AddDocument(ctx context.Context, doc Document) (uint64, error) {
	res, err := e.commitBatch(ctx, []Document{doc})
	if err != nil {
		return 0, err
	}
	return res.DocIDs[0], nil
}

// AddBatch indexes docs with a single writer and a single commit. Either
// every document becomes visible or none does.
func (e *Engine) AddBatch(ctx context.Context, docs []Document) (BatchResult, error) {
	if len(docs) == 0 {
		return BatchResult{DocIDs: []uint64{}, Generation: e.store.Generation()}, nil
	}
	return e.commitBatch(ctx, docs)
}

// Ingest indexes docs according to the commit policy. Under per_document a
// failing document does not stop the others; the returned error joins the
// individual failures.
func (e *Engine) Ingest(ctx context.Context, docs []Document) (BatchResult, error) {
	if e.policy == config.CommitBatch {
		res, err := e.AddBatch(ctx, docs)
		if err != nil {
			res.Failed = len(docs)
		}
		return res, err
	}
	res := BatchResult{DocIDs: make([]uint64, 0, len(docs))}
	var errs []error
	for i, doc := range docs {
		id, err := e.AddDocument(ctx, doc)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("document %d: %w", i, err))
			if ctx.Err() != nil {
				res.Failed += len(docs) - i - 1
				errs = append(errs, ctx.Err())
				break
			}
			continue
		}
		res.DocIDs = append(res.DocIDs, id)
		res.Indexed++
	}
	res.Generation = e.store.Generation()
	return res, errors.Join(errs...)
}

func (e *Engine) commitBatch(ctx context.Context, docs []Document) (BatchResult, error) {
	_, lockSpan := tracing.Child(ctx, "open_writer")
	w, err := e.openWriter(ctx)
	lockSpan.End()
	if err != nil {
		return BatchResult{}, err
	}
	defer w.Close()

	_, span := tracing.Child(ctx, "commit")
	defer span.End()
	span.SetAttr("docs", len(docs))

	ids := make([]uint64, 0, len(docs))
	for _, doc := range docs {
		id, err := w.Add(doc.Content, doc.Filename)
		if err != nil {
			e.countCommit("failed")
			return BatchResult{}, err
		}
		ids = append(ids, id)
	}
	start := time.Now()
	info, err := w.Commit()
	if err != nil {
		e.countCommit("failed")
		logger.FromContext(ctx).Error("commit failed", "component", "indexer", "docs", len(docs), "error", err)
		return BatchResult{}, err
	}
	e.countCommit("success")
	if e.metrics != nil {
		e.metrics.CommitDuration.Observe(time.Since(start).Seconds())
		e.metrics.DocsIndexedTotal.WithLabelValues(SourceFrom(ctx)).Add(float64(len(ids)))
	}
	e.updateGauges()
	e.fireHooks(ctx, info)
	return BatchResult{DocIDs: ids, Indexed: len(ids), Generation: info.Generation}, nil
}

// openWriter retries lock conflicts with backoff until lockWait elapses.
// Only the wait for the lock is bounded by it.
func (e *Engine) openWriter(ctx context.Context) (*store.Writer, error) {
	attempts := 1
	if e.lockWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lockWait)
		defer cancel()
		attempts = 0
	}
	var w *store.Writer
	err := resilience.Retry(ctx, "open-writer", resilience.Policy{
		MaxAttempts: attempts,
		Backoff:     resilience.Backoff{Initial: 10 * time.Millisecond, Max: 250 * time.Millisecond},
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrLockConflict)
		},
	}, func(context.Context) error {
		var err error
		w, err = e.store.OpenWriter()
		if errors.Is(err, apperrors.ErrLockConflict) && e.metrics != nil {
			e.metrics.LockConflictsTotal.Inc()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (e *Engine) fireHooks(ctx context.Context, info store.CommitInfo) {
	event := CommitEvent{
		Generation:  info.Generation,
		DocsAdded:   info.DocsAdded,
		Segments:    info.Segments,
		Merged:      info.Merged,
		Source:      SourceFrom(ctx),
		CommittedAt: time.Now().UTC(),
	}
	hookCtx := context.WithoutCancel(ctx)
	e.hooksMu.RLock()
	hooks := append([]CommitHook(nil), e.hooks...)
	e.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(hookCtx, event)
	}
}

func (e *Engine) countCommit(status string) {
	if e.metrics != nil {
		e.metrics.CommitsTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) updateGauges() {
	if e.metrics == nil {
		return
	}
	st := e.store.Stats()
	e.metrics.IndexDocCount.Set(float64(st.DocCount))
	e.metrics.IndexSegmentCount.Set(float64(st.SegmentCount))
}
