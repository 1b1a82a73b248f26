package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingTracker) Track(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type fixture struct {
	store   *store.Store
	handler *Handler
	metrics *metrics.Metrics
	tracker *recordingTracker
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir(), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var qc *cache.QueryCache
	if withCache {
		qc, err = cache.New(nil, 16, time.Minute)
		require.NoError(t, err)
	}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	tracker := &recordingTracker{}
	h := New(parser.New(st.Analyzer()), executor.New(st, 10, 100), st, qc, tracker, m, Options{
		DefaultField: index.FieldContent,
		DefaultLimit: 10,
		MaxResults:   2,
	})
	return &fixture{store: st, handler: h, metrics: m, tracker: tracker}
}

func (f *fixture) index(t *testing.T, docs ...[2]string) {
	t.Helper()
	w, err := f.store.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	for _, d := range docs {
		_, err := w.Add(d[0], d[1])
		require.NoError(t, err)
	}
	_, err = w.Commit()
	require.NoError(t, err)
}

func (f *fixture) search(t *testing.T, rawQuery string) (*httptest.ResponseRecorder, executor.SearchResult) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.Search(rec, httptest.NewRequest(http.MethodGet, "/search?"+rawQuery, nil))
	var res executor.SearchResult
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func TestSearchRanksAndReturnsStoredFields(t *testing.T) {
	f := newFixture(t, false)
	f.index(t,
		[2]string{"The quick brown fox", ""},
		[2]string{"Invoice #42 for ACME", "inv.pdf"},
		[2]string{"fox fox fox den", "foxes.txt"},
	)

	rec, res := f.search(t, "q=fox")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fox", res.Query)
	assert.Equal(t, 2, res.TotalHits)
	require.Len(t, res.Results, 2)
	assert.Equal(t, uint64(3), res.Results[0].DocID)
	assert.Equal(t, "foxes.txt", res.Results[0].Filename)
	assert.Greater(t, res.Results[0].Score, res.Results[1].Score)

	_, res = f.search(t, "q=filename:inv")
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Invoice #42 for ACME", res.Results[0].Content)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("hit")))
}

func TestBlankQueryReturnsEmpty(t *testing.T) {
	f := newFixture(t, false)
	f.index(t, [2]string{"anything", ""})
	for _, q := range []string{"", "q=", "q=%20%20"} {
		rec, res := f.search(t, q)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, res.Results)
		assert.Zero(t, res.TotalHits)
	}
	assert.Empty(t, f.tracker.events)
}

func TestMalformedQuery(t *testing.T) {
	f := newFixture(t, false)
	for _, q := range []string{"q=%3Afox", "q=content%3A", "q=%2B", "q=fox%20AND", "q=%22unbalanced"} {
		rec, _ := f.search(t, q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues("malformed")))
}

func TestInvalidLimit(t *testing.T) {
	f := newFixture(t, false)
	for _, q := range []string{"q=fox&limit=0", "q=fox&limit=-1", "q=fox&limit=ten"} {
		rec, _ := f.search(t, q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestLimitIsCappedAtMaxResults(t *testing.T) {
	f := newFixture(t, false)
	f.index(t, [2]string{"fox one", ""}, [2]string{"fox two", ""}, [2]string{"fox three", ""})
	_, res := f.search(t, "q=fox&limit=50")
	assert.Equal(t, 3, res.TotalHits)
	assert.Len(t, res.Results, 2)
}

func TestSearchEmptyIndex(t *testing.T) {
	f := newFixture(t, true)
	rec, res := f.search(t, "q=fox")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, res.Results)
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, analytics.EventZeroResult, f.tracker.events[0].(analytics.SearchEvent).Type)
}

func TestCacheIsInvalidatedByCommit(t *testing.T) {
	f := newFixture(t, true)
	f.index(t, [2]string{"brown fox", ""})

	_, first := f.search(t, "q=fox")
	_, second := f.search(t, "q=FOX")
	assert.Equal(t, first.TotalHits, second.TotalHits)
	assert.Equal(t, "FOX", second.Query)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHitsTotal))

	f.index(t, [2]string{"another fox", ""})
	_, third := f.search(t, "q=fox")
	assert.Equal(t, 2, third.TotalHits, "new generation must bypass the cached entry")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CacheMissesTotal))
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t, true)
	f.index(t, [2]string{"fox", ""})
	f.search(t, "q=fox")
	f.search(t, "q=fox")

	rec := httptest.NewRecorder()
	f.handler.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/cache/stats", nil))
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1.0, stats["hits"])
	assert.Equal(t, "50.0%", stats["hit_rate"])

	rec = httptest.NewRecorder()
	f.handler.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	noCache := newFixture(t, false)
	rec = httptest.NewRecorder()
	noCache.handler.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchHonoursCancelledContext(t *testing.T) {
	f := newFixture(t, false)
	f.index(t, [2]string{"fox", ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	f.handler.Search(rec, httptest.NewRequest(http.MethodGet, "/search?q=fox", nil).WithContext(ctx))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
