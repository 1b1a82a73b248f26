package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

func newEngine(t *testing.T, policy string, lockWait time.Duration) (*Engine, *metrics.Metrics) {
	t.Helper()
	st, err := store.Open(t.TempDir(), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return NewEngine(st, config.IndexConfig{CommitPolicy: policy, LockWaitTimeout: lockWait}, m), m
}

func countPostings(t *testing.T, e *Engine, term string) int {
	t.Helper()
	r, err := e.Store().OpenReader()
	require.NoError(t, err)
	defer r.Close()
	postings, err := r.Postings(index.FieldContent, term)
	require.NoError(t, err)
	return len(postings)
}

func TestAddDocumentCommitsImmediately(t *testing.T) {
	e, m := newEngine(t, config.CommitPerDocument, 0)
	id, err := e.AddDocument(context.Background(), Document{Content: "The quick brown fox"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, 1, countPostings(t, e, "fox"))
	assert.Equal(t, uint64(1), e.Store().Generation())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsIndexedTotal.WithLabelValues(SourceAPI)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexDocCount))
}

func TestAddBatchUsesOneCommit(t *testing.T) {
	e, _ := newEngine(t, config.CommitBatch, 0)
	ctx := WithSource(context.Background(), SourceFolder)
	res, err := e.AddBatch(ctx, []Document{{Content: "one fox"}, {Content: "two fox"}, {Content: "three fox"}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, res.DocIDs)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, 3, countPostings(t, e, "fox"))
}

func TestAddBatchEmpty(t *testing.T) {
	e, _ := newEngine(t, config.CommitBatch, 0)
	res, err := e.AddBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Indexed)
	assert.Zero(t, e.Store().Generation())
}

func TestIngestPolicies(t *testing.T) {
	docs := []Document{{Content: "alpha"}, {Content: "beta"}}

	perDoc, _ := newEngine(t, config.CommitPerDocument, 0)
	res, err := perDoc.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, uint64(2), perDoc.Store().Generation(), "one commit per document")

	batch, _ := newEngine(t, config.CommitBatch, 0)
	res, err = batch.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, uint64(1), batch.Store().Generation(), "one commit for the batch")
}

func TestLockConflictFailsFastWithoutWait(t *testing.T) {
	e, m := newEngine(t, config.CommitPerDocument, 0)
	w, err := e.Store().OpenWriter()
	require.NoError(t, err)
	defer w.Close()

	_, err = e.AddDocument(context.Background(), Document{Content: "blocked"})
	assert.ErrorIs(t, err, apperrors.ErrLockConflict)
	assert.Equal(t, 409, apperrors.HTTPStatusCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockConflictsTotal))
}

func TestLockWaitRetriesUntilFree(t *testing.T) {
	e, _ := newEngine(t, config.CommitPerDocument, 2*time.Second)
	w, err := e.Store().OpenWriter()
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Close()
	}()

	id, err := e.AddDocument(context.Background(), Document{Content: "eventually"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestLockWaitTimesOut(t *testing.T) {
	e, _ := newEngine(t, config.CommitPerDocument, 60*time.Millisecond)
	w, err := e.Store().OpenWriter()
	require.NoError(t, err)
	defer w.Close()

	start := time.Now()
	_, err = e.AddDocument(context.Background(), Document{Content: "blocked"})
	assert.ErrorIs(t, err, apperrors.ErrLockConflict)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIngestPerDocumentReportsFailures(t *testing.T) {
	e, _ := newEngine(t, config.CommitPerDocument, 0)
	w, err := e.Store().OpenWriter()
	require.NoError(t, err)
	defer w.Close()

	res, err := e.Ingest(context.Background(), []Document{{Content: "a"}, {Content: "b"}})
	assert.ErrorIs(t, err, apperrors.ErrLockConflict)
	assert.Equal(t, 2, res.Failed)
	assert.Zero(t, res.Indexed)
}

func TestCommitHooksFire(t *testing.T) {
	e, _ := newEngine(t, config.CommitPerDocument, 0)
	var events []CommitEvent
	e.OnCommit(func(_ context.Context, ev CommitEvent) { events = append(events, ev) })

	ctx := WithSource(context.Background(), SourceUpload)
	_, err := e.AddDocument(ctx, Document{Content: "hooked"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Generation)
	assert.Equal(t, 1, events[0].DocsAdded)
	assert.Equal(t, SourceUpload, events[0].Source)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestPublishHook(t *testing.T) {
	e, _ := newEngine(t, config.CommitPerDocument, 0)
	pub := &recordingPublisher{}
	e.OnCommit(PublishHook(pub, "replica-1", time.Second))
	_, err := e.AddDocument(context.Background(), Document{Content: "published"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return pub.len() == 1 }, time.Second, 5*time.Millisecond)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "1", pub.events[0].Key)
	ev := pub.events[0].Value.(CommitEvent)
	assert.Equal(t, "replica-1", ev.Origin)
}

func TestSourceFromDefault(t *testing.T) {
	assert.Equal(t, SourceAPI, SourceFrom(context.Background()))
	assert.Equal(t, SourceDatabase, SourceFrom(WithSource(context.Background(), SourceDatabase)))
}
