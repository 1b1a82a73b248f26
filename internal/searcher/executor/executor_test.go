package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

type doc struct {
	content  string
	filename string
}

func newIndex(t testing.TB, docs ...doc) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	if len(docs) > 0 {
		commit(t, st, docs...)
	}
	return st
}

func commit(t testing.TB, st *store.Store, docs ...doc) {
	t.Helper()
	w, err := st.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	for _, d := range docs {
		_, err := w.Add(d.content, d.filename)
		require.NoError(t, err)
	}
	_, err = w.Commit()
	require.NoError(t, err)
}

func search(t *testing.T, st *store.Store, raw string, limit int) *SearchResult {
	t.Helper()
	q, err := parser.New(st.Analyzer()).Parse(raw, index.FieldContent)
	require.NoError(t, err)
	res, err := New(st, 10, 100).Execute(context.Background(), q, limit)
	require.NoError(t, err)
	return res
}

func TestQuickBrownFox(t *testing.T) {
	st := newIndex(t, doc{content: "The quick brown fox"})
	res := search(t, st, "fox", 0)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 1, res.TotalHits)
	assert.Greater(t, res.Results[0].Score, 0.0)
	assert.Equal(t, "The quick brown fox", res.Results[0].Content)
	assert.Empty(t, res.Results[0].Filename)
}

func TestInvoiceWithFilename(t *testing.T) {
	st := newIndex(t, doc{content: "The quick brown fox"})
	commit(t, st, doc{content: "Invoice #42", filename: "inv.pdf"})

	res := search(t, st, "invoice", 0)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "inv.pdf", res.Results[0].Filename)
	assert.Equal(t, "Invoice #42", res.Results[0].Content)

	res = search(t, st, "filename:inv", 0)
	require.Len(t, res.Results, 1)
	assert.Equal(t, uint64(2), res.Results[0].DocID)
}

func TestEmptyIndexReturnsNothing(t *testing.T) {
	st := newIndex(t)
	res := search(t, st, "anything", 0)
	assert.Empty(t, res.Results)
	assert.NotNil(t, res.Results)
	assert.Zero(t, res.TotalHits)
}

func TestBlankQueryReturnsNothing(t *testing.T) {
	st := newIndex(t, doc{content: "something here"})
	for _, raw := range []string{"", "   ", "-something"} {
		res := search(t, st, raw, 0)
		assert.Empty(t, res.Results, raw)
	}
}

func TestCaseInsensitiveMatch(t *testing.T) {
	st := newIndex(t, doc{content: "Search engines index text"})
	res := search(t, st, "search", 0)
	require.Len(t, res.Results, 1)
}

func TestTermFrequencyRanking(t *testing.T) {
	st := newIndex(t,
		doc{content: "apple banana banana"},
		doc{content: "apple apple banana"},
	)
	res := search(t, st, "apple", 0)
	require.Len(t, res.Results, 2)
	assert.Equal(t, uint64(2), res.Results[0].DocID)
	assert.GreaterOrEqual(t, res.Results[0].Score, res.Results[1].Score)
}

func TestTiesBreakByDocID(t *testing.T) {
	st := newIndex(t,
		doc{content: "same words"},
		doc{content: "same words"},
		doc{content: "same words"},
	)
	res := search(t, st, "same", 0)
	require.Len(t, res.Results, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{res.Results[0].DocID, res.Results[1].DocID, res.Results[2].DocID})
}

func TestMoreClausesScoreHigher(t *testing.T) {
	st := newIndex(t,
		doc{content: "red car"},
		doc{content: "red fast car"},
		doc{content: "blue boat"},
	)
	res := search(t, st, "red fast", 0)
	require.Len(t, res.Results, 2)
	assert.Equal(t, uint64(2), res.Results[0].DocID)
}

func TestRequiredAndExcludedClauses(t *testing.T) {
	st := newIndex(t,
		doc{content: "red car"},
		doc{content: "red boat"},
		doc{content: "blue car"},
	)
	res := search(t, st, "+car -blue", 0)
	require.Len(t, res.Results, 1)
	assert.Equal(t, uint64(1), res.Results[0].DocID)

	res = search(t, st, "red AND boat", 0)
	require.Len(t, res.Results, 1)
	assert.Equal(t, uint64(2), res.Results[0].DocID)

	res = search(t, st, "car NOT red", 0)
	require.Len(t, res.Results, 1)
	assert.Equal(t, uint64(3), res.Results[0].DocID)
}

func TestLimitAndTotalHits(t *testing.T) {
	docs := make([]doc, 0, 15)
	for i := 0; i < 15; i++ {
		docs = append(docs, doc{content: "common term"})
	}
	st := newIndex(t, docs...)

	res := search(t, st, "common", 5)
	assert.Len(t, res.Results, 5)
	assert.Equal(t, 15, res.TotalHits)

	res = search(t, st, "common", 0)
	assert.Len(t, res.Results, 10, "default limit")

	q, err := parser.New(st.Analyzer()).Parse("common", index.FieldContent)
	require.NoError(t, err)
	results, err := New(st, 10, 12).Search(context.Background(), q, 1000)
	require.NoError(t, err)
	assert.Len(t, results, 12, "max limit")
}

func TestEveryCommittedDocumentIsFound(t *testing.T) {
	st := newIndex(t,
		doc{content: "alpha beta"},
		doc{content: "gamma delta"},
	)
	commit(t, st, doc{content: "epsilon alpha"})
	for term, want := range map[string]int{"alpha": 2, "beta": 1, "gamma": 1, "delta": 1, "epsilon": 1} {
		res := search(t, st, term, 0)
		assert.Len(t, res.Results, want, term)
	}
}

func TestSnapshotGeneration(t *testing.T) {
	st := newIndex(t, doc{content: "one"})
	res := search(t, st, "one", 0)
	assert.Equal(t, uint64(1), res.Generation)
	commit(t, st, doc{content: "two"})
	res = search(t, st, "one", 0)
	assert.Equal(t, uint64(2), res.Generation)
}

func TestCancelledContext(t *testing.T) {
	st := newIndex(t, doc{content: "one"})
	q, err := parser.New(st.Analyzer()).Parse("one", index.FieldContent)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(st, 10, 0).Execute(ctx, q, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
