package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

type fakeCorpus struct {
	docs    int64
	avg     float64
	lengths map[uint64]int
}

func (c fakeCorpus) DocCount() int64                     { return c.docs }
func (c fakeCorpus) AvgFieldLength(string) float64       { return c.avg }
func (c fakeCorpus) FieldLength(id uint64, _ string) int { return c.lengths[id] }

func scoreOf(t *testing.T, docs []ScoredDoc, id uint64) float64 {
	t.Helper()
	for _, d := range docs {
		if d.DocID == id {
			return d.Score
		}
	}
	t.Fatalf("document %d not scored", id)
	return 0
}

func TestHigherTermFrequencyRanksHigher(t *testing.T) {
	// "apple apple banana" and "apple banana banana"
	corpus := fakeCorpus{docs: 2, avg: 3, lengths: map[uint64]int{1: 3, 2: 3}}
	terms := []TermPostings{{
		Field: index.FieldContent,
		Term:  "apple",
		Postings: index.PostingList{
			{DocID: 1, Frequency: 2},
			{DocID: 2, Frequency: 1},
		},
	}}
	docs := Score(terms, corpus, nil)
	require.Len(t, docs, 2)
	assert.Greater(t, scoreOf(t, docs, 1), scoreOf(t, docs, 2))
}

func TestRareTermsScoreHigher(t *testing.T) {
	corpus := fakeCorpus{docs: 10, avg: 5, lengths: map[uint64]int{1: 5, 2: 5, 3: 5}}
	terms := []TermPostings{
		{Field: "content", Term: "common", Postings: index.PostingList{{DocID: 1, Frequency: 1}, {DocID: 2, Frequency: 1}, {DocID: 3, Frequency: 1}}},
		{Field: "content", Term: "rare", Postings: index.PostingList{{DocID: 3, Frequency: 1}}},
	}
	commonOnly := Score(terms[:1], corpus, nil)
	rareOnly := Score(terms[1:], corpus, nil)
	assert.Greater(t, scoreOf(t, rareOnly, 3), scoreOf(t, commonOnly, 3))

	both := Score(terms, corpus, nil)
	assert.Greater(t, scoreOf(t, both, 3), scoreOf(t, both, 1), "matching more clauses scores higher")
}

func TestTermInEveryDocumentStillScores(t *testing.T) {
	corpus := fakeCorpus{docs: 1, avg: 3, lengths: map[uint64]int{1: 3}}
	docs := Score([]TermPostings{{Field: "content", Term: "fox", Postings: index.PostingList{{DocID: 1, Frequency: 1}}}}, corpus, nil)
	require.Len(t, docs, 1)
	assert.Greater(t, docs[0].Score, 0.0)
}

func TestAcceptFiltersDocuments(t *testing.T) {
	corpus := fakeCorpus{docs: 2, avg: 1, lengths: map[uint64]int{1: 1, 2: 1}}
	terms := []TermPostings{{Field: "content", Term: "x", Postings: index.PostingList{{DocID: 1, Frequency: 1}, {DocID: 2, Frequency: 1}}}}
	docs := Score(terms, corpus, func(id uint64) bool { return id == 2 })
	require.Len(t, docs, 1)
	assert.Equal(t, uint64(2), docs[0].DocID)
}

func TestComputeTFNormZeroAverage(t *testing.T) {
	assert.Zero(t, computeTFNorm(3, 3, 0))
}
