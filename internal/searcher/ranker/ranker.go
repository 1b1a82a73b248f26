// Package ranker scores documents with Okapi BM25.
package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	DocID uint64  `json:"doc_id"`
	Score float64 `json:"score"`
}

// TermPostings is the postings list of one query clause.
type TermPostings struct {
	Field    string
	Term     string
	Postings index.PostingList
}

// Corpus supplies the collection statistics BM25 needs. store.Reader
// implements it.
type Corpus interface {
	DocCount() int64
	AvgFieldLength(field string) float64
	FieldLength(docID uint64, field string) int
}

// Score sums the BM25 contribution of every clause for each document that
// accept admits. A nil accept admits every document. The result is
// unordered; scores are rounded to four decimals.
func Score(terms []TermPostings, corpus Corpus, accept func(docID uint64) bool) []ScoredDoc {
	totalDocs := corpus.DocCount()
	avgLength := make(map[string]float64)
	scores := make(map[uint64]float64)
	for _, tp := range terms {
		if len(tp.Postings) == 0 {
			continue
		}
		avg, ok := avgLength[tp.Field]
		if !ok {
			avg = corpus.AvgFieldLength(tp.Field)
			avgLength[tp.Field] = avg
		}
		idf := computeIDF(totalDocs, int64(len(tp.Postings)))
		for _, posting := range tp.Postings {
			if accept != nil && !accept(posting.DocID) {
				continue
			}
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(corpus.FieldLength(posting.DocID, tp.Field)),
				avg,
			)
			scores[posting.DocID] += idf * tfNorm
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: math.Round(score*10000) / 10000,
		})
	}
	return result
}

// computeIDF uses the Lucene variant, which stays positive when a term
// occurs in every document.
func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
