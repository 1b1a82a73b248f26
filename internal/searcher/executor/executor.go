// Package executor evaluates parsed queries against a snapshot of the index
// store and returns ranked results with their stored fields.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// DefaultLimit applies when a search does not name a positive limit.
const DefaultLimit = 10

// ScoredResult is one ranked document with its stored fields.
type ScoredResult struct {
	DocID    uint64  `json:"doc_id"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
	Filename string  `json:"filename,omitempty"`
}

type SearchResult struct {
	Query      string         `json:"query"`
	TotalHits  int            `json:"total_hits"`
	Results    []ScoredResult `json:"results"`
	Generation uint64         `json:"generation"`
	TookMs     int64          `json:"took_ms"`
}

// Executor runs queries on reader snapshots opened per search.
type Executor struct {
	store        *store.Store
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

func New(st *store.Store, defaultLimit, maxLimit int) *Executor {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Executor{
		store:        st,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "query-executor"),
	}
}

// Search returns at most limit results ordered by score, then DocID.
func (e *Executor) Search(ctx context.Context, q *parser.Query, limit int) ([]ScoredResult, error) {
	res, err := e.Execute(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Execute evaluates q on a fresh snapshot. Nothing matching is an empty
// result, never an error.
func (e *Executor) Execute(ctx context.Context, q *parser.Query, limit int) (*SearchResult, error) {
	start := time.Now()
	ctx, span := tracing.Child(ctx, "execute")
	defer span.End()
	limit = e.effectiveLimit(limit)
	result := &SearchResult{Query: q.Raw, Results: []ScoredResult{}}

	reader, err := e.store.OpenReader()
	if err != nil {
		return nil, fmt.Errorf("opening index snapshot: %w", err)
	}
	defer reader.Close()
	result.Generation = reader.Generation()
	if q.IsEmpty() || reader.DocCount() == 0 {
		return result, nil
	}

	_, lookup := tracing.Child(ctx, "postings")
	var (
		scoring  []ranker.TermPostings
		required []map[uint64]struct{}
		excluded = make(map[uint64]struct{})
		scored   = make(map[string]bool)
	)
	for _, clause := range q.Clauses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, err := reader.Postings(clause.Field, clause.Term)
		if err != nil {
			return nil, fmt.Errorf("searching %s:%s: %w", clause.Field, clause.Term, err)
		}
		switch clause.Occur {
		case parser.MustNot:
			for _, p := range postings {
				excluded[p.DocID] = struct{}{}
			}
			continue
		case parser.Must:
			set := make(map[uint64]struct{}, len(postings))
			for _, p := range postings {
				set[p.DocID] = struct{}{}
			}
			required = append(required, set)
		}
		key := clause.Field + "\x00" + clause.Term
		if scored[key] {
			continue
		}
		scored[key] = true
		scoring = append(scoring, ranker.TermPostings{Field: clause.Field, Term: clause.Term, Postings: postings})
	}

	lookup.SetAttr("clauses", len(q.Clauses))
	lookup.End()

	accept := func(docID uint64) bool {
		if _, ok := excluded[docID]; ok {
			return false
		}
		for _, set := range required {
			if _, ok := set[docID]; !ok {
				return false
			}
		}
		return true
	}
	_, rank := tracing.Child(ctx, "score")
	scoredDocs := ranker.Score(scoring, reader, accept)
	top := merger.TopK(scoredDocs, limit)
	rank.SetAttr("hits", len(scoredDocs))
	rank.End()

	_, load := tracing.Child(ctx, "load_documents")
	defer load.End()

	for _, sd := range top {
		doc, err := reader.Document(sd.DocID)
		if err != nil {
			return nil, fmt.Errorf("loading stored fields: %w", err)
		}
		result.Results = append(result.Results, ScoredResult{
			DocID:    sd.DocID,
			Score:    sd.Score,
			Content:  doc.Content,
			Filename: doc.Filename,
		})
	}
	result.TotalHits = len(scoredDocs)
	result.TookMs = time.Since(start).Milliseconds()
	e.logger.Debug("query executed",
		"query", q.String(),
		"generation", result.Generation,
		"hits", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

func (e *Executor) effectiveLimit(limit int) int {
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if e.maxLimit > 0 && limit > e.maxLimit {
		limit = e.maxLimit
	}
	return limit
}
