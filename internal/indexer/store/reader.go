package store

import (
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// Reader is an immutable view of one commit. It is safe for concurrent use
// until Close.
type Reader struct {
	store    *Store
	manifest Manifest
	segments []*segment.Reader
	once     sync.Once
}

func newReader(s *Store, m Manifest, segments []*segment.Reader) *Reader {
	return &Reader{store: s, manifest: m, segments: segments}
}

// Generation is the commit generation this snapshot was opened at.
func (r *Reader) Generation() uint64 {
	return r.manifest.Generation
}

// DocCount returns the number of documents visible in this snapshot.
func (r *Reader) DocCount() int64 {
	return r.manifest.DocCount()
}

// Analyzer returns the analyzer the index was built with.
func (r *Reader) Analyzer() *tokenizer.Analyzer {
	return r.store.analyzer
}

// Postings returns the postings of term in field across every segment,
// ordered by DocID. Segments cover ascending, disjoint ID ranges.
func (r *Reader) Postings(field, term string) (index.PostingList, error) {
	var all index.PostingList
	for _, seg := range r.segments {
		postings, err := seg.Search(field, term)
		if err != nil {
			return nil, fmt.Errorf("searching segment %s: %w", seg.Name(), err)
		}
		all = append(all, postings...)
	}
	return all, nil
}

// DocFreq returns the number of documents containing term in field.
func (r *Reader) DocFreq(field, term string) int {
	n := 0
	for _, seg := range r.segments {
		n += seg.DocFreq(field, term)
	}
	return n
}

// AvgFieldLength is the mean token count of field over all documents.
func (r *Reader) AvgFieldLength(field string) float64 {
	docs := r.DocCount()
	if docs == 0 {
		return 0
	}
	var tokens int64
	for _, seg := range r.segments {
		tokens += seg.FieldTokens(field)
	}
	return float64(tokens) / float64(docs)
}

// FieldLength returns the token count of field in docID.
func (r *Reader) FieldLength(docID uint64, field string) int {
	for _, seg := range r.segments {
		if meta, ok := seg.Meta(docID); ok {
			return meta.FieldLengths[field]
		}
	}
	return 0
}

// Document loads the stored fields of docID.
func (r *Reader) Document(docID uint64) (index.StoredDoc, error) {
	for _, seg := range r.segments {
		if seg.Contains(docID) {
			return seg.Document(docID)
		}
	}
	return index.StoredDoc{}, fmt.Errorf("document %d not found in generation %d", docID, r.manifest.Generation)
}

// Close releases the snapshot. It is idempotent.
func (r *Reader) Close() error {
	r.once.Do(func() {
		r.store.releaseReader(r.segments)
	})
	return nil
}
