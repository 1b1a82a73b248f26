package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// MemoryIndex buffers documents added through a Writer until they are
// written out as a segment.
type MemoryIndex struct {
	mu       sync.RWMutex
	analyzer *tokenizer.Analyzer
	index    map[TermKey]map[uint64]*Posting
	docs     []StoredDoc
	size     int64
}

func NewMemoryIndex(analyzer *tokenizer.Analyzer) *MemoryIndex {
	return &MemoryIndex{
		analyzer: analyzer,
		index:    make(map[TermKey]map[uint64]*Posting),
	}
}

// AddDocument analyzes content and filename and records their postings
// under docID. It returns the stored record.
func (m *MemoryIndex) AddDocument(docID uint64, content string, filename string) StoredDoc {
	doc := StoredDoc{
		ID:           docID,
		Content:      content,
		Filename:     filename,
		FieldLengths: make(map[string]int, len(Fields)),
	}
	termData := make(map[TermKey]*Posting)
	for _, field := range Fields {
		text := content
		if field == FieldFilename {
			text = filename
		}
		tokens := m.analyzer.Analyze(text)
		if len(tokens) == 0 {
			continue
		}
		doc.FieldLengths[field] = len(tokens)
		for _, token := range tokens {
			key := TermKey{Field: field, Term: token.Term}
			p, exists := termData[key]
			if !exists {
				p = &Posting{
					DocID:     docID,
					Positions: make([]int, 0, 4),
				}
				termData[key] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, posting := range termData {
		if _, exists := m.index[key]; !exists {
			m.index[key] = make(map[uint64]*Posting)
		}
		m.index[key][docID] = posting
		m.size += int64(len(key.Field) + len(key.Term) + len(posting.Positions)*8 + 64)
	}
	m.docs = append(m.docs, doc)
	m.size += int64(len(content) + len(filename) + 64)
	return doc
}

// Search returns the buffered postings for a term, ordered by DocID.
func (m *MemoryIndex) Search(field, term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[TermKey{Field: field, Term: term}]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// Snapshot returns the buffered term entries sorted by (field, term) and the
// stored documents sorted by ID.
func (m *MemoryIndex) Snapshot() ([]TermEntry, []StoredDoc) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for key, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Field:    key.Field,
			Term:     key.Term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key().Less(entries[j].Key())
	})
	docs := make([]StoredDoc, len(m.docs))
	copy(docs, m.docs)
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return entries, docs
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[TermKey]map[uint64]*Posting)
	m.docs = nil
	m.size = 0
}
