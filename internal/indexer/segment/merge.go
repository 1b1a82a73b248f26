package segment

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Merge reads every term entry and stored document from readers and combines
// them into one sorted set ready for Writer.Write. Document IDs are unique
// across segments, so postings of the same term are concatenated.
func Merge(readers []*Reader) ([]index.TermEntry, []index.StoredDoc, error) {
	combined := make(map[index.TermKey]index.PostingList)
	var docs []index.StoredDoc
	for _, r := range readers {
		entries, err := r.Entries()
		if err != nil {
			return nil, nil, fmt.Errorf("reading entries of %s: %w", r.Name(), err)
		}
		for _, e := range entries {
			combined[e.Key()] = append(combined[e.Key()], e.Postings...)
		}
		segDocs, err := r.Documents()
		if err != nil {
			return nil, nil, fmt.Errorf("reading documents of %s: %w", r.Name(), err)
		}
		docs = append(docs, segDocs...)
	}

	entries := make([]index.TermEntry, 0, len(combined))
	for key, postings := range combined {
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, index.TermEntry{Field: key.Field, Term: key.Term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key().Less(entries[j].Key())
	})
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return entries, docs, nil
}
