// Package index holds the inverted-index value types shared by the writer,
// the segment format and the searcher, plus the in-memory buffer a Writer
// fills before a segment is written.
package index

// Field names of a document.
const (
	FieldContent  = "content"
	FieldFilename = "filename"
)

// Fields lists every indexed field in a stable order.
var Fields = []string{FieldContent, FieldFilename}

// Posting links a term to one document.
type Posting struct {
	DocID     uint64 `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

// PostingList is ordered by ascending DocID.
type PostingList []Posting

// TermKey identifies a term within a field.
type TermKey struct {
	Field string
	Term  string
}

// Less orders keys by field, then term.
func (k TermKey) Less(o TermKey) bool {
	if k.Field != o.Field {
		return k.Field < o.Field
	}
	return k.Term < o.Term
}

type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// Key returns the entry's TermKey.
func (e TermEntry) Key() TermKey {
	return TermKey{Field: e.Field, Term: e.Term}
}

// StoredDoc is the verbatim record kept for every document, together with
// per-field token counts used for length normalisation.
type StoredDoc struct {
	ID           uint64         `json:"id"`
	Content      string         `json:"content"`
	Filename     string         `json:"filename,omitempty"`
	FieldLengths map[string]int `json:"lengths,omitempty"`
}

// FieldLength returns the number of tokens indexed for field.
func (d StoredDoc) FieldLength(field string) int {
	return d.FieldLengths[field]
}
