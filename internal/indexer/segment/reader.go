package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Reader gives read-only access to one immutable segment file. It is safe
// for concurrent use: all file access goes through ReadAt.
type Reader struct {
	file        *os.File
	filePath    string
	size        int64
	header      SegmentHeader
	dict        []DictEntry
	docs        []DocMeta
	postBase    int64
	docBase     int64
	fieldTokens map[string]int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("invalid segment file: truncated (%d bytes)", info.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, info.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if err := checkLayout(header, footer, info.Size()); err != nil {
		return nil, fmt.Errorf("invalid segment file: %w", err)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	tableBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(tableBytes, header.DocsOffset); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	checksum := crc32.NewIEEE()
	checksum.Write(dictBytes)
	checksum.Write(tableBytes)
	if want := binary.LittleEndian.Uint32(footer[0:4]); checksum.Sum32() != want {
		return nil, fmt.Errorf("segment checksum mismatch: got %x, want %x", checksum.Sum32(), want)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var docs []DocMeta
	if err := json.Unmarshal(tableBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}
	fieldTokens := make(map[string]int64)
	for _, d := range docs {
		for field, n := range d.FieldLengths {
			fieldTokens[field] += int64(n)
		}
	}
	return &Reader{
		file:        f,
		filePath:    path,
		size:        info.Size(),
		header:      header,
		dict:        dict,
		docs:        docs,
		postBase:    header.PostOffset,
		docBase:     header.PostOffset + header.PostSize,
		fieldTokens: fieldTokens,
	}, nil
}

// checkLayout verifies that every section the header points at lies between
// the header and the footer, and that the footer agrees with the header.
func checkLayout(h SegmentHeader, footer []byte, fileSize int64) error {
	end := fileSize - int64(FooterSize)
	sections := []struct {
		name         string
		offset, size int64
	}{
		{"postings", h.PostOffset, h.PostSize},
		{"dictionary", h.DictOffset, h.DictSize},
		{"document table", h.DocsOffset, h.DocsSize},
	}
	for _, sec := range sections {
		if sec.offset < int64(HeaderSize) || sec.size < 0 || sec.offset > end || sec.size > end-sec.offset {
			return fmt.Errorf("%s section [%d,+%d) outside file of %d bytes", sec.name, sec.offset, sec.size, fileSize)
		}
	}
	if binary.LittleEndian.Uint32(footer[4:8]) != h.DocCount ||
		int64(binary.LittleEndian.Uint64(footer[8:16])) != h.DictOffset ||
		int64(binary.LittleEndian.Uint64(footer[16:24])) != h.DocsOffset ||
		int64(binary.LittleEndian.Uint64(footer[24:32])) != h.PostSize {
		return fmt.Errorf("header and footer disagree")
	}
	return nil
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	key := index.TermKey{Field: field, Term: term}
	idx := sort.Search(len(r.dict), func(i int) bool {
		e := index.TermKey{Field: r.dict[i].Field, Term: r.dict[i].Term}
		return !e.Less(key)
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the postings of term in field, or nil when absent.
func (r *Reader) Search(field, term string) (index.PostingList, error) {
	entry, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	return r.readPostings(entry)
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// DocFreq returns the number of documents in this segment containing term.
func (r *Reader) DocFreq(field, term string) int {
	entry, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// Meta returns the table entry for docID.
func (r *Reader) Meta(docID uint64) (DocMeta, bool) {
	idx := sort.Search(len(r.docs), func(i int) bool {
		return r.docs[i].ID >= docID
	})
	if idx >= len(r.docs) || r.docs[idx].ID != docID {
		return DocMeta{}, false
	}
	return r.docs[idx], true
}

// Contains reports whether docID is stored in this segment.
func (r *Reader) Contains(docID uint64) bool {
	if docID < r.header.MinDocID || docID > r.header.MaxDocID {
		return false
	}
	_, ok := r.Meta(docID)
	return ok
}

// Document loads the stored fields of docID.
func (r *Reader) Document(docID uint64) (index.StoredDoc, error) {
	meta, ok := r.Meta(docID)
	if !ok {
		return index.StoredDoc{}, fmt.Errorf("document %d not in segment %s", docID, r.Name())
	}
	data := make([]byte, meta.Len)
	if _, err := r.file.ReadAt(data, r.docBase+meta.Offset); err != nil {
		return index.StoredDoc{}, fmt.Errorf("reading document %d: %w", docID, err)
	}
	var doc index.StoredDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return index.StoredDoc{}, fmt.Errorf("parsing document %d: %w", docID, err)
	}
	return doc, nil
}

// Entries reads every term entry of the segment, in dictionary order.
func (r *Reader) Entries() ([]index.TermEntry, error) {
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, d := range r.dict {
		postings, err := r.readPostings(d)
		if err != nil {
			return nil, fmt.Errorf("term %s:%s: %w", d.Field, d.Term, err)
		}
		entries = append(entries, index.TermEntry{Field: d.Field, Term: d.Term, Postings: postings})
	}
	return entries, nil
}

// Documents reads every stored document of the segment, in ID order.
func (r *Reader) Documents() ([]index.StoredDoc, error) {
	docs := make([]index.StoredDoc, 0, len(r.docs))
	for _, meta := range r.docs {
		doc, err := r.Document(meta.ID)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FieldTokens returns the total number of tokens indexed for field.
func (r *Reader) FieldTokens(field string) int64 {
	return r.fieldTokens[field]
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Header() SegmentHeader {
	return r.header
}

// Name returns the segment file name without its directory.
func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

// SizeBytes returns the size of the segment file.
func (r *Reader) SizeBytes() int64 {
	return r.size
}

func (r *Reader) Close() error {
	return r.file.Close()
}
