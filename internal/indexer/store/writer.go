package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// CommitInfo describes a successful commit.
type CommitInfo struct {
	Generation uint64
	DocsAdded  int
	Segments   int
	Merged     bool
	Duration   time.Duration
}

// Writer is the single exclusive handle that appends documents to the
// index. Documents become visible to new readers only after Commit. A
// Writer is not safe for concurrent use.
type Writer struct {
	store   *Store
	lock    *fileLock
	mem     *index.MemoryIndex
	seg     *segment.Writer
	base    Manifest
	nextID  uint64
	pending []SegmentInfo
	added   int
	seq     int
	closed  bool
}

func newWriter(s *Store, lock *fileLock, base Manifest) *Writer {
	return &Writer{
		store:  s,
		lock:   lock,
		mem:    index.NewMemoryIndex(s.analyzer),
		seg:    segment.NewWriter(s.dir),
		base:   base,
		nextID: base.NextDocID,
	}
}

// Add analyzes and buffers a document, returning its assigned ID. The
// buffer is written to an uncommitted segment when it exceeds the
// configured size. If that write fails every uncommitted document is
// discarded, including ones whose IDs earlier calls already returned, and
// those IDs are handed out again.
func (w *Writer) Add(content string, filename string) (uint64, error) {
	if w.closed {
		return 0, fmt.Errorf("%w: writer closed", apperrors.ErrInvalidInput)
	}
	id := w.nextID
	w.mem.AddDocument(id, content, filename)
	w.nextID++
	w.added++
	if limit := w.store.opts.SegmentMaxSize; limit > 0 && w.mem.Size() >= limit {
		w.store.logger.Debug("write buffer reached max size, flushing",
			"size", w.mem.Size(),
			"threshold", limit,
		)
		if err := w.flush(); err != nil {
			w.abort()
			return 0, err
		}
	}
	return id, nil
}

// Pending returns the number of documents added since the last commit.
func (w *Writer) Pending() int {
	return w.added
}

func (w *Writer) segmentName() string {
	w.seq++
	return fmt.Sprintf("seg_%d_%d%s", w.base.Generation+1, w.seq, segment.FileExt)
}

func (w *Writer) flush() error {
	entries, docs := w.mem.Snapshot()
	if len(docs) == 0 {
		return nil
	}
	if fp := w.store.failpoint; fp != nil {
		if err := fp("flush"); err != nil {
			return apperrors.IOFailure("writing segment", err)
		}
	}
	name := w.segmentName()
	if err := w.seg.Write(name, entries, docs); err != nil {
		return apperrors.IOFailure("writing segment", err)
	}
	info, err := os.Stat(filepath.Join(w.store.dir, name))
	if err != nil {
		os.Remove(filepath.Join(w.store.dir, name))
		return apperrors.IOFailure("stat segment", err)
	}
	w.pending = append(w.pending, SegmentInfo{
		Name:      name,
		DocCount:  uint32(len(docs)),
		MinDocID:  docs[0].ID,
		MaxDocID:  docs[len(docs)-1].ID,
		SizeBytes: info.Size(),
	})
	w.mem.Reset()
	return nil
}

// Commit makes every document added since the last commit visible to
// readers opened afterwards. On failure the previous commit stays current,
// the uncommitted documents are discarded and an ErrIOFailure is returned.
// Once the manifest is written the commit succeeds; a failure to load the
// new segments afterwards is logged and retried by the next reader.
func (w *Writer) Commit() (CommitInfo, error) {
	start := time.Now()
	if w.closed {
		return CommitInfo{}, fmt.Errorf("%w: writer closed", apperrors.ErrInvalidInput)
	}
	if err := w.flush(); err != nil {
		w.abort()
		return CommitInfo{}, err
	}
	if len(w.pending) == 0 {
		return CommitInfo{Generation: w.base.Generation, Segments: len(w.base.Segments)}, nil
	}

	next := w.base.clone()
	next.Generation++
	next.NextDocID = w.nextID
	next.CommittedAt = time.Now().UTC()
	next.Segments = append(next.Segments, w.pending...)

	opened := make(map[string]*segment.Reader, len(w.pending))
	closeOpened := func() {
		for _, r := range opened {
			r.Close()
		}
	}
	for _, info := range w.pending {
		r, err := segment.OpenReader(filepath.Join(w.store.dir, info.Name))
		if err != nil {
			closeOpened()
			w.abort()
			return CommitInfo{}, apperrors.IOFailure("reopening new segment", err)
		}
		opened[info.Name] = r
	}

	merged := false
	if limit := w.store.opts.MaxSegmentsBeforeMerge; limit > 0 && len(next.Segments) > limit {
		lo, hi := mergeWindow(next.Segments, limit)
		window := next.Segments[lo:hi]
		info, r, err := w.merge(window, opened)
		if err != nil {
			closeOpened()
			w.abort()
			return CommitInfo{}, err
		}
		pending := make([]SegmentInfo, 0, len(w.pending))
		for _, p := range w.pending {
			if !containsSegment(window, p.Name) {
				pending = append(pending, p)
				continue
			}
			opened[p.Name].Close()
			delete(opened, p.Name)
			os.Remove(filepath.Join(w.store.dir, p.Name))
		}
		w.pending = append(pending, info)
		opened[info.Name] = r

		segments := make([]SegmentInfo, 0, len(next.Segments)-len(window)+1)
		segments = append(segments, next.Segments[:lo]...)
		segments = append(segments, info)
		segments = append(segments, next.Segments[hi:]...)
		next.Segments = segments
		merged = true
	}

	if err := writeManifest(w.store.dir, next, w.store.failpoint); err != nil {
		closeOpened()
		w.abort()
		return CommitInfo{}, apperrors.IOFailure("writing manifest", err)
	}
	// The manifest is the commit point: from here on the commit is durable.
	// If loading it fails the next refresh picks it up.
	if err := syncDir(w.store.dir); err != nil {
		w.store.logger.Warn("syncing index directory after commit", "error", err)
	}
	if err := w.store.adopt(next, opened); err != nil {
		w.store.logger.Error("commit written but not loaded", "generation", next.Generation, "error", err)
	}

	info := CommitInfo{
		Generation: next.Generation,
		DocsAdded:  w.added,
		Segments:   len(next.Segments),
		Merged:     merged,
		Duration:   time.Since(start),
	}
	w.store.logger.Info("commit complete",
		"generation", info.Generation,
		"docs_added", info.DocsAdded,
		"segments", info.Segments,
		"merged", merged,
	)
	w.base = next
	w.pending = nil
	w.added = 0
	w.seq = 0
	return info, nil
}

// mergeWindow returns the bounds of the run of adjacent segments with the
// smallest combined size. The run is limit/2+1 segments long.
func mergeWindow(segments []SegmentInfo, limit int) (lo, hi int) {
	k := limit/2 + 1
	if k < 2 {
		k = 2
	}
	if k > len(segments) {
		k = len(segments)
	}
	var best int64 = -1
	for i := 0; i+k <= len(segments); i++ {
		var size int64
		for _, info := range segments[i : i+k] {
			size += info.SizeBytes
		}
		if best < 0 || size < best {
			best, lo = size, i
		}
	}
	return lo, lo + k
}

// merge combines the given adjacent segments into one.
func (w *Writer) merge(segments []SegmentInfo, opened map[string]*segment.Reader) (SegmentInfo, *segment.Reader, error) {
	readers := make([]*segment.Reader, 0, len(segments))
	var extra []*segment.Reader
	defer func() {
		for _, r := range extra {
			r.Close()
		}
	}()
	for _, info := range segments {
		if r, ok := opened[info.Name]; ok {
			readers = append(readers, r)
			continue
		}
		r, err := segment.OpenReader(filepath.Join(w.store.dir, info.Name))
		if err != nil {
			return SegmentInfo{}, nil, apperrors.IOFailure("opening segment for merge", err)
		}
		extra = append(extra, r)
		readers = append(readers, r)
	}
	entries, docs, err := segment.Merge(readers)
	if err != nil {
		return SegmentInfo{}, nil, apperrors.IOFailure("merging segments", err)
	}
	name := w.segmentName()
	path := filepath.Join(w.store.dir, name)
	if err := w.seg.Write(name, entries, docs); err != nil {
		return SegmentInfo{}, nil, apperrors.IOFailure("writing merged segment", err)
	}
	r, err := segment.OpenReader(path)
	if err != nil {
		os.Remove(path)
		return SegmentInfo{}, nil, apperrors.IOFailure("opening merged segment", err)
	}
	w.store.logger.Info("segments merged", "from", len(segments), "segment", name, "docs", len(docs))
	return SegmentInfo{
		Name:      name,
		DocCount:  uint32(len(docs)),
		MinDocID:  docs[0].ID,
		MaxDocID:  docs[len(docs)-1].ID,
		SizeBytes: r.SizeBytes(),
	}, r, nil
}

// abort discards uncommitted work: buffered documents and pending segments.
func (w *Writer) abort() {
	for _, info := range w.pending {
		if err := os.Remove(filepath.Join(w.store.dir, info.Name)); err != nil && !os.IsNotExist(err) {
			w.store.logger.Warn("failed to remove uncommitted segment", "segment", info.Name, "error", err)
		}
	}
	w.pending = nil
	w.mem.Reset()
	w.nextID = w.base.NextDocID
	w.added = 0
	w.seq = 0
}

// Close discards uncommitted documents and releases the write lock.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.added > 0 {
		w.store.logger.Warn("writer closed with uncommitted documents", "docs", w.added)
	}
	w.abort()
	err := w.lock.release()
	w.store.writeMu.Unlock()
	return err
}
