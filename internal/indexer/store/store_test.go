package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func openTestStore(t *testing.T, dir string, opts Options) *Store {
	t.Helper()
	s, err := Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addAndCommit(t *testing.T, s *Store, contents ...string) CommitInfo {
	t.Helper()
	w, err := s.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	for _, c := range contents {
		_, err := w.Add(c, "")
		require.NoError(t, err)
	}
	info, err := w.Commit()
	require.NoError(t, err)
	return info
}

func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".spdx") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestOpenCreatesIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index_dir")
	s := openTestStore(t, dir, Options{})

	_, err := os.Stat(filepath.Join(dir, manifestName))
	require.NoError(t, err)
	st := s.Stats()
	assert.Zero(t, st.Generation)
	assert.Zero(t, st.DocCount)

	r, err := s.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	assert.Zero(t, r.DocCount())
	postings, err := r.Postings(index.FieldContent, "anything")
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestSecondWriterConflicts(t *testing.T) {
	s := openTestStore(t, t.TempDir(), Options{})

	w1, err := s.OpenWriter()
	require.NoError(t, err)

	_, err = s.OpenWriter()
	assert.ErrorIs(t, err, apperrors.ErrLockConflict)

	require.NoError(t, w1.Close())
	w2, err := s.OpenWriter()
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestLockHeldByAnotherProcess(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, Options{})

	// A separate flock on the same file conflicts like another process.
	other := flock.New(filepath.Join(dir, lockName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = s.OpenWriter()
	assert.ErrorIs(t, err, apperrors.ErrLockConflict)

	require.NoError(t, other.Unlock())
	w, err := s.OpenWriter()
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestLeftoverLockFileDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockName), []byte("pid=1\n"), 0o644))

	s := openTestStore(t, dir, Options{})
	w, err := s.OpenWriter()
	require.NoError(t, err)
	_, err = w.Add("written after a crash", "")
	require.NoError(t, err)
	_, err = w.Commit()
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestOpenWriterWait(t *testing.T) {
	s := openTestStore(t, t.TempDir(), Options{})
	w1, err := s.OpenWriter()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = s.OpenWriterWait(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, apperrors.ErrLockConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(30 * time.Millisecond)
		w1.Close()
	}()
	w2, err := s.OpenWriterWait(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestUncommittedDocumentsAreInvisible(t *testing.T) {
	s := openTestStore(t, t.TempDir(), Options{})

	w, err := s.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	id, err := w.Add("The quick brown fox", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, 1, w.Pending())

	before, err := s.OpenReader()
	require.NoError(t, err)
	defer before.Close()
	postings, err := before.Postings(index.FieldContent, "fox")
	require.NoError(t, err)
	assert.Empty(t, postings)

	info, err := w.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Generation)
	assert.Equal(t, 1, info.DocsAdded)

	postings, err = before.Postings(index.FieldContent, "fox")
	require.NoError(t, err)
	assert.Empty(t, postings, "snapshot must not change after a commit")

	after, err := s.OpenReader()
	require.NoError(t, err)
	defer after.Close()
	postings, err = after.Postings(index.FieldContent, "fox")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, id, postings[0].DocID)
	assert.Equal(t, uint64(1), after.Generation())
}

func TestCloseWithoutCommitDiscards(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, Options{SegmentMaxSize: 1})

	w, err := s.OpenWriter()
	require.NoError(t, err)
	_, err = w.Add("discarded text", "")
	require.NoError(t, err)
	assert.NotEmpty(t, segmentFiles(t, dir), "tiny buffer forces a pending segment")
	require.NoError(t, w.Close())

	assert.Empty(t, segmentFiles(t, dir))
	assert.Zero(t, s.Stats().DocCount)

	info := addAndCommit(t, s, "kept text")
	assert.Equal(t, uint64(1), info.Generation)
	r, err := s.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	doc, err := r.Document(1)
	require.NoError(t, err)
	assert.Equal(t, "kept text", doc.Content, "IDs of discarded documents are reused")
}

func TestFailedCommitKeepsLastGoodState(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, Options{})
	addAndCommit(t, s, "first document")

	s.failpoint = func(stage string) error { return errors.New("disk full") }
	w, err := s.OpenWriter()
	require.NoError(t, err)
	_, err = w.Add("second document", "")
	require.NoError(t, err)
	_, err = w.Commit()
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
	require.NoError(t, w.Close())
	s.failpoint = nil

	assert.Equal(t, uint64(1), s.Stats().Generation)
	assert.Len(t, segmentFiles(t, dir), 1)
	_, err = os.Stat(filepath.Join(dir, manifestName+".tmp"))
	assert.True(t, os.IsNotExist(err))

	r, err := s.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	postings, err := r.Postings(index.FieldContent, "second")
	require.NoError(t, err)
	assert.Empty(t, postings)

	reopened := openTestStore(t, dir, Options{})
	assert.Equal(t, uint64(1), reopened.Stats().Generation)
	assert.Equal(t, int64(1), reopened.Stats().DocCount)
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{Analyzer: tokenizer.Config{StopWords: true, Stemmer: tokenizer.StemmerEnglish}})
	require.NoError(t, err)
	addAndCommit(t, s, "running dogs")
	require.NoError(t, s.Close())

	s2 := openTestStore(t, dir, Options{})
	assert.Equal(t, tokenizer.StemmerEnglish, s2.Analyzer().Config().Stemmer)
	r, err := s2.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	postings, err := r.Postings(index.FieldContent, "run")
	require.NoError(t, err)
	assert.Len(t, postings, 1)

	w, err := s2.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	id, err := w.Add("another", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestMergeKeepsOpenSnapshotsReadable(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, Options{MaxSegmentsBeforeMerge: 2})

	addAndCommit(t, s, "apple banana")
	addAndCommit(t, s, "apple cherry")
	old, err := s.OpenReader()
	require.NoError(t, err)

	info := addAndCommit(t, s, "apple durian")
	assert.True(t, info.Merged)
	assert.Equal(t, 2, info.Segments)
	assert.GreaterOrEqual(t, len(segmentFiles(t, dir)), 3, "old segments stay while a snapshot uses them")

	postings, err := old.Postings(index.FieldContent, "apple")
	require.NoError(t, err)
	assert.Len(t, postings, 2)
	require.NoError(t, old.Close())
	assert.Len(t, segmentFiles(t, dir), 2)

	r, err := s.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	postings, err = r.Postings(index.FieldContent, "apple")
	require.NoError(t, err)
	require.Len(t, postings, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{postings[0].DocID, postings[1].DocID, postings[2].DocID})
	assert.Equal(t, 3, r.DocFreq(index.FieldContent, "apple"))
	assert.Equal(t, int64(3), r.DocCount())
}

func TestReaderStatistics(t *testing.T) {
	s := openTestStore(t, t.TempDir(), Options{})
	w, err := s.OpenWriter()
	require.NoError(t, err)
	_, err = w.Add("alpha beta gamma", "notes.txt")
	require.NoError(t, err)
	_, err = w.Add("alpha", "")
	require.NoError(t, err)
	_, err = w.Commit()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := s.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	assert.InDelta(t, 2.0, r.AvgFieldLength(index.FieldContent), 1e-9)
	assert.Equal(t, 3, r.FieldLength(1, index.FieldContent))
	assert.Equal(t, 2, r.FieldLength(1, index.FieldFilename))
	assert.Equal(t, 0, r.FieldLength(2, index.FieldFilename))
	assert.Equal(t, 1, s.Stats().OpenReaders)

	_, err = r.Document(99)
	assert.Error(t, err)
}

func TestEmptyCommitIsNoop(t *testing.T) {
	s := openTestStore(t, t.TempDir(), Options{})
	w, err := s.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	info, err := w.Commit()
	require.NoError(t, err)
	assert.Zero(t, info.Generation)
	assert.Zero(t, s.Stats().Generation)
}

func TestOrphansRemovedOnOpen(t *testing.T) {
	dir := t.TempDir()
	openTestStore(t, dir, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seg_9_1.spdx"), []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seg_9_2.spdx.tmp"), []byte("junk"), 0o644))

	openTestStore(t, dir, Options{})
	assert.Empty(t, segmentFiles(t, dir))
	_, err := os.Stat(filepath.Join(dir, "seg_9_2.spdx.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRejectsUnknownStemmer(t *testing.T) {
	_, err := Open(t.TempDir(), Options{Analyzer: tokenizer.Config{Stemmer: "klingon"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMergeWindowPrefersSmallNeighbours(t *testing.T) {
	segs := []SegmentInfo{
		{Name: "a", SizeBytes: 1000},
		{Name: "b", SizeBytes: 10},
		{Name: "c", SizeBytes: 20},
		{Name: "d", SizeBytes: 15},
		{Name: "e", SizeBytes: 500},
	}
	lo, hi := mergeWindow(segs, 4)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 4, hi)

	lo, hi = mergeWindow(segs[:2], 1)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 2, hi)
}

func TestManySmallCommitsStayBounded(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, Options{MaxSegmentsBeforeMerge: 4})
	for i := 0; i < 30; i++ {
		info := addAndCommit(t, s, fmt.Sprintf("document number %d", i))
		assert.LessOrEqual(t, info.Segments, 4)
	}

	r, err := s.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	postings, err := r.Postings(index.FieldContent, "document")
	require.NoError(t, err)
	require.Len(t, postings, 30)
	for i, p := range postings {
		assert.Equal(t, uint64(i+1), p.DocID)
	}
	assert.Len(t, segmentFiles(t, dir), s.Stats().SegmentCount)
}

// openSegmentFDs counts this process's descriptors open on files in dir.
func openSegmentFDs(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("descriptor table not available on this platform")
	}
	n := 0
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err == nil && strings.HasPrefix(target, dir) && strings.HasSuffix(target, ".spdx") {
			n++
		}
	}
	return n
}

func TestConcurrentReadersDuringCommitsLeakNothing(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{MaxSegmentsBeforeMerge: 3})
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				r, err := s.OpenReader()
				if err != nil {
					continue
				}
				r.Close()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		addAndCommit(t, s, fmt.Sprintf("entry %d", i))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, s.Stats().SegmentCount, openSegmentFDs(t, dir))
	require.NoError(t, s.Close())
	assert.Zero(t, openSegmentFDs(t, dir))
}

func TestOpenReportsCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	addAndCommit(t, s, "soon to be damaged")
	require.NoError(t, s.Close())

	files := segmentFiles(t, dir)
	require.Len(t, files, 1)
	path := filepath.Join(dir, files[0])
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := 48; i < 56; i++ {
		data[i] = 0xFF
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(dir, Options{})
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
}

func TestCommitIsDurableOnceManifestIsWritten(t *testing.T) {
	s := openTestStore(t, t.TempDir(), Options{})
	s.failpoint = func(stage string) error {
		if stage == "install" {
			return errors.New("out of descriptors")
		}
		return nil
	}
	w, err := s.OpenWriter()
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Add("made it to disk", "")
	require.NoError(t, err)
	info, err := w.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Generation)
	s.failpoint = nil

	r, err := s.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint64(1), r.Generation())
	postings, err := r.Postings(index.FieldContent, "disk")
	require.NoError(t, err)
	assert.Len(t, postings, 1)
}

func TestFailedFlushDiscardsReturnedIDs(t *testing.T) {
	s := openTestStore(t, t.TempDir(), Options{SegmentMaxSize: 1})
	w, err := s.OpenWriter()
	require.NoError(t, err)
	defer w.Close()

	first, err := w.Add("flushed on its own", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)

	s.failpoint = func(stage string) error { return errors.New("disk full") }
	_, err = w.Add("cannot be flushed", "")
	assert.ErrorIs(t, err, apperrors.ErrIOFailure)
	assert.Zero(t, w.Pending())
	s.failpoint = nil

	again, err := w.Add("after the failure", "")
	require.NoError(t, err)
	assert.Equal(t, first, again, "the discarded ID is handed out again")
}
