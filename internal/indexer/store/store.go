// Package store is the durable Index Store: a directory of immutable segment
// files plus a manifest that acts as the commit point.
//
// At most one Writer is open at a time (fail-fast ErrLockConflict); any
// number of Readers may be open, each pinned to the manifest that was
// current when it was opened.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Options configure a Store. Analyzer only applies when a new index is
// created; an existing index keeps the configuration in its manifest.
type Options struct {
	Analyzer               tokenizer.Config
	SegmentMaxSize         int64
	MaxSegmentsBeforeMerge int
}

// Stats is a point-in-time summary of the committed index.
type Stats struct {
	Dir          string    `json:"dir"`
	Generation   uint64    `json:"generation"`
	DocCount     int64     `json:"doc_count"`
	SegmentCount int       `json:"segment_count"`
	SizeBytes    int64     `json:"size_bytes"`
	OpenReaders  int       `json:"open_readers"`
	CommittedAt  time.Time `json:"committed_at"`
}

// segRef counts the snapshots using a segment. The store itself holds one
// reference for every segment of the current manifest.
type segRef struct {
	reader   *segment.Reader
	refs     int
	obsolete bool
}

type Store struct {
	dir      string
	opts     Options
	analyzer *tokenizer.Analyzer
	logger   *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	manifest Manifest
	segments map[string]*segRef
	readers  int
	closed   bool

	// failpoint, when set, is consulted before segment writes and commit steps.
	failpoint func(stage string) error
}

// Open opens the index in dir, creating the directory and an empty index if
// absent.
func Open(dir string, opts Options) (*Store, error) {
	if err := opts.Analyzer.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.IOFailure("creating index directory", err)
	}
	s := &Store{
		dir:      dir,
		opts:     opts,
		logger:   slog.Default().With("component", "index-store", "dir", dir),
		segments: make(map[string]*segRef),
	}

	m, err := readManifest(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		m = Manifest{
			Version:     manifestVersion,
			NextDocID:   1,
			Analyzer:    opts.Analyzer,
			CommittedAt: time.Now().UTC(),
		}
		if m.Analyzer.Stemmer == "" {
			m.Analyzer.Stemmer = tokenizer.StemmerNone
		}
		if err := writeManifest(dir, m, nil); err != nil {
			return nil, apperrors.IOFailure("creating manifest", err)
		}
		if err := syncDir(dir); err != nil {
			return nil, apperrors.IOFailure("creating manifest", err)
		}
		s.logger.Info("created new index", "analyzer", m.Analyzer)
	case err != nil:
		return nil, apperrors.IOFailure("reading manifest", err)
	}
	s.analyzer = tokenizer.New(m.Analyzer)

	if err := s.install(m, nil); err != nil {
		s.Close()
		return nil, err
	}
	s.removeOrphans()
	s.logger.Info("index opened",
		"generation", m.Generation,
		"segments", len(m.Segments),
		"docs", m.DocCount(),
	)
	return s, nil
}

// Dir returns the index directory.
func (s *Store) Dir() string {
	return s.dir
}

// Analyzer returns the analyzer recorded in the manifest.
func (s *Store) Analyzer() *tokenizer.Analyzer {
	return s.analyzer
}

// Generation returns the generation of the latest commit.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest.Generation
}

// LatestGeneration adopts any commit made by another process and returns
// the current generation.
func (s *Store) LatestGeneration() (uint64, error) {
	if err := s.refresh(); err != nil {
		return 0, err
	}
	return s.Generation(), nil
}

// OpenWriter acquires the exclusive write lock, failing fast with
// ErrLockConflict when another writer holds it.
func (s *Store) OpenWriter() (*Writer, error) {
	if !s.writeMu.TryLock() {
		return nil, fmt.Errorf("%w: writer already open in this process", apperrors.ErrLockConflict)
	}
	lock, err := acquireFileLock(s.dir)
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}
	if err := s.refresh(); err != nil {
		lock.release()
		s.writeMu.Unlock()
		return nil, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		lock.release()
		s.writeMu.Unlock()
		return nil, fmt.Errorf("%w: store closed", apperrors.ErrIOFailure)
	}
	base := s.manifest.clone()
	s.mu.Unlock()
	return newWriter(s, lock, base), nil
}

// OpenWriterWait polls OpenWriter until the lock is free or ctx is done.
// Only the wait for the lock is bounded by ctx.
func (s *Store) OpenWriterWait(ctx context.Context, poll time.Duration) (*Writer, error) {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		w, err := s.OpenWriter()
		if err == nil || !errors.Is(err, apperrors.ErrLockConflict) {
			return w, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for write lock: %w (%w)", err, ctx.Err())
		case <-ticker.C:
		}
	}
}

// OpenReader returns a snapshot of the latest commit. Later commits are not
// visible through it.
func (s *Store) OpenReader() (*Reader, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", apperrors.ErrIOFailure)
	}
	m := s.manifest.clone()
	readers := make([]*segment.Reader, 0, len(m.Segments))
	for _, info := range m.Segments {
		ref := s.segments[info.Name]
		ref.refs++
		readers = append(readers, ref.reader)
	}
	s.readers++
	return newReader(s, m, readers), nil
}

// Stats summarises the current commit.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Dir:          s.dir,
		Generation:   s.manifest.Generation,
		DocCount:     s.manifest.DocCount(),
		SegmentCount: len(s.manifest.Segments),
		OpenReaders:  s.readers,
		CommittedAt:  s.manifest.CommittedAt,
	}
	for _, info := range s.manifest.Segments {
		st.SizeBytes += info.SizeBytes
	}
	return st
}

// Close releases the store's segment references. Open readers keep their
// segments until they are closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for _, info := range s.manifest.Segments {
		if err := s.releaseLocked(info.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// refresh adopts a newer manifest written by another process.
func (s *Store) refresh() error {
	m, err := readManifest(s.dir)
	if err != nil {
		return apperrors.IOFailure("reading manifest", err)
	}
	s.mu.Lock()
	current := s.manifest.Generation
	s.mu.Unlock()
	if m.Generation <= current {
		return nil
	}
	s.logger.Info("adopting newer commit", "generation", m.Generation)
	return s.install(m, nil)
}

// adopt installs a manifest this process has just renamed into place.
func (s *Store) adopt(m Manifest, opened map[string]*segment.Reader) error {
	if s.failpoint != nil {
		if err := s.failpoint("install"); err != nil {
			for _, r := range opened {
				r.Close()
			}
			return err
		}
	}
	return s.install(m, opened)
}

// install makes m the current manifest. opened holds readers the caller has
// already opened for new segments; ownership passes to the store. A reader
// for a segment that is already registered, because a concurrent refresh
// adopted the same commit first, is closed.
func (s *Store) install(m Manifest, opened map[string]*segment.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Generation < s.manifest.Generation {
		for _, r := range opened {
			r.Close()
		}
		return nil
	}

	added := make([]string, 0, len(m.Segments))
	for _, info := range m.Segments {
		if ref, ok := s.segments[info.Name]; ok {
			if r, dup := opened[info.Name]; dup {
				r.Close()
				delete(opened, info.Name)
			}
			if !containsSegment(s.manifest.Segments, info.Name) {
				ref.refs++
			}
			continue
		}
		r, ok := opened[info.Name]
		if ok {
			delete(opened, info.Name)
		} else {
			var err error
			r, err = segment.OpenReader(filepath.Join(s.dir, info.Name))
			if err != nil {
				for _, name := range added {
					s.segments[name].reader.Close()
					delete(s.segments, name)
				}
				for _, r := range opened {
					r.Close()
				}
				return apperrors.IOFailure("opening segment "+info.Name, err)
			}
		}
		s.segments[info.Name] = &segRef{reader: r, refs: 1}
		added = append(added, info.Name)
	}
	for _, r := range opened {
		r.Close()
	}

	for _, info := range s.manifest.Segments {
		if containsSegment(m.Segments, info.Name) {
			continue
		}
		s.segments[info.Name].obsolete = true
		if err := s.releaseLocked(info.Name); err != nil {
			s.logger.Error("releasing obsolete segment", "segment", info.Name, "error", err)
		}
	}
	s.manifest = m
	return nil
}

func containsSegment(list []SegmentInfo, name string) bool {
	for _, info := range list {
		if info.Name == name {
			return true
		}
	}
	return false
}

// releaseLocked drops one reference to a segment, closing it when unused
// and deleting the file once it is no longer part of any commit.
func (s *Store) releaseLocked(name string) error {
	ref, ok := s.segments[name]
	if !ok {
		return nil
	}
	ref.refs--
	if ref.refs > 0 {
		return nil
	}
	delete(s.segments, name)
	err := ref.reader.Close()
	if ref.obsolete {
		if rmErr := os.Remove(filepath.Join(s.dir, name)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("removing obsolete segment: %w", rmErr)
		}
		s.logger.Debug("obsolete segment removed", "segment", name)
	}
	return err
}

func (s *Store) releaseReader(segments []*segment.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range segments {
		if err := s.releaseLocked(r.Name()); err != nil {
			s.logger.Error("releasing segment", "segment", r.Name(), "error", err)
		}
	}
	s.readers--
}

// removeOrphans deletes temp files and segments no commit references. It
// only runs when the write lock is free, so no live writer owns them.
func (s *Store) removeOrphans() {
	lock, err := acquireFileLock(s.dir)
	if err != nil {
		return
	}
	defer lock.release()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		name := entry.Name()
		orphan := strings.HasSuffix(name, ".tmp") ||
			strings.HasSuffix(name, segment.FileExt) && !containsSegment(s.manifest.Segments, name)
		if entry.IsDir() || !orphan {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to remove orphan file", "file", name, "error", err)
			continue
		}
		s.logger.Info("removed orphan file", "file", name)
	}
}
