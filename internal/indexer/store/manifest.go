package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

const (
	manifestName    = "MANIFEST.json"
	manifestVersion = 1
)

// SegmentInfo describes one committed segment.
type SegmentInfo struct {
	Name      string `json:"name"`
	DocCount  uint32 `json:"doc_count"`
	MinDocID  uint64 `json:"min_doc_id"`
	MaxDocID  uint64 `json:"max_doc_id"`
	SizeBytes int64  `json:"size_bytes"`
}

// Manifest is the commit point of an index. Only segments listed here are
// visible to readers.
type Manifest struct {
	Version     int              `json:"version"`
	Generation  uint64           `json:"generation"`
	NextDocID   uint64           `json:"next_doc_id"`
	Segments    []SegmentInfo    `json:"segments"`
	Analyzer    tokenizer.Config `json:"analyzer"`
	CommittedAt time.Time        `json:"committed_at"`
}

func (m Manifest) clone() Manifest {
	c := m
	c.Segments = append([]SegmentInfo(nil), m.Segments...)
	return c
}

// DocCount sums the documents of every listed segment.
func (m Manifest) DocCount() int64 {
	var n int64
	for _, s := range m.Segments {
		n += int64(s.DocCount)
	}
	return n
}

func readManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return m, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if m.NextDocID == 0 {
		return m, errors.New("manifest has zero next_doc_id")
	}
	return m, nil
}

// writeManifest replaces the manifest atomically: the new content is fully
// written and synced under a temporary name before it is renamed over the
// old one.
func writeManifest(dir string, m Manifest, hook func(stage string) error) (err error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	finalPath := filepath.Join(dir, manifestName)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing manifest: %w", err)
	}
	if hook != nil {
		if err := hook("manifest"); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming manifest: %w", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening index directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing index directory: %w", err)
	}
	return nil
}
