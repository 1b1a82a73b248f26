// Package folder reads every plain-text file below a directory as a
// document, using a bounded pool of readers.
package folder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type Result struct {
	Documents []indexer.Document `json:"-"`
	Files     int                `json:"files"`
	Skipped   int                `json:"skipped"`
	Warnings  []string           `json:"warnings"`
}

type Walker struct {
	registry *extract.Registry
	workers  int
	logger   *slog.Logger
}

func New(registry *extract.Registry, workers int) *Walker {
	if workers <= 0 {
		workers = 4
	}
	return &Walker{
		registry: registry,
		workers:  workers,
		logger:   slog.Default().With("component", "folder-walker"),
	}
}

// Walk collects the .txt files below root, matching the extension
// case-insensitively. Files that cannot be read or hold no text are skipped
// with a warning. Filenames are relative to root with forward slashes.
func (w *Walker) Walk(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", apperrors.ErrInvalidInput, root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("cannot enter path, skipping", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".txt") {
			paths = append(paths, path)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	docs := make([]*indexer.Document, len(paths))
	warnings := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)
			text, err := w.read(path)
			if err != nil {
				warnings[i] = fmt.Sprintf("%s: %v", rel, err)
				w.logger.Warn("skipping file", "file", rel, "error", err)
				return nil
			}
			docs[i] = &indexer.Document{Content: text, Filename: rel}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Files: len(paths), Warnings: []string{}}
	for i, doc := range docs {
		if doc == nil {
			res.Skipped++
			res.Warnings = append(res.Warnings, warnings[i])
			continue
		}
		res.Documents = append(res.Documents, *doc)
	}
	w.logger.Info("folder walk complete", "root", root, "files", res.Files, "skipped", res.Skipped)
	return res, nil
}

func (w *Walker) read(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	text, err := w.registry.Extract(f, extract.FormatText)
	if errors.Is(err, apperrors.ErrExtractionEmpty) {
		return "", errors.New("file is empty")
	}
	return text, err
}
