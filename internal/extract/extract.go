// Package extract turns uploaded files into plain text. Plain text, docx
// and xlsx are built in; PDF and image extractors are plugged in by the
// caller when available.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Format is the declared kind of a source file.
type Format string

const (
	FormatText        Format = "text"
	FormatDocx        Format = "docx"
	FormatPDF         Format = "pdf"
	FormatImage       Format = "image"
	FormatSpreadsheet Format = "spreadsheet"
)

var extensions = map[string]Format{
	".txt":  FormatText,
	".docx": FormatDocx,
	".pdf":  FormatPDF,
	".png":  FormatImage,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".xls":  FormatSpreadsheet,
	".xlsx": FormatSpreadsheet,
}

// FormatFor maps a filename to its format by extension, case-insensitively.
func FormatFor(filename string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(filename))]
	return f, ok
}

// Extractor returns the text of one document. It returns ErrExtractionEmpty
// when the source holds no text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(data []byte) (string, error)

func (f ExtractorFunc) Extract(data []byte) (string, error) {
	return f(data)
}

// Registry resolves a format to its extractor.
type Registry struct {
	mu         sync.RWMutex
	extractors map[Format]Extractor
	maxBytes   int64
}

// NewRegistry returns a registry with the built-in extractors. maxBytes
// bounds the size of a single source; zero means unlimited.
func NewRegistry(maxBytes int64) *Registry {
	r := &Registry{
		extractors: make(map[Format]Extractor),
		maxBytes:   maxBytes,
	}
	r.Register(FormatText, ExtractorFunc(extractText))
	r.Register(FormatDocx, ExtractorFunc(extractDocx))
	r.Register(FormatSpreadsheet, ExtractorFunc(extractSpreadsheet))
	return r
}

// Register installs or replaces the extractor for format.
func (r *Registry) Register(format Format, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[format] = e
}

// Supports reports whether an extractor is registered for format.
func (r *Registry) Supports(format Format) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extractors[format]
	return ok
}

func (r *Registry) lookup(format Format) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[format]
	return e, ok
}

// Extract reads src and extracts its text as format. A PDF without a text
// layer is handed to the image extractor when one is registered.
func (r *Registry) Extract(src io.Reader, format Format) (string, error) {
	data, err := r.read(src)
	if err != nil {
		return "", err
	}
	e, ok := r.lookup(format)
	if !ok {
		return "", fmt.Errorf("%w: no extractor for %s", apperrors.ErrUnsupportedFormat, format)
	}
	text, err := e.Extract(data)
	if format == FormatPDF && isEmpty(text, err) {
		if ocr, ok := r.lookup(FormatImage); ok {
			text, err = ocr.Extract(data)
		}
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", apperrors.ErrExtractionEmpty
	}
	return text, nil
}

// ExtractFile resolves the format from filename and extracts src.
func (r *Registry) ExtractFile(filename string, src io.Reader) (string, error) {
	format, ok := FormatFor(filename)
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, filepath.Ext(filename))
	}
	return r.Extract(src, format)
}

func (r *Registry) read(src io.Reader) ([]byte, error) {
	if r.maxBytes <= 0 {
		return io.ReadAll(src)
	}
	data, err := io.ReadAll(io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: file larger than %d bytes", apperrors.ErrInvalidInput, r.maxBytes)
	}
	return data, nil
}

func isEmpty(text string, err error) bool {
	if err != nil {
		return errors.Is(err, apperrors.ErrExtractionEmpty)
	}
	return strings.TrimSpace(text) == ""
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !isUTF8(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", apperrors.ErrInvalidInput)
	}
	return string(data), nil
}
