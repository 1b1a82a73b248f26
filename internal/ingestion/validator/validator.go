// Package validator checks ingestion requests before they reach the index
// and reports per-field failures.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
)

const (
	maxFilenameLength = 1024
	maxContentLength  = 10 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIndexRequest requires non-blank UTF-8 content and bounds the
// content and filename lengths.
func ValidateIndexRequest(req *ingestion.IndexRequest) error {
	errs := make(map[string]string)

	switch {
	case strings.TrimSpace(req.Content) == "":
		errs["content"] = "content is required"
	case len(req.Content) > maxContentLength:
		errs["content"] = fmt.Sprintf("content must be at most %d bytes", maxContentLength)
	case !utf8.ValidString(req.Content):
		errs["content"] = "content must be valid UTF-8"
	}
	if len(req.Filename) > maxFilenameLength {
		errs["filename"] = fmt.Sprintf("filename must be at most %d characters", maxFilenameLength)
	} else if strings.ContainsRune(req.Filename, 0) {
		errs["filename"] = "filename must not contain NUL"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
