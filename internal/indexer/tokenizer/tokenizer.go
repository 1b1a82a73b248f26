// Package tokenizer turns raw text into the normalized terms used as index
// keys. It lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words and optionally applies the Snowball English stemmer.
//
// The same Analyzer configuration must be used at index and query time; the
// store persists it in the manifest for that reason.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Stemmer names accepted by Config.Stemmer.
const (
	StemmerNone    = "none"
	StemmerEnglish = "english"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Config is the fixed analyzer configuration of an index.
type Config struct {
	StopWords bool   `json:"stop_words" yaml:"stopWords"`
	Stemmer   string `json:"stemmer" yaml:"stemmer"`
}

// DefaultConfig mirrors a standard analyzer: stop-words removed, no stemming.
func DefaultConfig() Config {
	return Config{StopWords: true, Stemmer: StemmerNone}
}

// Validate rejects unknown stemmer names.
func (c Config) Validate() error {
	switch c.Stemmer {
	case "", StemmerNone, StemmerEnglish:
		return nil
	default:
		return fmt.Errorf("unknown stemmer %q", c.Stemmer)
	}
}

// Analyzer is a pure function of its Config; it is safe for concurrent use.
type Analyzer struct {
	cfg Config
}

// New returns an Analyzer for cfg. An invalid stemmer falls back to none;
// call Config.Validate first to surface the error.
func New(cfg Config) *Analyzer {
	if cfg.Stemmer == "" || cfg.Validate() != nil {
		cfg.Stemmer = StemmerNone
	}
	return &Analyzer{cfg: cfg}
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze breaks text into lowercased Tokens. Positions count emitted tokens
// only, so removed stop-words leave no gaps.
func (a *Analyzer) Analyze(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if a.cfg.StopWords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		term := word
		if a.cfg.Stemmer == StemmerEnglish {
			term = english.Stem(word, false)
		}
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Analyze without positions.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// IsStopWord reports whether word is in the built-in stop-word set.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}
