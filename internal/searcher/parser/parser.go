// Package parser turns a raw query string into a structured Query.
//
// Grammar: whitespace separated terms, each optionally prefixed with
// "field:". Terms are OR-combined. "+term" and the operands of AND are
// required, "-term" and "NOT term" exclude. Double quotes group words into
// one operand. Operators are recognised in upper case only.
package parser

import (
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Occur says how a clause takes part in matching.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Clause matches one analyzed term in one field.
type Clause struct {
	Field string `json:"field"`
	Term  string `json:"term"`
	Occur Occur  `json:"occur"`
}

// Query is the parsed form of a single search request.
type Query struct {
	Raw          string   `json:"raw"`
	DefaultField string   `json:"default_field"`
	Clauses      []Clause `json:"clauses"`
}

// IsEmpty reports whether the query can match anything at all. A query made
// only of exclusions matches nothing.
func (q *Query) IsEmpty() bool {
	for _, c := range q.Clauses {
		if c.Occur != MustNot {
			return false
		}
	}
	return true
}

// String renders the clauses in a canonical form, e.g.
// "+content:fox -filename:pdf content:brown".
func (q *Query) String() string {
	parts := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		parts = append(parts, c.Occur.String()+c.Field+":"+c.Term)
	}
	return strings.Join(parts, " ")
}

// Parser analyzes query terms with the same analyzer the index was built
// with.
type Parser struct {
	analyzer *tokenizer.Analyzer
}

func New(analyzer *tokenizer.Analyzer) *Parser {
	return &Parser{analyzer: analyzer}
}

// Parse parses query against defaultField. A blank query yields an empty
// Query, not an error. Syntax errors wrap ErrMalformedQuery.
func (p *Parser) Parse(query, defaultField string) (*Query, error) {
	q := &Query{Raw: query, DefaultField: defaultField, Clauses: make([]Clause, 0)}
	words, err := split(query)
	if err != nil {
		return nil, err
	}

	var (
		operands    int
		negateNext  bool
		pendingAnd  bool
		lastOperand []int
		seen        = make(map[Clause]struct{})
	)
	for _, word := range words {
		switch word {
		case "AND":
			if operands == 0 || pendingAnd {
				return nil, apperrors.MalformedQuery("AND needs an operand on both sides")
			}
			if negateNext {
				return nil, apperrors.MalformedQuery("NOT must be followed by a term")
			}
			for _, i := range lastOperand {
				if q.Clauses[i].Occur == Should {
					q.Clauses[i].Occur = Must
				}
			}
			pendingAnd = true
			continue
		case "OR":
			if negateNext {
				return nil, apperrors.MalformedQuery("NOT must be followed by a term")
			}
			continue
		case "NOT":
			negateNext = true
			continue
		}

		occur := Should
		text := word
		switch text[0] {
		case '+':
			occur = Must
			text = text[1:]
		case '-':
			occur = MustNot
			text = text[1:]
		}
		if text == "" {
			return nil, apperrors.MalformedQuery("%q must be followed by a term", word)
		}
		if negateNext {
			occur = MustNot
		} else if pendingAnd && occur == Should {
			occur = Must
		}
		negateNext, pendingAnd = false, false

		field, text, err := splitField(text, defaultField)
		if err != nil {
			return nil, err
		}
		operands++
		lastOperand = lastOperand[:0]
		for _, term := range p.analyzer.Terms(strings.ReplaceAll(text, `"`, " ")) {
			c := Clause{Field: field, Term: term, Occur: occur}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			lastOperand = append(lastOperand, len(q.Clauses))
			q.Clauses = append(q.Clauses, c)
		}
	}
	if negateNext {
		return nil, apperrors.MalformedQuery("NOT must be followed by a term")
	}
	if pendingAnd {
		return nil, apperrors.MalformedQuery("AND needs an operand on both sides")
	}
	return q, nil
}

// split breaks the query on whitespace outside double quotes.
func split(query string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range query {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if quoted {
		return nil, apperrors.MalformedQuery("unbalanced quotes")
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words, nil
}

// splitField separates an optional "field:" prefix. A colon inside quotes
// is part of the term.
func splitField(text, defaultField string) (string, string, error) {
	idx := strings.IndexByte(text, ':')
	if idx < 0 || strings.IndexByte(text[:idx], '"') >= 0 {
		return defaultField, text, nil
	}
	field, rest := strings.ToLower(text[:idx]), text[idx+1:]
	if field == "" {
		return "", "", apperrors.MalformedQuery("empty field name in %q", text)
	}
	if rest == "" {
		return "", "", apperrors.MalformedQuery("missing term after %q", field+":")
	}
	return field, rest, nil
}
