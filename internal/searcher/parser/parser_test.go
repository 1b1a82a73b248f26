package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func newParser() *Parser {
	return New(tokenizer.New(tokenizer.DefaultConfig()))
}

func TestParseImplicitOr(t *testing.T) {
	q, err := newParser().Parse("Quick  brown fox", "content")
	require.NoError(t, err)
	assert.Equal(t, []Clause{
		{Field: "content", Term: "quick", Occur: Should},
		{Field: "content", Term: "brown", Occur: Should},
		{Field: "content", Term: "fox", Occur: Should},
	}, q.Clauses)
	assert.Equal(t, "content", q.DefaultField)
	assert.False(t, q.IsEmpty())
}

func TestParseFieldPrefix(t *testing.T) {
	q, err := newParser().Parse("Filename:inv.pdf invoice", "content")
	require.NoError(t, err)
	assert.Equal(t, []Clause{
		{Field: "filename", Term: "inv", Occur: Should},
		{Field: "filename", Term: "pdf", Occur: Should},
		{Field: "content", Term: "invoice", Occur: Should},
	}, q.Clauses)
}

func TestParseOperators(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"plus and minus", "+fox -dog cat", "+content:fox -content:dog content:cat"},
		{"and binds both sides", "fox AND dog cat", "+content:fox +content:dog content:cat"},
		{"not excludes", "fox NOT dog", "content:fox -content:dog"},
		{"or is a no-op", "fox OR dog", "content:fox content:dog"},
		{"and keeps exclusion", "fox AND -dog", "+content:fox -content:dog"},
		{"lowercase operators are terms", "fox or dog", "content:fox content:dog"},
		{"quoted group", `"brown fox" filename:"x y"`, "content:brown content:fox filename:x filename:y"},
		{"colon inside quotes", `"x:y"`, "content:x content:y"},
		{"duplicates collapse", "fox fox FOX", "content:fox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := newParser().Parse(tt.query, "content")
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())
		})
	}
}

func TestParseBlankQueryIsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n", "the of", `""`} {
		q, err := newParser().Parse(raw, "content")
		require.NoError(t, err, raw)
		assert.True(t, q.IsEmpty(), raw)
	}
}

func TestParseOnlyExclusionsIsEmpty(t *testing.T) {
	q, err := newParser().Parse("-fox NOT dog", "content")
	require.NoError(t, err)
	assert.Len(t, q.Clauses, 2)
	assert.True(t, q.IsEmpty())
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{
		"content:",
		":fox",
		"+",
		"fox -",
		"NOT",
		"fox NOT",
		"AND fox",
		"fox AND",
		"fox AND AND dog",
		"NOT AND fox",
		`"unterminated`,
		`fox "a b`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := newParser().Parse(raw, "content")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedQuery)
			assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
		})
	}
}

func TestParseUsesIndexAnalyzer(t *testing.T) {
	p := New(tokenizer.New(tokenizer.Config{StopWords: true, Stemmer: tokenizer.StemmerEnglish}))
	q, err := p.Parse("Running dogs", "content")
	require.NoError(t, err)
	assert.Equal(t, "content:run content:dog", q.String())
}
