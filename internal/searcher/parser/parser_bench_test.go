package parser

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

func BenchmarkParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "quick fox"},
		{"required", "+invoice +acme -draft"},
		{"boolean", "report AND quarterly OR revenue NOT archived"},
		{"fields", "content:ledger filename:pdf filename:txt"},
		{"quoted", "\"full text search\" index"},
		{"long", "inverted index segment manifest commit snapshot reader writer merge posting dictionary"},
	}
	p := New(tokenizer.New(tokenizer.DefaultConfig()))
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := p.Parse(q.query, "content"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
