package index

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

const benchDoc = "this is a benchmark document with several terms for testing the indexing performance of the memory index"

func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := NewMemoryIndex(tokenizer.New(tokenizer.DefaultConfig()))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mi.AddDocument(uint64(i+1), benchDoc, "bench.txt")
	}
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	mi := NewMemoryIndex(tokenizer.New(tokenizer.DefaultConfig()))
	for i := 0; i < 10000; i++ {
		mi.AddDocument(uint64(i+1), "search engine with inverted indexing and query processing", "")
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mi.Search(FieldContent, "search")
	}
}

func BenchmarkMemoryIndexSnapshot(b *testing.B) {
	mi := NewMemoryIndex(tokenizer.New(tokenizer.DefaultConfig()))
	for i := 0; i < 2000; i++ {
		mi.AddDocument(uint64(i+1), benchDoc, "")
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = mi.Snapshot()
	}
}
