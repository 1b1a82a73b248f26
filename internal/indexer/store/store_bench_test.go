package store

import (
	"fmt"
	"testing"
)

func BenchmarkCommit(b *testing.B) {
	for _, batch := range []int{1, 100} {
		b.Run(fmt.Sprintf("batch_%d", batch), func(b *testing.B) {
			s, err := Open(b.TempDir(), Options{MaxSegmentsBeforeMerge: 8})
			if err != nil {
				b.Fatal(err)
			}
			defer s.Close()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				w, err := s.OpenWriter()
				if err != nil {
					b.Fatal(err)
				}
				for j := 0; j < batch; j++ {
					if _, err := w.Add(fmt.Sprintf("benchmark document %d %d with ledger terms", i, j), ""); err != nil {
						b.Fatal(err)
					}
				}
				if _, err := w.Commit(); err != nil {
					b.Fatal(err)
				}
				w.Close()
			}
		})
	}
}
