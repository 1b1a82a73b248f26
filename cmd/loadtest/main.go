// Command loadtest drives a running docsearch instance with concurrent
// searches and, optionally, concurrent single-document ingestion to observe
// lock contention.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

var queries = []string{
	"fox",
	"quick brown",
	"+invoice -draft",
	"filename:pdf",
	"report AND quarterly",
	"\"full text\" search",
	"content:revenue OR content:profit",
	"inverted index",
	"NOT archived ledger",
	"database.customers",
}

var words = []string{
	"invoice", "report", "quarterly", "revenue", "ledger", "fox", "archive",
	"customer", "profit", "search", "index", "draft", "summary", "contract",
}

type config struct {
	baseURL       string
	searchWorkers int
	indexWorkers  int
	duration      time.Duration
}

func main() {
	var cfg config
	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the docsearch service")
	flag.IntVar(&cfg.searchWorkers, "search-workers", 10, "concurrent search workers")
	flag.IntVar(&cfg.indexWorkers, "index-workers", 0, "concurrent POST /index workers")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "test duration")
	flag.Parse()

	fmt.Println("=== docsearch load test ===")
	fmt.Printf("Target:          %s\n", cfg.baseURL)
	fmt.Printf("Search workers:  %d\n", cfg.searchWorkers)
	fmt.Printf("Index workers:   %d\n", cfg.indexWorkers)
	fmt.Printf("Duration:        %s\n\n", cfg.duration)

	searches, indexes, elapsed := run(cfg)
	searchSummary := searches.Summary()
	searchSummary.Print(os.Stdout, elapsed)
	if cfg.indexWorkers > 0 {
		indexes.Summary().Print(os.Stdout, elapsed)
	}
	if searchSummary.Total == 0 {
		fmt.Println("WARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(cfg config) (*Stats, *Stats, time.Duration) {
	searches := NewStats("GET /search")
	indexes := NewStats("POST /index")
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        (cfg.searchWorkers + cfg.indexWorkers) * 2,
			MaxIdleConnsPerHost: (cfg.searchWorkers + cfg.indexWorkers) * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < cfg.searchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				q := queries[i%len(queries)]
				target := fmt.Sprintf("%s/search?q=%s&limit=10", cfg.baseURL, url.QueryEscape(q))
				do(ctx, client, searches, http.MethodGet, target, nil)
			}
		}()
	}
	for w := 0; w < cfg.indexWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ctx.Err() == nil; i++ {
				body, _ := json.Marshal(map[string]string{
					"content":  document(w, i),
					"filename": fmt.Sprintf("load-%d-%d.txt", w, i),
				})
				do(ctx, client, indexes, http.MethodPost, cfg.baseURL+"/index", body)
			}
		}()
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	fmt.Print("Running")
	for {
		select {
		case <-ticker.C:
			fmt.Print(".")
		case <-done:
			fmt.Println(" done")
			fmt.Println()
			return searches, indexes, time.Since(start)
		}
	}
}

func document(worker, seq int) string {
	var b bytes.Buffer
	for k := 0; k < 12; k++ {
		b.WriteString(words[(worker*7+seq*3+k*5)%len(words)])
		b.WriteByte(' ')
	}
	return b.String()
}

func do(ctx context.Context, client *http.Client, stats *Stats, method, target string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		stats.Record(0, 0, err)
		return
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.Record(elapsed, 0, err)
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.Record(elapsed, resp.StatusCode, nil)
}
