// Command docindex bulk-loads a folder of text files or a database schema
// into an index directory without running the HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/dbwalk"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/folder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		indexDir   = flag.String("index", "", "index directory (overrides config)")
		folderPath = flag.String("folder", "", "index every .txt file below this directory")
		database   = flag.String("db", "", "index a database: postgres (uses config) or a sqlite file path")
		policy     = flag.String("policy", "", "commit policy: per_document or batch (overrides config)")
		lockWait   = flag.Duration("lock-wait", -1, "how long to wait for the write lock (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	if *indexDir != "" {
		cfg.Index.Dir = *indexDir
	}
	if *policy != "" {
		cfg.Index.CommitPolicy = *policy
	}
	if *lockWait >= 0 {
		cfg.Index.LockWaitTimeout = *lockWait
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if (*folderPath == "") == (*database == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -folder or -db is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *folderPath, *database); err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, folderPath, database string) error {
	st, err := store.Open(cfg.Index.Dir, store.Options{
		Analyzer: tokenizer.Config{
			StopWords: cfg.Index.StopWords,
			Stemmer:   cfg.Index.Stemmer,
		},
		SegmentMaxSize:         cfg.Index.SegmentMaxSize,
		MaxSegmentsBeforeMerge: cfg.Index.MaxSegmentsBeforeMerge,
	})
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer st.Close()
	engine := indexer.NewEngine(st, cfg.Index, nil)

	start := time.Now()
	var (
		docs   []indexer.Document
		source string
	)
	if folderPath != "" {
		source = indexer.SourceFolder
		res, err := folder.New(extract.NewRegistry(cfg.Ingest.MaxFileBytes), cfg.Ingest.Workers).Walk(ctx, folderPath)
		if err != nil {
			return fmt.Errorf("walking folder: %w", err)
		}
		for _, w := range res.Warnings {
			slog.Warn("skipped", "detail", w)
		}
		docs = res.Documents
	} else {
		source = indexer.SourceDatabase
		dbCfg := config.DatabaseConfig{Driver: string(dbwalk.DialectPostgres), Schema: cfg.Database.Schema}
		if database != string(dbwalk.DialectPostgres) {
			dbCfg = config.DatabaseConfig{Driver: string(dbwalk.DialectSQLite), Path: database}
		}
		walker, err := dbwalk.Open(ctx, dbCfg, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer walker.Close()
		res, err := walker.Walk(ctx)
		if err != nil {
			return fmt.Errorf("walking database: %w", err)
		}
		for _, table := range res.FailedTables {
			slog.Warn("table skipped", "table", table)
		}
		docs = res.Documents
	}

	res, err := engine.Ingest(indexer.WithSource(ctx, source), docs)
	slog.Info("indexing finished",
		"source", source,
		"indexed", res.Indexed,
		"failed", res.Failed,
		"generation", st.Generation(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if err != nil && res.Indexed == 0 && len(docs) > 0 {
		return err
	}
	if err != nil {
		slog.Warn("some documents were not indexed", "error", err)
	}
	return nil
}
