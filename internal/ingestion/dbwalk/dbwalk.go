// Package dbwalk turns every non-null cell of a relational schema into a
// document of the form "table.column: value".
package dbwalk

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Result is the outcome of one walk. Tables lists the tables that were read
// completely; FailedTables the ones skipped after an error.
type Result struct {
	Documents    []indexer.Document `json:"-"`
	Tables       []string           `json:"tables"`
	FailedTables []string           `json:"failed_tables"`
}

type Walker struct {
	db      *sql.DB
	dialect Dialect
	schema  string
	logger  *slog.Logger
}

// New wraps an open database. schema only applies to postgres and defaults
// to public.
func New(db *sql.DB, dialect Dialect, schema string) (*Walker, error) {
	switch dialect {
	case DialectPostgres:
		if schema == "" {
			schema = "public"
		}
	case DialectSQLite:
	default:
		return nil, fmt.Errorf("%w: unknown database dialect %q", apperrors.ErrInvalidInput, dialect)
	}
	return &Walker{
		db:      db,
		dialect: dialect,
		schema:  schema,
		logger:  slog.Default().With("component", "db-walker", "dialect", string(dialect)),
	}, nil
}

// Open connects to the database named by cfg. It returns nil, nil when no
// driver is configured.
func Open(ctx context.Context, cfg config.DatabaseConfig, pg config.PostgresConfig) (*Walker, error) {
	switch Dialect(cfg.Driver) {
	case "":
		return nil, nil
	case DialectPostgres:
		client, err := postgres.New(ctx, pg)
		if err != nil {
			return nil, err
		}
		return New(client.DB, DialectPostgres, cfg.Schema)
	case DialectSQLite:
		db, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("pinging sqlite database: %w", err)
		}
		return New(db, DialectSQLite, "")
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", apperrors.ErrInvalidInput, cfg.Driver)
	}
}

func (w *Walker) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *Walker) Close() error {
	return w.db.Close()
}

// Walk reads every base table. A table that cannot be read is logged and
// skipped; only failing to list tables or a cancelled ctx aborts the walk.
func (w *Walker) Walk(ctx context.Context) (*Result, error) {
	start := time.Now()
	tables, err := w.listTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	res := &Result{Tables: []string{}, FailedTables: []string{}}
	for _, table := range tables {
		docs, err := w.walkTable(ctx, table)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			w.logger.Error("failed to read table, skipping", "table", table, "error", err)
			res.FailedTables = append(res.FailedTables, table)
			continue
		}
		res.Tables = append(res.Tables, table)
		res.Documents = append(res.Documents, docs...)
	}
	w.logger.Info("database walk complete",
		"tables", len(res.Tables),
		"failed_tables", len(res.FailedTables),
		"documents", len(res.Documents),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (w *Walker) listTables(ctx context.Context) ([]string, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if w.dialect == DialectPostgres {
		rows, err = w.db.QueryContext(ctx,
			`SELECT table_name FROM information_schema.tables
			WHERE table_schema = $1 AND table_type = 'BASE TABLE'
			ORDER BY table_name`, w.schema)
	} else {
		rows, err = w.db.QueryContext(ctx,
			`SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (w *Walker) qualified(table string) string {
	if w.dialect == DialectPostgres {
		return pq.QuoteIdentifier(w.schema) + "." + pq.QuoteIdentifier(table)
	}
	return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
}

func (w *Walker) walkTable(ctx context.Context, table string) ([]indexer.Document, error) {
	rows, err := w.db.QueryContext(ctx, "SELECT * FROM "+w.qualified(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	var docs []indexer.Document
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, col := range columns {
			if values[i] == nil {
				continue
			}
			docs = append(docs, indexer.Document{
				Content: fmt.Sprintf("%s.%s: %s", table, col, formatValue(values[i])),
			})
		}
	}
	return docs, rows.Err()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
