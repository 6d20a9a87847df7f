package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// Table names are kept exactly as the dataset tooling expects them
const (
	TableNews     = "News"
	TableComments = "Stocktwits_Comments"
)

// table describes one upsert target
type table struct {
	name    string
	columns []string
	key     []string
}

var tables = map[string]table{
	TableNews: {
		name:    TableNews,
		columns: []string{"News Title", "Date", "Source", "URL", "sentiment", "search_query"},
		key:     []string{"URL"},
	},
	TableComments: {
		name:    TableComments,
		columns: []string{"Username", "Comment", "date", "sentiment", "Ticker"},
		key:     []string{"Username", "Comment"},
	},
}

// sqliteBusyTimeout bounds how long a write waits on another connection's lock
const sqliteBusyTimeout = 5 * time.Second

// Store handles all database operations
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and creates the schema
func Open(driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case config.DriverSQLite, "":
		driver = config.DriverSQLite
		sqlDriver = "sqlite"
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
	case config.DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == config.DriverSQLite {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
		// other handles on the same file wait for the lock instead of failing
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeout.Milliseconds())); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS "Stocktwits_Comments" (
			"Username" VARCHAR(256) NOT NULL,
			"Comment" TEXT NOT NULL,
			"date" TEXT,
			"sentiment" INTEGER CHECK ("sentiment" BETWEEN 1 AND 5),
			"Ticker" VARCHAR(256),
			PRIMARY KEY ("Username", "Comment")
		)`,
		`CREATE TABLE IF NOT EXISTS "News" (
			"News Title" TEXT,
			"Date" TEXT,
			"Source" VARCHAR(256),
			"URL" TEXT NOT NULL PRIMARY KEY,
			"sentiment" INTEGER CHECK ("sentiment" BETWEEN 1 AND 5),
			"search_query" VARCHAR(256)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_news_query ON "News" ("search_query")`,
		`CREATE INDEX IF NOT EXISTS idx_comments_ticker ON "Stocktwits_Comments" ("Ticker")`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteAll(idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = quote(id)
	}
	return out
}

// upsertSQL builds INSERT ... ON CONFLICT (key) DO UPDATE SET every non-key column
func upsertSQL(t table) string {
	placeholders := make([]string, len(t.columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	isKey := map[string]bool{}
	for _, k := range t.key {
		isKey[k] = true
	}
	var sets []string
	for _, c := range t.columns {
		if !isKey[c] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", quote(c), quote(c)))
		}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quote(t.name),
		strings.Join(quoteAll(t.columns), ", "),
		strings.Join(placeholders, ", "),
		strings.Join(quoteAll(t.key), ", "),
		strings.Join(sets, ", "),
	)
}

// rebind rewrites ? placeholders to $n for postgres
func (s *Store) rebind(query string) string {
	if s.driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteString("$" + strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Upsert inserts each row or replaces every non-key field of the row with the
// same key. values[i] holds one row in the table's column order. Failing rows
// are returned as *WriteError and do not stop the remaining rows.
func (s *Store) Upsert(ctx context.Context, tableName string, values [][]any) (int, []error) {
	t, ok := tables[tableName]
	if !ok {
		return 0, []error{fmt.Errorf("unknown table: %s", tableName)}
	}

	stmt, err := s.db.PrepareContext(ctx, s.rebind(upsertSQL(t)))
	if err != nil {
		return 0, []error{&WriteError{Table: t.name, Row: -1, Err: err}}
	}
	defer stmt.Close()

	written := 0
	var errs []error
	for i, row := range values {
		if len(row) != len(t.columns) {
			errs = append(errs, &WriteError{Table: t.name, Row: i, Err: fmt.Errorf("expected %d values, got %d", len(t.columns), len(row))})
			continue
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			errs = append(errs, &WriteError{Table: t.name, Row: i, Key: keyOf(t, row), Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		written++
	}
	return written, errs
}

func keyOf(t table, row []any) string {
	var parts []string
	for _, k := range t.key {
		for i, c := range t.columns {
			if c == k {
				parts = append(parts, fmt.Sprint(row[i]))
			}
		}
	}
	return strings.Join(parts, "/")
}

// UpsertNews writes news rows keyed by URL
func (s *Store) UpsertNews(ctx context.Context, rows []types.NewsRow) (int, []error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.Title, r.Date.String(), r.Source, r.URL, r.Sentiment, r.SearchQuery}
	}
	return s.Upsert(ctx, TableNews, values)
}

// UpsertComments writes comment rows keyed by (Username, Comment)
func (s *Store) UpsertComments(ctx context.Context, rows []types.CommentRow) (int, []error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.Username, r.Comment, r.Date.String(), r.Sentiment, r.Ticker}
	}
	return s.Upsert(ctx, TableComments, values)
}

// NewsByQuery returns every News row whose search_query equals query
func (s *Store) NewsByQuery(ctx context.Context, query string) ([]types.NewsRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT "News Title", "Date", "Source", "URL", "sentiment", "search_query"
		FROM "News"
		WHERE "search_query" = ?
		ORDER BY "Date", "URL"
	`), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.NewsRow
	for rows.Next() {
		var r types.NewsRow
		var title, date, source, searchQuery sql.NullString
		if err := rows.Scan(&title, &date, &source, &r.URL, &r.Sentiment, &searchQuery); err != nil {
			return nil, err
		}
		if r.Date, err = types.ParseDate(date.String); err != nil {
			return nil, fmt.Errorf("news %s: %w", r.URL, err)
		}
		r.Title, r.Source, r.SearchQuery = title.String, source.String, searchQuery.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// CommentsByTicker returns every Stocktwits_Comments row whose Ticker equals ticker
func (s *Store) CommentsByTicker(ctx context.Context, ticker string) ([]types.CommentRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT "Username", "Comment", "date", "sentiment", "Ticker"
		FROM "Stocktwits_Comments"
		WHERE "Ticker" = ?
		ORDER BY "date", "Username"
	`), ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.CommentRow
	for rows.Next() {
		var r types.CommentRow
		var date, tick sql.NullString
		if err := rows.Scan(&r.Username, &r.Comment, &date, &r.Sentiment, &tick); err != nil {
			return nil, err
		}
		if r.Date, err = types.ParseDate(date.String); err != nil {
			return nil, fmt.Errorf("comment by %s: %w", r.Username, err)
		}
		r.Ticker = tick.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of rows in a table
func (s *Store) Count(ctx context.Context, tableName string) (int, error) {
	if _, ok := tables[tableName]; !ok {
		return 0, fmt.Errorf("unknown table: %s", tableName)
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(tableName)).Scan(&n)
	return n, err
}
