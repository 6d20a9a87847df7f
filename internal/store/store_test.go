package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/dataset"
	"github.com/ibeckermayer/trendteller/internal/types"
)

var day = types.Date{Year: 2024, Month: time.March, Day: 5}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(config.DriverSQLite, filepath.Join(t.TempDir(), "db", "TrendTeller.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenSetsBusyTimeout(t *testing.T) {
	st := openTestStore(t)

	var ms int
	require.NoError(t, st.db.QueryRow("PRAGMA busy_timeout").Scan(&ms))
	assert.Equal(t, 5000, ms)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.Error(t, err)
}

func TestUpsertIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rows := []types.NewsRow{
		{Title: "a", Date: day, Source: "R", URL: "https://a", Sentiment: 3, SearchQuery: "tesla"},
		{Title: "b", Date: day, Source: "AP", URL: "https://b", Sentiment: 5, SearchQuery: "tesla"},
	}

	n, errs := st.UpsertNews(ctx, rows)
	require.Empty(t, errs)
	assert.Equal(t, 2, n)
	first, err := st.NewsByQuery(ctx, "tesla")
	require.NoError(t, err)

	_, errs = st.UpsertNews(ctx, rows)
	require.Empty(t, errs)
	second, err := st.NewsByQuery(ctx, "tesla")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, rows, second)
}

func TestUpsertReplacesNonKeyFields(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, errs := st.UpsertComments(ctx, []types.CommentRow{{Username: "bob", Comment: "moon", Date: day, Sentiment: 2, Ticker: "TSLA"}})
	require.Empty(t, errs)
	_, errs = st.UpsertComments(ctx, []types.CommentRow{{Username: "bob", Comment: "moon", Date: day.AddDays(1), Sentiment: 5, Ticker: "TSLA"}})
	require.Empty(t, errs)

	got, err := st.CommentsByTicker(ctx, "TSLA")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Sentiment)
	assert.Equal(t, day.AddDays(1), got[0].Date)

	n, err := st.Count(ctx, TableComments)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertRowErrorsDoNotStopBatch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	n, errs := st.UpsertNews(ctx, []types.NewsRow{
		{Title: "ok", Date: day, URL: "https://a", Sentiment: 3, SearchQuery: "q"},
		{Title: "bad", Date: day, URL: "https://b", Sentiment: 9, SearchQuery: "q"},
		{Title: "ok too", Date: day, URL: "https://c", Sentiment: 1, SearchQuery: "q"},
	})
	assert.Equal(t, 2, n)
	require.Len(t, errs, 1)

	var writeErr *WriteError
	require.ErrorAs(t, errs[0], &writeErr)
	assert.Equal(t, TableNews, writeErr.Table)
	assert.Equal(t, 1, writeErr.Row)
	assert.Equal(t, "https://b", writeErr.Key)
}

func TestUpsertUnknownTable(t *testing.T) {
	st := openTestStore(t)
	_, errs := st.Upsert(context.Background(), "Posts", nil)
	assert.Len(t, errs, 1)
}

func TestQueriesFilterByEquality(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, errs := st.UpsertNews(ctx, []types.NewsRow{
		{Title: "a", Date: day, URL: "https://a", Sentiment: 3, SearchQuery: "tesla"},
		{Title: "b", Date: day, URL: "https://b", Sentiment: 3, SearchQuery: "apple"},
	})
	require.Empty(t, errs)

	got, err := st.NewsByQuery(ctx, "apple")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://b", got[0].URL)

	got, err = st.NewsByQuery(ctx, "Apple")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsertSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "News" ("News Title", "Date", "Source", "URL", "sentiment", "search_query") VALUES (?, ?, ?, ?, ?, ?) `+
			`ON CONFLICT ("URL") DO UPDATE SET "News Title" = excluded."News Title", "Date" = excluded."Date", "Source" = excluded."Source", `+
			`"sentiment" = excluded."sentiment", "search_query" = excluded."search_query"`,
		upsertSQL(tables[TableNews]))
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: config.DriverPostgres}
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = '?' AND c = $2`, pg.rebind(`SELECT * FROM t WHERE a = ? AND b = '?' AND c = ?`))

	lite := &Store{driver: config.DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestSyncLaterFileWins(t *testing.T) {
	st := openTestStore(t)
	layout := dataset.Layout{Dir: t.TempDir()}
	ctx := context.Background()

	require.NoError(t, layout.AppendNews(layout.NewsPath(day, "tesla"), []types.NewsRow{
		{Title: "old", Date: day, Source: "R", URL: "https://a", Sentiment: 2, SearchQuery: "tesla"},
	}))
	require.NoError(t, layout.AppendNews(layout.NewsPath(day.AddDays(1), "tesla"), []types.NewsRow{
		{Title: "new", Date: day.AddDays(1), Source: "R", URL: "https://a", Sentiment: 4, SearchQuery: "tesla"},
	}))
	require.NoError(t, layout.AppendComments(layout.CommentsPath(day, "TSLA"), []types.CommentRow{
		{Username: "bob", Comment: "moon", Date: day, Sentiment: 5, Ticker: "TSLA"},
	}))

	report, err := Sync(ctx, st, layout)
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Files, 3)
	assert.Equal(t, TableComments, report.Files[0].Table)
	assert.Equal(t, 3, report.Written)
	assert.Zero(t, report.Failed)

	news, err := st.NewsByQuery(ctx, "tesla")
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "new", news[0].Title)
	assert.Equal(t, 4, news[0].Sentiment)

	again, err := Sync(ctx, st, layout)
	require.NoError(t, err)
	assert.NotEqual(t, report.RunID, again.RunID)
	news2, err := st.NewsByQuery(ctx, "tesla")
	require.NoError(t, err)
	assert.Equal(t, news, news2)
}

func TestSyncContinuesPastBadFile(t *testing.T) {
	st := openTestStore(t)
	layout := dataset.Layout{Dir: t.TempDir()}

	writeFile(t, filepath.Join(layout.Dir, dataset.NewsDir, "2024-03-04_x_news_data.csv"), "Title,URL\nx,https://x\n")
	writeFile(t, filepath.Join(layout.Dir, dataset.NewsDir, "2024-03-05_q_news_data.csv"),
		"News Title,Date,Source,URL,sentiment,search_query\n"+
			"fine,2024-03-05,R,https://a,3,q\n"+
			"oob,2024-03-05,R,https://b,7,q\n")

	report, err := Sync(context.Background(), st, layout)
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	assert.Len(t, report.Files[0].Errors, 1)
	assert.Equal(t, 1, report.Files[1].Written)
	assert.Len(t, report.Files[1].Errors, 1)
	assert.Equal(t, 2, report.Failed)

	n, err := st.Count(context.Background(), TableNews)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncEmptyDataset(t *testing.T) {
	st := openTestStore(t)
	report, err := Sync(context.Background(), st, dataset.Layout{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, report.Empty())
}
