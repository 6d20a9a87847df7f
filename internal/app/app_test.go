package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/dataset"
	"github.com/ibeckermayer/trendteller/internal/ingest"
	"github.com/ibeckermayer/trendteller/internal/report"
	"github.com/ibeckermayer/trendteller/internal/scraper"
	"github.com/ibeckermayer/trendteller/internal/stock"
	"github.com/ibeckermayer/trendteller/internal/textnorm"
	"github.com/ibeckermayer/trendteller/internal/types"
)

func d(day int) types.Date {
	return types.Date{Year: 2024, Month: time.March, Day: day}
}

type fakeNews struct {
	result *scraper.SearchResult
	err    error
	count  int
}

func (f *fakeNews) SearchNews(_ context.Context, _ string, count int) (*scraper.SearchResult, error) {
	f.count = count
	return f.result, f.err
}

type fakePrices struct {
	prices []types.PriceRecord
	err    error
}

func (f *fakePrices) Fetch(context.Context, string, types.Date, types.Date) ([]types.PriceRecord, error) {
	return f.prices, f.err
}

// wordScorer labels "up" texts 5, "down" texts 1 and anything else 3
type wordScorer struct{}

func (wordScorer) ScoreAll(_ context.Context, texts []string) ([]int, []error) {
	labels := make([]int, len(texts))
	for i, text := range texts {
		switch {
		case strings.Contains(text, "up"):
			labels[i] = 5
		case strings.Contains(text, "down"):
			labels[i] = 1
		default:
			labels[i] = 3
		}
	}
	return labels, make([]error, len(texts))
}

// memCache is an in-memory report cache that counts invalidations
type memCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (m *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (m *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memCache) Invalidate(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.data)
	m.data = map[string][]byte{}
	m.invalidated++
	return n, nil
}

func (m *memCache) Close() error { return nil }

func newTestApp(t *testing.T, news *fakeNews, prices *fakePrices) *App {
	t.Helper()
	return newCachedTestApp(t, news, prices, nil)
}

func newCachedTestApp(t *testing.T, news *fakeNews, prices *fakePrices, c *memCache) *App {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Dataset.Dir = dir
	cfg.Store.DSN = filepath.Join(dir, "TrendTeller.db")
	cfg.Report.OutputDir = filepath.Join(dir, "reports")

	layout := dataset.Layout{Dir: dir}
	in := ingest.New(textnorm.New(nil), wordScorer{}, layout)
	in.SetClock(func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.Local) })

	var (
		builderCache report.Cache
		appCache     ReportCache
	)
	if c != nil {
		builderCache, appCache = c, c
	}
	reports, err := report.New(layout, cfg.Report.OutputDir, builderCache, time.Minute)
	require.NoError(t, err)

	return New(cfg, filepath.Join(dir, "config.toml"), Components{
		News:     news,
		Prices:   prices,
		Ingestor: in,
		Reports:  reports,
		Cache:    appCache,
	})
}

func headlines() *scraper.SearchResult {
	return &scraper.SearchResult{
		Records: []types.RawRecord{
			{Body: "Tesla stock down", Identity: "https://a.example/1", Source: "A", Date: d(4)},
			{Body: "Tesla stock flat", Identity: "https://a.example/2", Source: "A", Date: d(5)},
			{Body: "Tesla stock up", Identity: "https://a.example/3", Source: "B", Date: d(6)},
		},
		Pages:    2,
		Warnings: []string{"error fetching page 10: timeout"},
	}
}

func TestScrapeNews(t *testing.T) {
	news := &fakeNews{result: headlines()}
	a := newTestApp(t, news, &fakePrices{})

	res, err := a.ScrapeNews(context.Background(), "tesla", 0)
	require.NoError(t, err)
	assert.Equal(t, a.Config().Scraping.NewsCount, news.count)
	assert.Len(t, res.Records, 3)
	assert.Contains(t, res.Warnings, "error fetching page 10: timeout")
	assert.FileExists(t, res.Path)
}

func TestScrapeNewsErrors(t *testing.T) {
	a := newTestApp(t, &fakeNews{err: scraper.ErrEmptyQuery}, &fakePrices{})
	_, err := a.ScrapeNews(context.Background(), "", 5)
	assert.ErrorIs(t, err, scraper.ErrEmptyQuery)

	a = newTestApp(t, &fakeNews{result: &scraper.SearchResult{}}, &fakePrices{})
	_, err = a.ScrapeNews(context.Background(), "tesla", 5)
	assert.ErrorIs(t, err, ingest.ErrNoData)
}

func TestUploadCommentsRequiresTicker(t *testing.T) {
	a := newTestApp(t, &fakeNews{}, &fakePrices{})
	_, err := a.UploadComments(context.Background(), strings.NewReader("Username,Comment\na,b\n"), "c.csv", "")
	assert.Error(t, err)
}

func TestFetchStock(t *testing.T) {
	prices := &fakePrices{prices: []types.PriceRecord{{Date: d(4), AdjClose: 10, Volume: 100}}}
	a := newTestApp(t, &fakeNews{}, prices)

	res, err := a.FetchStock(context.Background(), "TSLA", d(1), d(8))
	require.NoError(t, err)
	assert.FileExists(t, res.Path)

	saved, err := dataset.ReadPrices(res.Path)
	require.NoError(t, err)
	assert.Equal(t, prices.prices[0].Date, saved[0].Date)

	prices.err = stock.ErrNoData
	_, err = a.FetchStock(context.Background(), "TSLA", d(1), d(8))
	assert.ErrorIs(t, err, stock.ErrNoData)
}

func TestPipelineEndToEnd(t *testing.T) {
	prices := &fakePrices{prices: []types.PriceRecord{
		{Date: d(4), AdjClose: 10, Volume: 100},
		{Date: d(5), AdjClose: 11, Volume: 200},
		{Date: d(6), AdjClose: 12, Volume: 300},
	}}
	a := newTestApp(t, &fakeNews{result: headlines()}, prices)
	ctx := context.Background()

	_, err := a.ScrapeNews(ctx, "tesla", 3)
	require.NoError(t, err)
	_, err = a.UploadComments(ctx, strings.NewReader("Username,Comment\nann,going up\nbob,going down\n"), "c.csv", "TSLA")
	require.NoError(t, err)
	_, err = a.FetchStock(ctx, "TSLA", d(1), d(8))
	require.NoError(t, err)

	// nothing reaches the store before the sync
	before, err := a.BuildReport(ctx, report.Request{Query: "tesla", CommentsTicker: "TSLA", StockTicker: "TSLA"})
	require.NoError(t, err)
	assert.Zero(t, before.NewsCount)

	sync, err := a.UpdateDatabase(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, sync.Written)
	assert.Zero(t, sync.Failed)

	r, path, err := a.Report(ctx, report.Request{Query: "tesla", CommentsTicker: "TSLA", StockTicker: "TSLA"})
	require.NoError(t, err)
	assert.Equal(t, 3, r.NewsCount)
	assert.Equal(t, 2, r.CommentCount)

	for _, p := range r.Pairings {
		switch p.Pairing.Name {
		case "news_price", "news_volume":
			assert.True(t, p.Coefficient.Defined, p.Pairing.Name)
			assert.InDelta(t, 1.0, p.Coefficient.Value, 1e-9, p.Pairing.Name)
		default:
			// comments all land on one day
			assert.False(t, p.Coefficient.Defined, p.Pairing.Name)
		}
	}

	latest, err := report.LatestReport(a.Config().Report.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, path, latest)
}

func TestFetchStockInvalidatesCachedReports(t *testing.T) {
	c := newMemCache()
	prices := &fakePrices{prices: []types.PriceRecord{{Date: d(4), AdjClose: 10, Volume: 100}}}
	a := newCachedTestApp(t, &fakeNews{}, prices, c)
	ctx := context.Background()
	req := report.Request{Query: "tesla", CommentsTicker: "TSLA", StockTicker: "TSLA"}

	_, err := a.FetchStock(ctx, "TSLA", d(1), d(8))
	require.NoError(t, err)
	first, err := a.BuildReport(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Prices, 1)

	prices.prices = append(prices.prices, types.PriceRecord{Date: d(5), AdjClose: 11, Volume: 200})
	_, err = a.FetchStock(ctx, "TSLA", d(1), d(8))
	require.NoError(t, err)

	second, err := a.BuildReport(ctx, req)
	require.NoError(t, err)
	assert.Len(t, second.Prices, 2, "report must not come from the stale cache")
	assert.Equal(t, 2, c.invalidated)
}

func TestUpdateDatabaseInvalidatesAfterPartialSync(t *testing.T) {
	c := newMemCache()
	a := newCachedTestApp(t, &fakeNews{}, &fakePrices{}, c)
	ctx := context.Background()

	_, err := a.UploadComments(ctx, strings.NewReader("Username,Comment\nann,going up\n"), "c.csv", "TSLA")
	require.NoError(t, err)
	// a file where the news folder should be fails the second pass
	require.NoError(t, os.WriteFile(filepath.Join(a.Config().Dataset.Dir, dataset.NewsDir), nil, 0644))

	rep, err := a.UpdateDatabase(ctx)
	require.Error(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, 1, rep.Written)
	assert.Equal(t, 1, c.invalidated)
}

func TestUpdateDatabaseRunsOneAtATime(t *testing.T) {
	a := newTestApp(t, &fakeNews{}, &fakePrices{})
	ctx := context.Background()
	_, err := a.UploadComments(ctx, strings.NewReader("Username,Comment\nann,going up\nbob,going down\n"), "c.csv", "TSLA")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = a.UpdateDatabase(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestReloadConfigKeepsStateOnError(t *testing.T) {
	a := newTestApp(t, &fakeNews{}, &fakePrices{})
	before := a.Config()

	require.NoError(t, os.WriteFile(a.configPath, []byte("version = \"not a number\""), 0600))
	assert.Error(t, a.ReloadConfig())
	assert.Same(t, before, a.Config())

	a.configPath = filepath.Join(t.TempDir(), "missing.toml")
	err := a.ReloadConfig()
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Same(t, before, a.Config())
}
