// Package app wires the pipeline together behind one method per user action.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/ibeckermayer/trendteller/internal/analyzer"
	"github.com/ibeckermayer/trendteller/internal/cache"
	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/dataset"
	"github.com/ibeckermayer/trendteller/internal/ingest"
	"github.com/ibeckermayer/trendteller/internal/report"
	"github.com/ibeckermayer/trendteller/internal/scraper"
	"github.com/ibeckermayer/trendteller/internal/stock"
	"github.com/ibeckermayer/trendteller/internal/store"
	"github.com/ibeckermayer/trendteller/internal/textnorm"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// NewsSearcher collects raw headlines for a query
type NewsSearcher interface {
	SearchNews(ctx context.Context, query string, count int) (*scraper.SearchResult, error)
}

// PriceFetcher returns daily bars for ticker in [start, end)
type PriceFetcher interface {
	Fetch(ctx context.Context, ticker string, start, end types.Date) ([]types.PriceRecord, error)
}

// ReportCache drops cached reports once their inputs change.
// *cache.RedisCache satisfies it.
type ReportCache interface {
	Invalidate(ctx context.Context) (int, error)
	Close() error
}

// Components are the collaborators an App runs. Cache may be nil.
type Components struct {
	News     NewsSearcher
	Prices   PriceFetcher
	Ingestor *ingest.Ingestor
	Reports  *report.Builder
	Cache    ReportCache
}

// App holds the application state.
type App struct {
	mu         sync.RWMutex
	syncMu     sync.Mutex // one database sync at a time
	configPath string

	// Mutable fields - use getSnapshot() for concurrent access.
	config     *config.Config
	components Components
}

// snapshot holds fields that may be replaced by ReloadConfig.
type snapshot struct {
	config *config.Config
	Components
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{config: a.config, Components: a.components}
}

// New creates an App from explicit components. configPath is reread by
// ReloadConfig; empty means the default location.
func New(cfg *config.Config, configPath string, c Components) *App {
	return &App{config: cfg, configPath: configPath, components: c}
}

// NewFromConfig builds every component the config describes
func NewFromConfig(cfg *config.Config, configPath string) (*App, error) {
	c, err := buildComponents(cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, configPath, c), nil
}

func buildComponents(cfg *config.Config) (Components, error) {
	layout := dataset.Layout{Dir: cfg.Dataset.Dir}

	lemmatizer, err := textnorm.NewGolemLemmatizer()
	if err != nil {
		return Components{}, err
	}

	var exchangeDir string
	if cfg.Analysis.CacheExchanges {
		if exchangeDir, err = dataset.ExchangeDir(); err != nil {
			slog.Warn("Exchange logging disabled", "err", err)
		}
	}
	scorer, err := analyzer.New(cfg.Analysis, exchangeDir)
	if err != nil {
		return Components{}, err
	}

	// a nil *RedisCache must stay a nil interface
	var (
		builderCache report.Cache
		appCache     ReportCache
	)
	if redisCache := cache.NewRedisCache(cfg.Redis); redisCache != nil {
		builderCache, appCache = redisCache, redisCache
	}
	reports, err := report.New(layout, cfg.Report.OutputDir, builderCache, time.Duration(cfg.Report.CacheTTLSeconds)*time.Second)
	if err != nil {
		return Components{}, err
	}

	return Components{
		News:     scraper.New(cfg.Scraping),
		Prices:   stock.NewFetcher(stock.WithBaseURL(cfg.Stock.Endpoint)),
		Ingestor: ingest.New(textnorm.New(lemmatizer), scorer, layout),
		Reports:  reports,
		Cache:    appCache,
	}, nil
}

// Config returns the current configuration
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

func (s snapshot) layout() dataset.Layout {
	return dataset.Layout{Dir: s.config.Dataset.Dir}
}

// ScrapeNews collects headlines for query, scores them and appends them to
// the day's news file. count <= 0 uses the configured amount. Page
// failures come back as warnings on the result.
func (a *App) ScrapeNews(ctx context.Context, query string, count int) (*ingest.Result, error) {
	s := a.getSnapshot()
	if count <= 0 {
		count = s.config.Scraping.NewsCount
	}

	slog.Info("Scraping news", "query", query, "count", count)
	found, err := s.News.SearchNews(ctx, query, count)
	if err != nil {
		return nil, err
	}
	slog.Info("Scraped headlines", "query", query, "records", len(found.Records), "pages", found.Pages)

	result, err := s.Ingestor.IngestNews(ctx, query, found.Records)
	if result != nil {
		result.Warnings = append(found.Warnings, result.Warnings...)
	}
	return result, err
}

// UploadComments scores an uploaded comments file for ticker
func (a *App) UploadComments(ctx context.Context, r io.Reader, name, ticker string) (*ingest.Result, error) {
	if ticker == "" {
		return nil, errors.New("enter a ticker for the uploaded comments")
	}
	s := a.getSnapshot()
	slog.Info("Processing uploaded comments", "file", name, "ticker", ticker)
	return s.Ingestor.IngestUpload(ctx, r, name, ticker)
}

// StockResult is the outcome of a price fetch
type StockResult struct {
	Ticker string              `json:"ticker"`
	Path   string              `json:"path"`
	Prices []types.PriceRecord `json:"prices"`
}

// FetchStock downloads daily bars for [start, end) and replaces the
// ticker's price file.
func (a *App) FetchStock(ctx context.Context, ticker string, start, end types.Date) (*StockResult, error) {
	s := a.getSnapshot()
	prices, err := s.Prices.Fetch(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	path := s.layout().StockPath(ticker)
	if err := dataset.WritePrices(path, prices); err != nil {
		return nil, fmt.Errorf("failed to save prices: %w", err)
	}
	slog.Info("Saved stock prices", "ticker", ticker, "path", path, "rows", len(prices))
	s.invalidateReports(ctx)
	return &StockResult{Ticker: ticker, Path: path, Prices: prices}, nil
}

// UpdateDatabase syncs every flat file into the store and drops cached
// reports. Concurrent calls run one after another.
func (a *App) UpdateDatabase(ctx context.Context) (*store.SyncReport, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	s := a.getSnapshot()

	st, err := store.Open(s.config.Store.Driver, s.config.Store.DSN)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	rep, err := store.Sync(ctx, st, s.layout())
	// a failed pass may still have written rows
	s.invalidateReports(context.WithoutCancel(ctx))
	return rep, err
}

// invalidateReports drops every cached report. Failures are logged only.
func (s snapshot) invalidateReports(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if n, err := s.Cache.Invalidate(ctx); err != nil {
		slog.Warn("Failed to invalidate report cache", "err", err)
	} else if n > 0 {
		slog.Info("Invalidated cached reports", "keys", n)
	}
}

// BuildReport correlates stored sentiment with prices for req
func (a *App) BuildReport(ctx context.Context, req report.Request) (*report.Report, error) {
	s := a.getSnapshot()

	st, err := store.Open(s.config.Store.Driver, s.config.Store.DSN)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return s.Reports.Build(ctx, st, req)
}

// RenderReport returns the HTML page for r
func (a *App) RenderReport(r *report.Report) ([]byte, error) {
	return a.getSnapshot().Reports.Render(r)
}

// Report builds the report for req and saves its HTML page
func (a *App) Report(ctx context.Context, req report.Request) (*report.Report, string, error) {
	r, err := a.BuildReport(ctx, req)
	if err != nil {
		return nil, "", err
	}
	path, err := a.getSnapshot().Reports.Save(r)
	if err != nil {
		return r, "", err
	}
	slog.Info("Report saved", "path", path, "warnings", len(r.Warnings))
	return r, path, nil
}

// OpenLastReport opens the most recent saved report in the browser
func (a *App) OpenLastReport() error {
	s := a.getSnapshot()

	path, err := report.LatestReport(s.config.Report.OutputDir)
	if err != nil {
		slog.Warn("No report found", "err", err)
		return err
	}

	slog.Info("Opening report", "path", path)
	return browser.OpenFile(path)
}

// ReloadConfig reloads the configuration from disk and rebuilds components.
func (a *App) ReloadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFrom(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	old := a.components.Cache
	a.config = cfg
	a.components = c
	a.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	slog.Info("Configuration reloaded")
	return nil
}

// Close releases the report cache connection
func (a *App) Close() error {
	if c := a.getSnapshot().Cache; c != nil {
		return c.Close()
	}
	return nil
}
