// Package report joins stored sentiment with price data and renders the
// correlation report.
package report

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ibeckermayer/trendteller/internal/cache"
	"github.com/ibeckermayer/trendteller/internal/correlate"
	"github.com/ibeckermayer/trendteller/internal/dataset"
	"github.com/ibeckermayer/trendteller/internal/stock"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// smaWindow is the moving average shown next to prices
const smaWindow = 5

// Source answers the two equality queries the report needs
type Source interface {
	NewsByQuery(ctx context.Context, query string) ([]types.NewsRow, error)
	CommentsByTicker(ctx context.Context, ticker string) ([]types.CommentRow, error)
}

// Cache stores built reports. *cache.RedisCache satisfies it.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Request names the three inputs of a report
type Request struct {
	Query          string `json:"query" form:"query"`
	CommentsTicker string `json:"comments_ticker" form:"comments_ticker"`
	StockTicker    string `json:"stock_ticker" form:"stock_ticker"`
}

// Validate requires every field
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Query) == "" {
		missing = append(missing, "query")
	}
	if strings.TrimSpace(r.CommentsTicker) == "" {
		missing = append(missing, "comments_ticker")
	}
	if strings.TrimSpace(r.StockTicker) == "" {
		missing = append(missing, "stock_ticker")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Fit is a least-squares trend line through a scatter
type Fit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	OK        bool    `json:"ok"`
}

// Pairing is one correlation with its scatter points and trend line
type Pairing struct {
	correlate.Result
	Fit Fit `json:"fit"`
}

// PriceRow is one line of the price table
type PriceRow struct {
	Date     types.Date `json:"date"`
	AdjClose float64    `json:"adj_close"`
	Volume   float64    `json:"volume"`
	SMA      *float64   `json:"sma,omitempty"`
	News     *float64   `json:"news_sentiment,omitempty"`
	Social   *float64   `json:"social_sentiment,omitempty"`
}

// Report is everything the HTML and JSON views show
type Report struct {
	Request      Request            `json:"request"`
	GeneratedAt  time.Time          `json:"generated_at"`
	NewsCount    int                `json:"news_count"`
	CommentCount int                `json:"comment_count"`
	Series       []correlate.Series `json:"series"`
	Pairings     []Pairing          `json:"pairings"`
	Prices       []PriceRow         `json:"prices"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// Builder creates reports
type Builder struct {
	layout    dataset.Layout
	outputDir string
	template  *template.Template
	cache     Cache
	cacheTTL  time.Duration
}

// New creates a new report builder. c may be nil.
func New(layout dataset.Layout, outputDir string, c Cache, cacheTTL time.Duration) (*Builder, error) {
	tmpl, err := template.New("report").Funcs(templateFuncs).Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		layout:    layout,
		outputDir: outputDir,
		template:  tmpl,
		cache:     c,
		cacheTTL:  cacheTTL,
	}, nil
}

func (b *Builder) cacheKey(req Request) string {
	return cache.Key(req.Query, req.CommentsTicker, req.StockTicker)
}

// Build loads rows from src and prices from the dataset, then correlates
// them. Missing inputs become warnings and leave their pairings undefined.
func (b *Builder) Build(ctx context.Context, src Source, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := b.cacheKey(req)
	if b.cache != nil {
		var cached Report
		found, err := b.cache.Get(ctx, key, &cached)
		if err != nil {
			slog.Warn("Report cache read failed", "key", key, "err", err)
		} else if found {
			slog.Debug("Report cache hit", "key", key)
			return &cached, nil
		}
	}

	r := &Report{Request: req, GeneratedAt: time.Now()}
	series := map[string]correlate.Series{}

	news, err := src.NewsByQuery(ctx, req.Query)
	switch {
	case err != nil:
		r.warn("News query failed: %v", err)
	case len(news) == 0:
		r.warn("No news rows for search query %q", req.Query)
	default:
		series[correlate.SeriesNews] = correlate.NewsSentiment(news)
	}
	r.NewsCount = len(news)

	comments, err := src.CommentsByTicker(ctx, req.CommentsTicker)
	switch {
	case err != nil:
		r.warn("StockTwits query failed: %v", err)
	case len(comments) == 0:
		r.warn("No StockTwits rows for ticker %q", req.CommentsTicker)
	default:
		series[correlate.SeriesSocial] = correlate.SocialSentiment(comments)
	}
	r.CommentCount = len(comments)

	prices, err := dataset.ReadPrices(b.layout.StockPath(req.StockTicker))
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.warn("Stock price data for %s has not been fetched", req.StockTicker)
	case err != nil:
		r.warn("Stock price data could not be loaded: %v", err)
	case len(prices) == 0:
		r.warn("Stock price file for %s is empty", req.StockTicker)
	default:
		adjClose, volume := correlate.PriceSeries(prices)
		series[correlate.SeriesPrice] = adjClose
		series[correlate.SeriesVolume] = volume
	}

	for _, name := range []string{correlate.SeriesNews, correlate.SeriesSocial, correlate.SeriesPrice, correlate.SeriesVolume} {
		if s, ok := series[name]; ok {
			r.Series = append(r.Series, s)
		}
	}

	for _, res := range correlate.Correlate(series, correlate.Pairings) {
		p := Pairing{Result: res}
		xs, ys := correlate.Columns(res.Rows)
		p.Fit.Slope, p.Fit.Intercept, p.Fit.OK = correlate.LinearFit(xs, ys)
		r.Pairings = append(r.Pairings, p)
	}

	r.Prices = priceTable(series)

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, r, b.cacheTTL); err != nil {
			slog.Warn("Report cache write failed", "key", key, "err", err)
		}
	}

	slog.Info("Built report", "query", req.Query, "news", r.NewsCount, "comments", r.CommentCount, "prices", len(r.Prices), "warnings", len(r.Warnings))
	return r, nil
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// priceTable lays sentiment beside each trading day with a moving average
func priceTable(series map[string]correlate.Series) []PriceRow {
	adj, ok := series[correlate.SeriesPrice]
	if !ok {
		return nil
	}

	lookup := func(name string) map[types.Date]float64 {
		m := map[types.Date]float64{}
		for _, p := range series[name].Points {
			m[p.Date] = p.Value
		}
		return m
	}
	volumes := lookup(correlate.SeriesVolume)
	news := lookup(correlate.SeriesNews)
	social := lookup(correlate.SeriesSocial)

	closes := make([]float64, len(adj.Points))
	for i, p := range adj.Points {
		closes[i] = p.Value
	}
	sma := stock.SMA(closes, smaWindow)

	rows := make([]PriceRow, len(adj.Points))
	for i, p := range adj.Points {
		row := PriceRow{Date: p.Date, AdjClose: p.Value, Volume: volumes[p.Date]}
		if sma[i].OK {
			v := sma[i].Value
			row.SMA = &v
		}
		if v, ok := news[p.Date]; ok {
			row.News = &v
		}
		if v, ok := social[p.Date]; ok {
			row.Social = &v
		}
		rows[i] = row
	}
	return rows
}
