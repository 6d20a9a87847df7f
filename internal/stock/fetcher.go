// Package stock fetches daily price bars and writes them to the dataset.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ibeckermayer/trendteller/internal/types"
)

const (
	defaultBaseURL     = "https://query1.finance.yahoo.com"
	defaultHTTPTimeout = 30 * time.Second
	userAgent          = "Mozilla/5.0 (compatible; trendteller)"
)

var (
	// ErrNoData means the source returned no bars for the range
	ErrNoData = errors.New("no data found for the given range")
	// ErrInvalidRange means start falls after end
	ErrInvalidRange = errors.New("start date must be before end date")
)

// Fetcher reads daily OHLCV bars from a Yahoo-style chart endpoint
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient injects a custom http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) {
		if hc != nil {
			f.httpClient = hc
		}
	}
}

// WithBaseURL overrides the chart API host
func WithBaseURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// NewFetcher creates a Fetcher
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// Fetch returns daily bars for ticker from start up to but not including end
func (f *Fetcher) Fetch(ctx context.Context, ticker string, start, end types.Date) ([]types.PriceRecord, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, errors.New("enter a stock ticker")
	}
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	if start == end {
		return nil, ErrNoData
	}

	q := url.Values{}
	q.Set("period1", fmt.Sprint(start.Time().Unix()))
	q.Set("period2", fmt.Sprint(end.Time().Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.baseURL, url.PathEscape(ticker), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	slog.Debug("Fetching prices", "ticker", ticker, "start", start, "end", end)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read price response: %w", err)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("price API returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse price response: %w", err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %w", chart.Chart.Error.Description, ErrNoData)
		}
		return nil, fmt.Errorf("price API error: %s", chart.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, ErrNoData
	}

	bars := toRecords(chart.Chart.Result[0], start, end)
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}

func toRecords(r chartResult, start, end types.Date) []types.PriceRecord {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	quote := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	at := func(s []*float64, i int) (float64, bool) {
		if i >= len(s) || s[i] == nil {
			return 0, false
		}
		return *s[i], true
	}

	var out []types.PriceRecord
	for i, ts := range r.Timestamp {
		// bar timestamps are market open; the exchange offset gives the trading day
		date := types.DateOf(time.Unix(ts+r.Meta.GMTOffset, 0).UTC())
		if date.Before(start) || !date.Before(end) {
			continue
		}
		closeVal, ok := at(quote.Close, i)
		if !ok {
			continue
		}
		open, _ := at(quote.Open, i)
		high, _ := at(quote.High, i)
		low, _ := at(quote.Low, i)
		volume, _ := at(quote.Volume, i)
		adjClose, ok := at(adj, i)
		if !ok {
			adjClose = closeVal
		}
		out = append(out, types.PriceRecord{
			Date: date, Open: open, High: high, Low: low,
			Close: closeVal, AdjClose: adjClose, Volume: volume,
		})
	}
	return out
}

// SMA returns the simple moving average of values over window. Entries
// before the window fills have OK false.
func SMA(values []float64, window int) []MovingAverage {
	out := make([]MovingAverage, len(values))
	if window <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = MovingAverage{Value: sum / float64(window), OK: true}
		}
	}
	return out
}

// MovingAverage is one SMA output; OK is false until the window has filled
type MovingAverage struct {
	Value float64 `json:"value"`
	OK    bool    `json:"ok"`
}
