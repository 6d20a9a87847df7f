package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/trendteller/internal/browser"
	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// ErrEmptyQuery is returned when no search term was given
var ErrEmptyQuery = errors.New("enter a search term")

const searchBase = "https://www.google.com/search"

// Scraper collects news headlines from Google News search pages
type Scraper struct {
	headless    bool
	pageSize    int
	pageDelay   time.Duration
	pageTimeout time.Duration
}

// New creates a new scraper
func New(cfg config.ScrapingConfig) *Scraper {
	s := &Scraper{
		headless:    cfg.Headless,
		pageSize:    cfg.PageSize,
		pageDelay:   time.Duration(cfg.PageDelayMillis) * time.Millisecond,
		pageTimeout: time.Duration(cfg.PageTimeoutSeconds) * time.Second,
	}
	if s.pageSize <= 0 {
		s.pageSize = 10
	}
	if s.pageTimeout <= 0 {
		s.pageTimeout = time.Minute
	}
	return s
}

// SearchResult is the outcome of one search run
type SearchResult struct {
	Records  []types.RawRecord `json:"records"`
	Pages    int               `json:"pages"`
	Warnings []string          `json:"warnings,omitempty"`
}

// rawArticle is the data extracted from one result card via JavaScript
type rawArticle struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Href   string `json:"href"`
}

// pageFunc loads one results page and returns its cards
type pageFunc func(ctx context.Context, pageURL string) ([]rawArticle, error)

// SearchURL builds the news search URL for the page starting at result start,
// limited to the past 24 hours.
func SearchURL(query string, start int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("start", strconv.Itoa(start))
	q.Set("tbm", "nws")
	q.Set("tbs", "qdr:d")
	q.Set("hl", "en")
	return searchBase + "?" + q.Encode()
}

// CleanURL unwraps Google's /url?q= redirect and drops its tracking
// parameters. Links that are not absolute http(s) URLs return "".
func CleanURL(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.Index(href, "url?q="); i >= 0 {
		target := href[i+len("url?q="):]
		if amp := strings.Index(target, "&"); amp >= 0 {
			target = target[:amp]
		}
		if unescaped, err := url.QueryUnescape(target); err == nil {
			target = unescaped
		}
		href = target
	}

	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "google.com") && strings.HasPrefix(u.Path, "/search") {
		return ""
	}
	return href
}

// SearchNews collects up to count headlines for query from the past day.
// Each page is fetched in turn with a fixed pause after it. A page that fails
// is recorded as a warning and skipped.
func (s *Scraper) SearchNews(ctx context.Context, query string, count int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	browserCtx, cancel := browser.NewContext(ctx, s.headless)
	defer cancel()

	if err := browser.SetLanguage(browserCtx); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return s.collect(ctx, query, count, func(_ context.Context, pageURL string) ([]rawArticle, error) {
		pageCtx, pageCancel := context.WithTimeout(browserCtx, s.pageTimeout)
		defer pageCancel()
		return s.loadPage(pageCtx, pageURL)
	})
}

func (s *Scraper) collect(ctx context.Context, query string, count int, fetch pageFunc) (*SearchResult, error) {
	result := &SearchResult{}
	seen := make(map[string]bool)
	now := types.DateOf(time.Now())

	for start := 0; start < count; start += s.pageSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pageURL := SearchURL(query, start)
		articles, err := fetch(ctx, pageURL)
		result.Pages++
		if err != nil {
			warning := fmt.Sprintf("error fetching page %d: %v", start, err)
			result.Warnings = append(result.Warnings, warning)
			slog.Warn("Failed to fetch results page", "query", query, "start", start, "err", err)
		} else {
			added := 0
			for _, a := range articles {
				link := CleanURL(a.Href)
				title := strings.TrimSpace(a.Title)
				if link == "" || title == "" || seen[link] {
					continue
				}
				seen[link] = true
				result.Records = append(result.Records, types.RawRecord{
					Origin:   types.OriginNews,
					Body:     title,
					Identity: link,
					Source:   strings.TrimSpace(a.Source),
					Tag:      query,
					Date:     now,
				})
				added++
			}
			slog.Debug("Fetched results page", "start", start, "cards", len(articles), "added", added)
			if len(articles) == 0 {
				// no further pages
				break
			}
		}

		if len(result.Records) >= count {
			break
		}
		if s.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.pageDelay):
			}
		}
	}

	if len(result.Records) > count {
		result.Records = result.Records[:count]
	}
	slog.Info("News search finished", "query", query, "pages", result.Pages, "records", len(result.Records), "warnings", len(result.Warnings))
	return result, nil
}

// loadPage navigates to one results page and extracts its cards
func (s *Scraper) loadPage(ctx context.Context, pageURL string) ([]rawArticle, error) {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(WaitForResults, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}

	var consent bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(`document.querySelector(`+strconv.Quote(ConsentAccept)+`) !== null`, &consent)); err == nil && consent {
		if err := chromedp.Run(ctx,
			chromedp.Click(ConsentAccept, chromedp.ByQuery),
			chromedp.WaitReady(WaitForResults, chromedp.ByQuery),
		); err != nil {
			return nil, fmt.Errorf("failed to accept consent page: %w", err)
		}
	}

	var articles []rawArticle
	if err := chromedp.Run(ctx, chromedp.Evaluate(extractJS(), &articles)); err != nil {
		return nil, fmt.Errorf("failed to extract results from DOM: %w", err)
	}
	return articles, nil
}

// extractJS returns the script that reads every result card on the page
func extractJS() string {
	return `
		(function() {
			const cards = document.querySelectorAll(` + strconv.Quote(ResultCard) + `);
			const results = [];
			cards.forEach(el => {
				try {
					const link = el.querySelector(` + strconv.Quote(CardLink) + `);
					const title = el.querySelector(` + strconv.Quote(CardTitle) + `);
					const source = el.querySelector(` + strconv.Quote(CardSource) + `);
					if (!link || !title) return;
					results.push({
						title: title.textContent || '',
						source: source?.textContent || '',
						href: link.getAttribute('href') || ''
					});
				} catch (e) {
					console.error('Error extracting result:', e);
				}
			});
			return results;
		})()
	`
}
