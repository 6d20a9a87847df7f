package types

import (
	"fmt"
	"strings"
	"time"
)

// Origin tags where a record came from
type Origin string

const (
	OriginNews   Origin = "news"
	OriginSocial Origin = "social"
)

// Sentiment label bounds (1 = most negative, 5 = most positive)
const (
	MinSentiment = 1
	MaxSentiment = 5
)

// ValidSentiment reports whether label is inside the ordinal range
func ValidSentiment(label int) bool {
	return label >= MinSentiment && label <= MaxSentiment
}

// RawRecord is a scraped or uploaded row before any pipeline stage runs
type RawRecord struct {
	Origin   Origin `json:"origin"`
	Body     string `json:"body"`     // news title or comment text
	Author   string `json:"author"`   // optional
	Identity string `json:"identity"` // URL for news, username for social
	Source   string `json:"source"`   // news publisher
	Tag      string `json:"tag"`      // search query or ticker
	Date     Date   `json:"date"`
}

// NormalizedRecord is a RawRecord after text normalization
type NormalizedRecord struct {
	RawRecord
	Normalized string `json:"normalized"`
}

// Key returns the natural identity used for dedup and upsert
func (r NormalizedRecord) Key() string {
	if r.Origin == OriginNews {
		return r.Identity
	}
	return r.Identity + "\x00" + r.Normalized
}

// ScoredRecord is a NormalizedRecord with its sentiment label
type ScoredRecord struct {
	NormalizedRecord
	Sentiment int `json:"sentiment"`
}

// NewsRow is one row of the news flat file and the News table
type NewsRow struct {
	Title       string `json:"title"`
	Date        Date   `json:"date"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	Sentiment   int    `json:"sentiment"`
	SearchQuery string `json:"search_query"`
}

// CommentRow is one row of the comments flat file and the Stocktwits_Comments table
type CommentRow struct {
	Username  string `json:"username"`
	Comment   string `json:"comment"`
	Date      Date   `json:"date"`
	Sentiment int    `json:"sentiment"`
	Ticker    string `json:"ticker"`
}

// NewsRow converts a scored news record to its persisted shape
func (r ScoredRecord) NewsRow() NewsRow {
	return NewsRow{
		Title:       r.Normalized,
		Date:        r.Date,
		Source:      r.Source,
		URL:         r.Identity,
		Sentiment:   r.Sentiment,
		SearchQuery: r.Tag,
	}
}

// CommentRow converts a scored social record to its persisted shape
func (r ScoredRecord) CommentRow() CommentRow {
	return CommentRow{
		Username:  r.Identity,
		Comment:   r.Normalized,
		Date:      r.Date,
		Sentiment: r.Sentiment,
		Ticker:    r.Tag,
	}
}

// PriceRecord is one daily bar from the price-fetch collaborator
type PriceRecord struct {
	Date     Date    `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adj_close"`
	Volume   float64 `json:"volume"`
}

// Date is a calendar date without a time component
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD. A trailing time component ("2024-10-03 00:00:00",
// RFC 3339) is accepted and dropped.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the zero Date
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight UTC of d
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly before o
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// AddDays returns d shifted by n days
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
