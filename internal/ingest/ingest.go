// Package ingest turns raw scraped or uploaded rows into scored flat-file rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ibeckermayer/trendteller/internal/dataset"
	"github.com/ibeckermayer/trendteller/internal/dedupe"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// ErrNoData means a batch produced no rows worth writing
var ErrNoData = errors.New("no data found")

// Normalizer reduces raw text to its cleaned lemma form
type Normalizer interface {
	Normalize(s string) string
}

// Scorer labels texts 1-5. errs[i] non-nil means labels[i] is unusable.
type Scorer interface {
	ScoreAll(ctx context.Context, texts []string) (labels []int, errs []error)
}

// Result describes one ingestion batch
type Result struct {
	Records  []types.ScoredRecord `json:"records"`
	Path     string               `json:"path,omitempty"`
	Stats    dedupe.Stats         `json:"stats"`
	Unscored int                  `json:"unscored"`
	Warnings []string             `json:"warnings,omitempty"`
}

// Ingestor runs Normalizer, dedupe and Scorer in that order
type Ingestor struct {
	normalizer Normalizer
	scorer     Scorer
	layout     dataset.Layout
	now        func() time.Time
}

// New creates an Ingestor writing under layout
func New(n Normalizer, s Scorer, layout dataset.Layout) *Ingestor {
	return &Ingestor{normalizer: n, scorer: s, layout: layout, now: time.Now}
}

// SetClock overrides the date stamp used for rows and filenames
func (in *Ingestor) SetClock(now func() time.Time) {
	in.now = now
}

// Process normalizes, dedupes and scores raw. Records the scorer rejects are
// dropped with a warning. ErrNoData is returned when nothing survives.
func (in *Ingestor) Process(ctx context.Context, raw []types.RawRecord) (*Result, error) {
	normalized := make([]types.NormalizedRecord, 0, len(raw))
	for _, r := range raw {
		normalized = append(normalized, types.NormalizedRecord{
			RawRecord:  r,
			Normalized: in.normalizer.Normalize(r.Body),
		})
	}

	kept, stats := dedupe.Records(normalized)
	result := &Result{Stats: stats}
	slog.Info("Normalized batch", "in", len(raw), "kept", len(kept), "incomplete", stats.Incomplete, "duplicates", stats.Duplicates)

	if len(kept) == 0 {
		return result, ErrNoData
	}

	texts := make([]string, len(kept))
	for i, r := range kept {
		texts[i] = r.Normalized
	}
	labels, errs := in.scorer.ScoreAll(ctx, texts)

	for i, r := range kept {
		if errs[i] != nil {
			result.Unscored++
			warning := fmt.Sprintf("skipped %q: %v", r.Identity, errs[i])
			result.Warnings = append(result.Warnings, warning)
			slog.Warn("Failed to score record", "identity", r.Identity, "err", errs[i])
			continue
		}
		result.Records = append(result.Records, types.ScoredRecord{NormalizedRecord: r, Sentiment: labels[i]})
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if len(result.Records) == 0 {
		return result, ErrNoData
	}
	return result, nil
}

// IngestNews scores scraped headlines for query and appends them to the
// day's news file.
func (in *Ingestor) IngestNews(ctx context.Context, query string, raw []types.RawRecord) (*Result, error) {
	today := types.DateOf(in.now())
	raw = append([]types.RawRecord(nil), raw...)
	for i := range raw {
		raw[i].Origin = types.OriginNews
		raw[i].Tag = query
		if raw[i].Date.IsZero() {
			raw[i].Date = today
		}
	}

	result, err := in.Process(ctx, raw)
	if err != nil {
		return result, err
	}

	rows := make([]types.NewsRow, len(result.Records))
	for i, r := range result.Records {
		rows[i] = r.NewsRow()
	}
	result.Path = in.layout.NewsPath(today, query)
	if err := in.layout.AppendNews(result.Path, rows); err != nil {
		return result, err
	}
	slog.Info("Saved news", "path", result.Path, "rows", len(rows))
	return result, nil
}

// IngestUpload reads a user-supplied comments CSV for ticker, scores it and
// appends it to the day's comments file. A schema error writes nothing.
func (in *Ingestor) IngestUpload(ctx context.Context, r io.Reader, name, ticker string) (*Result, error) {
	uploaded, err := dataset.ReadUpload(r, name)
	if err != nil {
		return nil, err
	}

	today := types.DateOf(in.now())
	raw := make([]types.RawRecord, len(uploaded))
	for i, u := range uploaded {
		raw[i] = types.RawRecord{
			Origin:   types.OriginSocial,
			Body:     u.Comment,
			Author:   u.Username,
			Identity: u.Username,
			Tag:      ticker,
			Date:     today,
		}
	}

	result, err := in.Process(ctx, raw)
	if err != nil {
		return result, err
	}

	rows := make([]types.CommentRow, len(result.Records))
	for i, rec := range result.Records {
		rows[i] = rec.CommentRow()
	}
	result.Path = in.layout.CommentsPath(today, ticker)
	if err := in.layout.AppendComments(result.Path, rows); err != nil {
		return result, err
	}
	slog.Info("Saved comments", "path", result.Path, "rows", len(rows))
	return result, nil
}
