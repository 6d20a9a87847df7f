package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/dataset"
	"github.com/ibeckermayer/trendteller/internal/ingest"
	"github.com/ibeckermayer/trendteller/internal/store"
	"github.com/ibeckermayer/trendteller/internal/textnorm"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// identityLemmas leaves every token as it is
type identityLemmas struct{}

func (identityLemmas) Lemma(s string) string { return s }

// fixedScorer returns labels in call order and records every text it saw
type fixedScorer struct {
	labels []int
	fail   map[string]error
	seen   []string
}

func (f *fixedScorer) ScoreAll(_ context.Context, texts []string) ([]int, []error) {
	labels := make([]int, len(texts))
	errs := make([]error, len(texts))
	for i, text := range texts {
		f.seen = append(f.seen, text)
		if err, ok := f.fail[text]; ok {
			errs[i] = err
			continue
		}
		labels[i] = f.labels[0]
		if len(f.labels) > 1 {
			f.labels = f.labels[1:]
		}
	}
	return labels, errs
}

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 14, 0, 0, 0, time.Local) }

func newIngestor(t *testing.T, scorer ingest.Scorer) (*ingest.Ingestor, dataset.Layout) {
	t.Helper()
	layout := dataset.Layout{Dir: t.TempDir()}
	in := ingest.New(textnorm.New(identityLemmas{}), scorer, layout)
	in.SetClock(fixedNow)
	return in, layout
}

func TestProcessDedupesBeforeScoring(t *testing.T) {
	scorer := &fixedScorer{labels: []int{4}}
	in, _ := newIngestor(t, scorer)

	result, err := in.Process(context.Background(), []types.RawRecord{
		{Origin: types.OriginSocial, Identity: "bob", Body: "To the MOON @elon $TSLA"},
		{Origin: types.OriginSocial, Identity: "bob", Body: "to the moon!!"},
		{Origin: types.OriginSocial, Identity: "amy", Body: "https://x.com/post"},
		{Origin: types.OriginSocial, Identity: "amy", Body: "buy the dip"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"to the moon", "buy the dip"}, scorer.seen)
	assert.Equal(t, 1, result.Stats.Duplicates)
	assert.Equal(t, 1, result.Stats.Incomplete)
	require.Len(t, result.Records, 2)
	for _, r := range result.Records {
		assert.True(t, types.ValidSentiment(r.Sentiment))
	}
}

func TestProcessDropsUnscoredRecords(t *testing.T) {
	scorer := &fixedScorer{labels: []int{3}, fail: map[string]error{"bad": errors.New("model offline")}}
	in, _ := newIngestor(t, scorer)

	result, err := in.Process(context.Background(), []types.RawRecord{
		{Origin: types.OriginNews, Identity: "https://a", Body: "bad"},
		{Origin: types.OriginNews, Identity: "https://b", Body: "good"},
	})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "https://b", result.Records[0].Identity)
	assert.Equal(t, 1, result.Unscored)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "model offline")
}

func TestProcessNoData(t *testing.T) {
	in, _ := newIngestor(t, &fixedScorer{labels: []int{3}})

	_, err := in.Process(context.Background(), nil)
	assert.ErrorIs(t, err, ingest.ErrNoData)

	_, err = in.Process(context.Background(), []types.RawRecord{{Origin: types.OriginNews, Identity: "u", Body: "@@@ ###"}})
	assert.ErrorIs(t, err, ingest.ErrNoData)
}

func TestIngestNewsWritesDatedFile(t *testing.T) {
	in, layout := newIngestor(t, &fixedScorer{labels: []int{5}})

	result, err := in.IngestNews(context.Background(), "tesla", []types.RawRecord{
		{Identity: "https://a", Source: "Reuters", Body: "Tesla beats estimates"},
	})
	require.NoError(t, err)

	day := types.DateOf(fixedNow())
	assert.Equal(t, layout.NewsPath(day, "tesla"), result.Path)

	rows, rowErrs, err := dataset.ReadNews(result.Path)
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	assert.Equal(t, []types.NewsRow{{
		Title: "tesla beats estimates", Date: day, Source: "Reuters", URL: "https://a", Sentiment: 5, SearchQuery: "tesla",
	}}, rows)
}

func TestIngestUploadWritesCommentsFile(t *testing.T) {
	in, layout := newIngestor(t, &fixedScorer{labels: []int{1, 5}})

	csv := "Username,Comment\nbob,$TSLA is dead\namy,#bullish on this\namy,\n"
	result, err := in.IngestUpload(context.Background(), strings.NewReader(csv), "upload.csv", "TSLA")
	require.NoError(t, err)
	assert.Equal(t, layout.CommentsPath(types.DateOf(fixedNow()), "TSLA"), result.Path)

	rows, _, err := dataset.ReadComments(result.Path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "is dead", rows[0].Comment)
	assert.Equal(t, 1, rows[0].Sentiment)
	assert.Equal(t, "bullish on this", rows[1].Comment)
	assert.Equal(t, "TSLA", rows[1].Ticker)
}

func TestIngestUploadMissingCommentWritesNothing(t *testing.T) {
	scorer := &fixedScorer{labels: []int{3}}
	in, layout := newIngestor(t, scorer)

	_, err := in.IngestUpload(context.Background(), strings.NewReader("Username,Text\nbob,hello\n"), "upload.csv", "TSLA")

	var schemaErr *dataset.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"Comment"}, schemaErr.Missing)
	assert.Empty(t, scorer.seen)

	_, statErr := os.Stat(filepath.Join(layout.Dir, dataset.CommentsDir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSameURLTwiceSecondScoreWins(t *testing.T) {
	scorer := &fixedScorer{labels: []int{2, 4}}
	in, layout := newIngestor(t, scorer)
	ctx := context.Background()

	_, err := in.IngestNews(ctx, "tesla", []types.RawRecord{{Identity: "https://a", Source: "R", Body: "tesla recall"}})
	require.NoError(t, err)
	_, err = in.IngestNews(ctx, "tesla", []types.RawRecord{{Identity: "https://a", Source: "R", Body: "tesla recall widen"}})
	require.NoError(t, err)

	st, err := store.Open(config.DriverSQLite, filepath.Join(t.TempDir(), "TrendTeller.db"))
	require.NoError(t, err)
	defer st.Close()

	report, err := store.Sync(ctx, st, layout)
	require.NoError(t, err)
	assert.Zero(t, report.Failed)

	news, err := st.NewsByQuery(ctx, "tesla")
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, 4, news[0].Sentiment)
	assert.Equal(t, "https://a", news[0].URL)
}
