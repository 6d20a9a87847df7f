package analyzer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendteller/internal/config"
)

type providerFunc func(ctx context.Context, text string) (int, error)

func (f providerFunc) Score(ctx context.Context, text string) (int, error) { return f(ctx, text) }

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b c", Truncate("a b c", 5))
	assert.Equal(t, "a b", Truncate("a   b c d", 2))
	assert.Equal(t, "", Truncate("", 3))
}

func TestScoreTruncatesInput(t *testing.T) {
	var seen string
	s := NewWithProvider(providerFunc(func(_ context.Context, text string) (int, error) {
		seen = text
		return 3, nil
	}), 4, 1)

	label, err := s.Score(context.Background(), strings.Repeat("word ", 100))
	require.NoError(t, err)
	assert.Equal(t, 3, label)
	assert.Equal(t, "word word word word", seen)
}

func TestScoreRejectsOutOfRangeLabels(t *testing.T) {
	for _, bad := range []int{0, 6, -1} {
		s := NewWithProvider(providerFunc(func(context.Context, string) (int, error) { return bad, nil }), 10, 1)
		_, err := s.Score(context.Background(), "x")

		var labelErr *LabelError
		require.ErrorAs(t, err, &labelErr)
		assert.Equal(t, bad, labelErr.Label)
	}
}

func TestScoreAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	s := NewWithProvider(providerFunc(func(_ context.Context, text string) (int, error) {
		if text == "fail" {
			return 0, boom
		}
		return len(text), nil
	}), 10, 3)

	labels, errs := s.ScoreAll(context.Background(), []string{"a", "fail", "abc", "abcde"})
	require.Len(t, labels, 4)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])
	assert.NoError(t, errs[3])
	assert.Equal(t, 1, labels[0])
	assert.Equal(t, 3, labels[2])
	assert.Equal(t, 5, labels[3])
}

func TestScoreAllRespectsConcurrency(t *testing.T) {
	var inFlight, peak int32
	var mu sync.Mutex
	s := NewWithProvider(providerFunc(func(context.Context, string) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 2, nil
	}), 10, 2)

	_, errs := s.ScoreAll(context.Background(), make([]string, 10))
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak, int32(2))
}

func TestScoreAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	s := NewWithProvider(providerFunc(func(context.Context, string) (int, error) {
		called = true
		return 1, nil
	}), 10, 1)

	_, errs := s.ScoreAll(ctx, []string{"a", "b"})
	assert.False(t, called)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.ErrorIs(t, errs[1], context.Canceled)
}

func TestNewSelectsProvider(t *testing.T) {
	for _, name := range []string{config.ProviderHuggingFace, config.ProviderAnthropic, config.ProviderOpenAI} {
		cfg := config.Default().Analysis
		cfg.Provider = name
		cfg.APIKey = "k"
		s, err := New(cfg, "")
		require.NoError(t, err, name)
		assert.NotNil(t, s.provider, name)
	}

	cfg := config.Default().Analysis
	cfg.Provider = "spacy"
	_, err := New(cfg, "")
	assert.Error(t, err)
}
