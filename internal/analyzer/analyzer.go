package analyzer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/trendteller/internal/analyzer/providers"
	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// Provider maps text to an ordinal sentiment label.
// Implementations wrap a frozen pretrained model.
type Provider interface {
	Score(ctx context.Context, text string) (int, error)
}

// LabelError reports a provider answer outside [1,5]
type LabelError struct {
	Label int
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("sentiment label %d outside [%d,%d]", e.Label, types.MinSentiment, types.MaxSentiment)
}

// Scorer truncates text to a token budget and asks a Provider for its label
type Scorer struct {
	provider    Provider
	maxTokens   int
	concurrency int
}

// New creates a Scorer with the provider selected by config. exchangeDir,
// when non-empty, receives prompt/response logs from chat providers.
func New(cfg config.AnalysisConfig, exchangeDir string) (*Scorer, error) {
	var provider Provider

	switch cfg.Provider {
	case config.ProviderHuggingFace:
		provider = providers.NewHuggingFaceProvider(cfg.Endpoint, cfg.APIKey, cfg.Model)
	case config.ProviderAnthropic:
		provider = providers.NewAnthropicProvider(cfg.APIKey, cfg.Model, exchangeDir)
	case config.ProviderOpenAI:
		baseURL := cfg.Endpoint
		if baseURL == config.DefaultHuggingFaceEndpoint {
			baseURL = ""
		}
		provider = providers.NewOpenAIProvider(cfg.APIKey, baseURL, cfg.Model, exchangeDir)
	default:
		return nil, fmt.Errorf("unknown scoring provider: %s", cfg.Provider)
	}

	return NewWithProvider(provider, cfg.MaxTokens, cfg.Concurrency), nil
}

// NewWithProvider creates a Scorer around an explicit provider
func NewWithProvider(p Provider, maxTokens, concurrency int) *Scorer {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scorer{provider: p, maxTokens: maxTokens, concurrency: concurrency}
}

// Truncate keeps at most maxTokens whitespace-separated tokens
func Truncate(text string, maxTokens int) string {
	tokens := strings.Fields(text)
	if len(tokens) <= maxTokens {
		return strings.Join(tokens, " ")
	}
	return strings.Join(tokens[:maxTokens], " ")
}

// Score returns the label for text
func (s *Scorer) Score(ctx context.Context, text string) (int, error) {
	label, err := s.provider.Score(ctx, Truncate(text, s.maxTokens))
	if err != nil {
		return 0, err
	}
	if !types.ValidSentiment(label) {
		return 0, &LabelError{Label: label}
	}
	return label, nil
}

// ScoreAll scores texts with at most the configured number of calls in
// flight. labels[i] is valid only when errs[i] is nil; one failure does not
// stop the others.
func (s *Scorer) ScoreAll(ctx context.Context, texts []string) (labels []int, errs []error) {
	labels = make([]int, len(texts))
	errs = make([]error, len(texts))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			labels[i], errs[i] = s.Score(ctx, text)
			return nil
		})
	}

	_ = g.Wait()
	return labels, errs
}
