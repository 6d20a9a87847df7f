package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/dataset"
)

// OpenAIProvider scores text with any OpenAI-compatible chat endpoint
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	exchangeDir string
}

// NewOpenAIProvider creates a provider. An empty baseURL uses the OpenAI default.
func NewOpenAIProvider(apiKey, baseURL, model, exchangeDir string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(60 * time.Second),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{
		client:      &client,
		model:       model,
		exchangeDir: exchangeDir,
	}
}

// Score asks the chat model for a 1-5 label
func (o *OpenAIProvider) Score(ctx context.Context, text string) (int, error) {
	prompt := buildPrompt(text)

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		o.logExchange(prompt, "", err)
		return 0, fmt.Errorf("failed to call chat completions: %w", err)
	}
	if len(completion.Choices) == 0 {
		o.logExchange(prompt, "", nil)
		return 0, fmt.Errorf("chat completion returned no choices")
	}

	reply := completion.Choices[0].Message.Content
	o.logExchange(prompt, reply, nil)
	return ParseLabel(reply)
}

func (o *OpenAIProvider) logExchange(prompt, response string, callErr error) {
	if o.exchangeDir == "" {
		return
	}
	ex := dataset.Exchange{
		Timestamp: time.Now(),
		Provider:  config.ProviderOpenAI,
		Model:     o.model,
		Prompt:    prompt,
		Response:  response,
	}
	if callErr != nil {
		ex.Error = callErr.Error()
	}
	if _, err := dataset.SaveExchange(o.exchangeDir, ex); err != nil {
		slog.Warn("failed to cache provider exchange", "err", err)
	}
}
