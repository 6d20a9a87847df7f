package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/dataset"
)

// AnthropicProvider scores text with Claude
type AnthropicProvider struct {
	client      *anthropic.Client
	provider    string
	model       string
	exchangeDir string // empty disables the exchange log
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, model, exchangeDir string) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicProvider{
		client:      &client,
		provider:    config.ProviderAnthropic,
		model:       model,
		exchangeDir: exchangeDir,
	}
}

// Score asks Claude for a 1-5 label
func (c *AnthropicProvider) Score(ctx context.Context, text string) (int, error) {
	prompt := buildPrompt(text)

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 8,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.logExchange(prompt, "", err)
		return 0, fmt.Errorf("failed to call Claude API: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	c.logExchange(prompt, responseText, nil)

	if responseText == "" {
		return 0, fmt.Errorf("Claude returned empty response")
	}
	return ParseLabel(responseText)
}

func (c *AnthropicProvider) logExchange(prompt, response string, callErr error) {
	if c.exchangeDir == "" {
		return
	}
	ex := dataset.Exchange{
		Timestamp: time.Now(),
		Provider:  c.provider,
		Model:     c.model,
		Prompt:    prompt,
		Response:  response,
	}
	if callErr != nil {
		ex.Error = callErr.Error()
	}
	if path, err := dataset.SaveExchange(c.exchangeDir, ex); err != nil {
		slog.Warn("failed to cache provider exchange", "err", err)
	} else {
		slog.Debug("cached provider exchange", "path", path)
	}
}
