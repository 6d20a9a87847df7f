package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HuggingFaceProvider scores text with a hosted sequence classification model
// (by default nlptown/bert-base-multilingual-uncased-sentiment, whose labels
// are "1 star" .. "5 stars").
type HuggingFaceProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewHuggingFaceProvider creates a provider for endpoint/model
func NewHuggingFaceProvider(endpoint, apiKey, model string) *HuggingFaceProvider {
	return &HuggingFaceProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		client: &http.Client{
			Timeout: 60 * time.Second, // cold model loads are slow
		},
	}
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

// hfParameters go to the pipeline. Truncation lets the model tokenizer cut
// input to its own wordpiece limit.
type hfParameters struct {
	Truncation bool `json:"truncation"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type hfError struct {
	Error string `json:"error"`
}

// Score sends text to the inference endpoint and returns the top label
func (h *HuggingFaceProvider) Score(ctx context.Context, text string) (int, error) {
	jsonBody, err := json.Marshal(hfRequest{
		Inputs:     text,
		Parameters: hfParameters{Truncation: true},
		Options:    hfOptions{WaitForModel: true},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := h.endpoint + "/" + h.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call inference endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr hfError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return 0, fmt.Errorf("inference endpoint returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return 0, fmt.Errorf("inference endpoint returned status %d: %.200s", resp.StatusCode, string(body))
	}

	labels, err := parseHFLabels(body)
	if err != nil {
		return 0, err
	}
	return topLabel(labels)
}

// parseHFLabels accepts both the nested [[...]] and flat [...] response shapes
func parseHFLabels(body []byte) ([]hfLabel, error) {
	var nested [][]hfLabel
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, fmt.Errorf("inference endpoint returned no labels")
		}
		return nested[0], nil
	}

	var flat []hfLabel
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w (response was: %.200s)", err, string(body))
	}
	return flat, nil
}

// topLabel returns the label with the highest score (argmax)
func topLabel(labels []hfLabel) (int, error) {
	if len(labels) == 0 {
		return 0, fmt.Errorf("inference endpoint returned no labels")
	}
	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}
	return ParseLabel(best.Label)
}
