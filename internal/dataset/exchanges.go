package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/trendteller/internal/config"
)

// Exchange is one prompt/response pair sent to a scoring provider
type Exchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}

// ExchangeDir returns the default exchange log directory under the user cache dir
func ExchangeDir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "exchanges"), nil
}

// SaveExchange writes ex as indented JSON to a timestamped file in dir.
// Returns the path to the saved file.
func SaveExchange(dir string, ex Exchange) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create exchange dir: %w", err)
	}

	// Colons are not portable in filenames. Scoring can run concurrently so
	// the suffix keeps two exchanges in the same second apart.
	filename := fmt.Sprintf("%s_%s.json", ex.Timestamp.Format("2006-01-02T15-04-05"), uuid.NewString()[:8])
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadExchanges reads every saved exchange in dir, oldest first
func LoadExchanges(dir string) ([]Exchange, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	var out []Exchange
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var ex Exchange
		if err := json.Unmarshal(data, &ex); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		out = append(out, ex)
	}
	return out, nil
}
