package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Scoring providers
const (
	ProviderHuggingFace = "huggingface"
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"

	// DefaultHuggingFaceEndpoint serves the default classifier
	DefaultHuggingFaceEndpoint = "https://api-inference.huggingface.co/models"
)

// Store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Dataset  DatasetConfig  `toml:"dataset"`
	Scraping ScrapingConfig `toml:"scraping"`
	Analysis AnalysisConfig `toml:"analysis"`
	Store    StoreConfig    `toml:"store"`
	Stock    StockConfig    `toml:"stock"`
	Report   ReportConfig   `toml:"report"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
}

type DatasetConfig struct {
	Dir string `toml:"dir"`
}

type ScrapingConfig struct {
	Headless           bool `toml:"headless"`
	NewsCount          int  `toml:"news_count"`
	PageSize           int  `toml:"page_size"`
	PageDelayMillis    int  `toml:"page_delay_ms"`
	PageTimeoutSeconds int  `toml:"page_timeout_seconds"`
}

// AnalysisConfig selects the scoring provider. Endpoint is the model host for
// huggingface and an optional base URL for openai-compatible servers.
type AnalysisConfig struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	Endpoint       string `toml:"endpoint"`
	MaxTokens      int    `toml:"max_tokens"`
	Concurrency    int    `toml:"concurrency"`
	CacheExchanges bool   `toml:"cache_exchanges"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type StockConfig struct {
	Endpoint string `toml:"endpoint"`
}

type ReportConfig struct {
	OutputDir       string `toml:"output_dir"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// RedisConfig enables the report cache when Addr is set
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// SyncConfig holds the optional cron schedule for "update database".
// Empty means manual only.
type SyncConfig struct {
	Schedule string `toml:"schedule"`
	Timezone string `toml:"timezone"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Dataset: DatasetConfig{
			Dir: "dataset",
		},
		Scraping: ScrapingConfig{
			Headless:           true,
			NewsCount:          200,
			PageSize:           10,
			PageDelayMillis:    2000,
			PageTimeoutSeconds: 60,
		},
		Analysis: AnalysisConfig{
			Provider:    ProviderHuggingFace,
			Model:       "nlptown/bert-base-multilingual-uncased-sentiment",
			Endpoint:    DefaultHuggingFaceEndpoint,
			MaxTokens:   512,
			Concurrency: 1,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			DSN:    filepath.Join("dataset", "TrendTeller.db"),
		},
		Stock: StockConfig{
			Endpoint: "https://query1.finance.yahoo.com",
		},
		Report: ReportConfig{
			OutputDir:       filepath.Join("dataset", "reports"),
			CacheTTLSeconds: 300,
		},
		Server: ServerConfig{
			Addr: ":8501",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "trendteller"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "trendteller"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from the default path
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads config from path. Keys missing from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(c)
}

// ApplyEnv loads a .env file if one exists and overrides secrets and
// endpoints from TRENDTELLER_* variables.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	setString(&c.Analysis.APIKey, "TRENDTELLER_API_KEY")
	setString(&c.Analysis.Provider, "TRENDTELLER_PROVIDER")
	setString(&c.Analysis.Model, "TRENDTELLER_MODEL")
	setString(&c.Analysis.Endpoint, "TRENDTELLER_ENDPOINT")
	setString(&c.Dataset.Dir, "TRENDTELLER_DATASET_DIR")
	setString(&c.Store.Driver, "TRENDTELLER_STORE_DRIVER")
	setString(&c.Store.DSN, "TRENDTELLER_STORE_DSN")
	setString(&c.Redis.Addr, "TRENDTELLER_REDIS_ADDR")
	setString(&c.Redis.Password, "TRENDTELLER_REDIS_PASSWORD")
	setString(&c.Server.Addr, "TRENDTELLER_SERVER_ADDR")
	setString(&c.Log.Level, "TRENDTELLER_LOG_LEVEL")

	if v := os.Getenv("TRENDTELLER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Scraping.Headless = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks values the pipeline cannot run without
func (c *Config) Validate() error {
	switch c.Analysis.Provider {
	case ProviderHuggingFace, ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown scoring provider: %q", c.Analysis.Provider)
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	if c.Dataset.Dir == "" {
		return fmt.Errorf("dataset.dir must be set")
	}
	if c.Analysis.MaxTokens <= 0 {
		return fmt.Errorf("analysis.max_tokens must be positive, got %d", c.Analysis.MaxTokens)
	}
	if c.Analysis.Concurrency <= 0 {
		return fmt.Errorf("analysis.concurrency must be positive, got %d", c.Analysis.Concurrency)
	}
	if c.Scraping.PageSize <= 0 {
		return fmt.Errorf("scraping.page_size must be positive, got %d", c.Scraping.PageSize)
	}
	return nil
}
