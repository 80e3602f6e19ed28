// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.finsight/config.yaml or ./config.yaml)
//  3. Default values
//
// Secrets (GEMINI_API_KEY, FINNHUB_API_KEY, DATABASE_URL) are read from
// the environment once at startup and never logged; sensitive fields are
// masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidResultLimit indicates the retrieval limit is out of range.
	ErrInvalidResultLimit = errors.New("invalid result limit")

	// ErrInvalidPromptBudget indicates the prompt character budget is out of range.
	ErrInvalidPromptBudget = errors.New("invalid prompt budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidScraperWindow indicates the scraper date window is out of range.
	ErrInvalidScraperWindow = errors.New("invalid scraper window")
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the articles table schema uses; see news.VectorDimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultResultLimit is the default number of articles retrieved per query.
	DefaultResultLimit = 5

	// MaxResultLimit is the absolute retrieval ceiling.
	MaxResultLimit = 20

	// DefaultPromptBudget is the default character budget for the prompt
	// (question plus retrieved context).
	DefaultPromptBudget = 12000
)

// ScraperConfig holds Finnhub scraper settings.
// APIKey is bound to the FINNHUB_API_KEY environment variable.
type ScraperConfig struct {
	BaseURL        string   `mapstructure:"base_url" json:"base_url"`
	APIKey         string   `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Tickers        []string `mapstructure:"tickers" json:"tickers"` // empty = scrape S&P 500 constituents
	WindowDays     int      `mapstructure:"window_days" json:"window_days"`
	RequestsPerMin int      `mapstructure:"requests_per_min" json:"requests_per_min"`
	FetchBodies    bool     `mapstructure:"fetch_bodies" json:"fetch_bodies"` // fetch full article text via readability
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI model configuration
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Answer pipeline defaults (per-session configuration starts from these)
	ResultLimit   int    `mapstructure:"result_limit" json:"result_limit"`
	IncludeNews   bool   `mapstructure:"include_news" json:"include_news"`
	AnalysisDepth string `mapstructure:"analysis_depth" json:"analysis_depth"`
	PromptBudget  int    `mapstructure:"prompt_budget" json:"prompt_budget"`
	MaxRetries    int    `mapstructure:"max_retries" json:"max_retries"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Scraper configuration
	Scraper ScraperConfig `mapstructure:"scraper" json:"scraper"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".finsight")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail-fast: a broken config should never reach the pipeline.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Pipeline defaults
	viper.SetDefault("result_limit", DefaultResultLimit)
	viper.SetDefault("include_news", true)
	viper.SetDefault("analysis_depth", "Standard")
	viper.SetDefault("prompt_budget", DefaultPromptBudget)
	viper.SetDefault("max_retries", 3)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "finsight")
	viper.SetDefault("postgres_password", "finsight_dev_password")
	viper.SetDefault("postgres_db_name", "finsight")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Scraper defaults: Finnhub free tier allows 30 requests/minute.
	viper.SetDefault("scraper.base_url", "https://finnhub.io/api/v1")
	viper.SetDefault("scraper.window_days", 7)
	viper.SetDefault("scraper.requests_per_min", 30)
	viper.SetDefault("scraper.fetch_bodies", false)
}

// bindEnvVariables binds environment variables explicitly.
// Secrets:
//  1. GEMINI_API_KEY - read directly by Genkit (not via Viper), presence
//     checked in cfg.Validate()
//  2. FINNHUB_API_KEY - Finnhub API credential (scrape command only)
//  3. DATABASE_URL - PostgreSQL connection URL (see parseDatabaseURL)
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("scraper.api_key", "FINNHUB_API_KEY")
	mustBind("model_name", "FINSIGHT_MODEL_NAME")
	mustBind("embedder_model", "FINSIGHT_EMBEDDER_MODEL")
	mustBind("postgres_password", "FINSIGHT_POSTGRES_PASSWORD")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets show
// the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.Scraper.APIKey = maskSecret(a.Scraper.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
