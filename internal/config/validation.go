package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// validSSLModes are the sslmode values accepted by PostgreSQL.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// validAnalysisDepths are the accepted analysis depth labels.
var validAnalysisDepths = []string{"Basic", "Standard", "Detailed"}

// Validate checks the configuration for correctness. Called once at startup;
// a failure here is fatal before any session or network activity begins.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is not set", ErrMissingAPIKey)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name cannot be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.ResultLimit < 1 || c.ResultLimit > MaxResultLimit {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidResultLimit, MaxResultLimit, c.ResultLimit)
	}
	if !slices.Contains(validAnalysisDepths, c.AnalysisDepth) {
		return fmt.Errorf("invalid analysis depth %q: must be one of %s",
			c.AnalysisDepth, strings.Join(validAnalysisDepths, ", "))
	}
	if c.PromptBudget < 1000 {
		return fmt.Errorf("%w: must be at least 1000 characters, got %d",
			ErrInvalidPromptBudget, c.PromptBudget)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("invalid max retries %d: must be between 0 and 10", c.MaxRetries)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not a valid sslmode", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.Scraper.WindowDays < 1 || c.Scraper.WindowDays > 365 {
		return fmt.Errorf("%w: must be between 1 and 365 days, got %d",
			ErrInvalidScraperWindow, c.Scraper.WindowDays)
	}
	if c.Scraper.RequestsPerMin < 1 {
		return fmt.Errorf("invalid scraper rate %d: must be at least 1 request/minute",
			c.Scraper.RequestsPerMin)
	}

	return nil
}

// ValidateForScrape extends Validate with the Finnhub credential check.
// Only the scrape command needs FINNHUB_API_KEY, so serving works without it.
func (c *Config) ValidateForScrape() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Scraper.APIKey) == "" {
		return fmt.Errorf("%w: FINNHUB_API_KEY environment variable is not set", ErrMissingAPIKey)
	}
	return nil
}
