package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/finsight/finsight/internal/app"
	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/log"
)

var (
	scrapeTickers []string
	scrapeDays    int
	scrapeIndex   bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Fetch company news from Finnhub into the article store",
	Long: `Fetches company news for the configured tickers over a trailing date
window and inserts new articles into PostgreSQL. Articles whose source
URL already exists are skipped. Intended to run on a daily schedule
(cron or similar). With --index, newly scraped articles are embedded
immediately after the scrape completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape()
	},
}

func init() {
	scrapeCmd.Flags().StringSliceVar(&scrapeTickers, "tickers", nil, "ticker symbols to scrape (default: configured list, or S&P 500)")
	scrapeCmd.Flags().IntVar(&scrapeDays, "days", 0, "trailing window in days (default: configured window)")
	scrapeCmd.Flags().BoolVar(&scrapeIndex, "index", true, "embed new articles after scraping")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(scrapeTickers) > 0 {
		cfg.Scraper.Tickers = scrapeTickers
	}
	if scrapeDays > 0 {
		cfg.Scraper.WindowDays = scrapeDays
	}
	if err := cfg.ValidateForScrape(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	stats, err := a.Scraper.Run(ctx)
	if err != nil {
		return fmt.Errorf("scraping: %w", err)
	}
	logger.Info("scrape finished",
		"fetched", stats.Fetched,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
	)

	if scrapeIndex {
		indexed, err := a.Indexer.Run(ctx)
		if err != nil {
			return fmt.Errorf("indexing: %w", err)
		}
		logger.Info("indexing finished", "embedded", indexed)
	}

	return nil
}
