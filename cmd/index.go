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

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed scraped articles that have no vector yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex()
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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

	indexed, err := a.Indexer.Run(ctx)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	logger.Info("indexing finished", "embedded", indexed)
	return nil
}
