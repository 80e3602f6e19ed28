package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "Finsight - retrieval-augmented financial Q&A",
	Long: `Finsight answers questions about financial markets by retrieving
recently scraped company news from PostgreSQL (pgvector similarity
search) and asking a hosted language model to analyze it.

Subcommands:
  serve   start the HTTP API server
  scrape  fetch company news from Finnhub into the article store
  index   embed scraped articles that have no vector yet`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
