package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("Finsight %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	// Check API keys from environment (never display full content)
	for _, key := range []string{"GEMINI_API_KEY", "FINNHUB_API_KEY"} {
		v := os.Getenv(key)
		if v == "" {
			fmt.Printf("  %s: not set\n", key)
			continue
		}
		if len(v) > 8 {
			fmt.Printf("  %s: %s...%s (configured)\n", key, v[:2], v[len(v)-2:])
		} else {
			fmt.Printf("  %s: configured\n", key)
		}
	}

	return nil
}
