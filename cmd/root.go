package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/config"

	_ "time/tzdata" // harvest.timezone must resolve on minimal images
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "search-harvest",
	Short: "Resumable Search Console to warehouse pipeline",
	Long:  "Pulls daily query/page performance rows from the Search Console API, aggregates them per page, and appends them to a date-partitioned warehouse table, resuming from a progress ledger under a per-invocation call budget.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
