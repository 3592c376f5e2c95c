package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneRetention int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove redundant progress ledger entries",
	Long: `Deletes ledger entries older than the retention window that no longer affect
resumption: zero-offset entries and entries superseded by a newer one for the
same date. Entries still inside the warehouse write-visibility window block the
prune, which is then deferred to a later invocation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("retention") {
			cfg.Ledger.RetentionMinutes = pruneRetention
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		be, err := openBackend(ctx, false)
		if err != nil {
			return err
		}
		defer be.close()

		res, err := be.ledger.Prune(ctx, cfg.Retention())
		if err != nil {
			return eris.Wrap(err, "prune")
		}
		if res.Deferred {
			zap.L().Info("prune deferred: ledger rows are inside the visibility window")
			return nil
		}
		zap.L().Info("ledger pruned",
			zap.Int64("deleted", res.Deleted),
			zap.Duration("retention", cfg.Retention()),
		)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneRetention, "retention", 0, "minimum entry age in minutes (default: ledger.retention_minutes)")
	rootCmd.AddCommand(pruneCmd)
}
