package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/search-harvest/internal/notify"
	"github.com/sells-group/search-harvest/internal/pipeline"
	"github.com/sells-group/search-harvest/internal/resilience"
	"github.com/sells-group/search-harvest/internal/source"
	"github.com/sells-group/search-harvest/internal/warehouse"
	"github.com/sells-group/search-harvest/pkg/searchconsole"
)

var (
	harvestMode    string
	harvestBudget  int
	harvestNoPrune bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run one budgeted harvest invocation",
	Long: `Plans the candidate dates, resumes each outstanding date from the progress
ledger, and fetches, aggregates, and writes pages until every date is complete
or the call budget is spent. Per-date failures are reported in the run summary
and do not fail the process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("mode") {
			cfg.Harvest.Mode = harvestMode
		}
		if cmd.Flags().Changed("budget") {
			cfg.Harvest.DailyCallBudget = harvestBudget
		}
		if err := cfg.Validate("harvest"); err != nil {
			return err
		}
		return runHarvest(ctx)
	},
}

func init() {
	harvestCmd.Flags().StringVar(&harvestMode, "mode", "", "override harvest.mode (auto, backfill, incremental)")
	harvestCmd.Flags().IntVar(&harvestBudget, "budget", 0, "override harvest.daily_call_budget")
	harvestCmd.Flags().BoolVar(&harvestNoPrune, "no-prune", false, "skip the start-up ledger prune")
	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(ctx context.Context) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	mode, err := pipeline.ParseMode(cfg.Harvest.Mode)
	if err != nil {
		return err
	}

	runID := uuid.New()
	log := zap.L().With(zap.String("component", "harvest"), zap.String("run_id", runID.String()))
	notifier := newNotifier(loc)

	be, client, err := startCollaborators(ctx)
	if err != nil {
		notifier.RunFailed(ctx, resilience.Kind(err), err, map[string]string{
			"stage":  "startup",
			"run_id": runID.String(),
			"store":  cfg.Store.Driver,
		})
		return eris.Wrap(err, "harvest: start-up")
	}
	defer be.close()

	src := source.New(client, source.Config{
		SiteURL:           cfg.Source.SiteURL,
		SearchType:        cfg.Source.SearchType,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
	})
	writer := warehouse.NewWriter(be.warehouse, warehouse.WriterConfig{
		MaxRetries: cfg.Writer.MaxRetries,
		RetryDelay: time.Duration(cfg.Writer.RetryDelaySecs) * time.Second,
	}, runID)

	orch := pipeline.New(src, writer, be.ledger, pipeline.Config{
		Mode: mode,
		Plan: pipeline.PlanConfig{
			BackfillDays:    cfg.Harvest.BackfillDays,
			IncrementalDays: cfg.Harvest.IncrementalDays,
			EmbargoDays:     cfg.Harvest.EmbargoDays,
			Location:        loc,
		},
		Budget:           cfg.Harvest.DailyCallBudget,
		PageSize:         cfg.Harvest.PageSize,
		BreakerThreshold: cfg.Harvest.BreakerThreshold,
		Prune:            !harvestNoPrune,
		Retention:        cfg.Retention(),
	}, runID)

	sum, err := orch.Run(ctx)
	if err != nil {
		// Notifications still go out after a signal.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		fields := map[string]string{"stage": "run", "run_id": runID.String()}
		if sum != nil {
			fields["calls_used"] = fmt.Sprintf("%d / %d", sum.CallsUsed, sum.Budget)
		}
		notifier.RunFailed(nctx, resilience.Kind(err), err, fields)
		return eris.Wrap(err, "harvest: run")
	}

	log.Info("harvest finished",
		zap.String("state", string(sum.State)),
		zap.String("mode", string(sum.Mode)),
		zap.Int("calls_used", sum.CallsUsed),
		zap.Int("budget", sum.Budget),
		zap.Int64("records", sum.TotalRecords()),
		zap.Int("completed", sum.Count(pipeline.DateCompleted)),
		zap.Int("partial", sum.Count(pipeline.DatePartial)),
		zap.Int("failed", sum.Count(pipeline.DateFailed)),
		zap.Int("pending", sum.Count(pipeline.DatePending)),
		zap.String("stopped_by", sum.StoppedBy),
		zap.Duration("elapsed", sum.Elapsed),
	)

	notifier.RunFinished(ctx, sum)
	return nil
}

// startCollaborators opens the store (migrating it) and builds the
// authorized Search Console client concurrently.
func startCollaborators(ctx context.Context) (*backend, searchconsole.Client, error) {
	var (
		be     *backend
		client searchconsole.Client
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := openBackend(gctx, true)
		if err != nil {
			return err
		}
		be = b
		return nil
	})
	g.Go(func() error {
		// The token source keeps ctx for refreshes, so it must outlive the group.
		hc, err := searchconsole.NewAuthorizedHTTPClient(ctx, cfg.Source.CredentialsFile,
			time.Duration(cfg.Source.TimeoutSecs)*time.Second)
		if err != nil {
			return fmt.Errorf("%w: %w", resilience.ErrAuth, err)
		}
		client = searchconsole.NewClient(
			searchconsole.WithBaseURL(cfg.Source.BaseURL),
			searchconsole.WithHTTPClient(hc),
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		if be != nil {
			be.close()
		}
		return nil, nil, err
	}
	return be, client, nil
}

func newNotifier(loc *time.Location) *notify.Notifier {
	return notify.New(notify.Config{
		WebhookURL: cfg.Notify.WebhookURL,
		OnSuccess:  cfg.Notify.OnSuccess,
		OnError:    cfg.Notify.OnError,
		Mentions:   cfg.Notify.Mentions,
		Title:      cfg.Notify.Title,
	}, loc)
}
