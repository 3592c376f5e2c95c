package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/search-harvest/internal/ledger"
	"github.com/sells-group/search-harvest/internal/model"
	"github.com/sells-group/search-harvest/internal/pipeline"
)

var (
	statusDays   int
	statusDate   string
	statusOutput string
)

// dateStatus is the effective ledger state of one date.
type dateStatus struct {
	Date      string `yaml:"date"`
	State     string `yaml:"state"`
	Offset    int64  `yaml:"offset"`
	UpdatedAt string `yaml:"updated_at,omitempty"`
	RunID     string `yaml:"run_id,omitempty"`
}

// dateHistory is every ledger entry for one date plus its warehouse row count.
type dateHistory struct {
	Date      string       `yaml:"date"`
	Effective dateStatus   `yaml:"effective"`
	Entries   []dateStatus `yaml:"entries"`
	Rows      int64        `yaml:"warehouse_rows"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress ledger state",
	Long:  "Lists the effective ledger state of recent dates, or with --date the full ledger history and stored row count of a single date.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if statusOutput != "table" && statusOutput != "yaml" {
			return eris.Errorf("status: unknown output %q (table or yaml)", statusOutput)
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		be, err := openBackend(ctx, false)
		if err != nil {
			return err
		}
		defer be.close()

		if statusDate != "" {
			day, err := model.ParseDay(statusDate)
			if err != nil {
				return eris.Wrapf(err, "status: parse --date %q", statusDate)
			}
			h, err := loadHistory(ctx, be, day, loc)
			if err != nil {
				return err
			}
			return writeHistory(os.Stdout, h, statusOutput)
		}

		days := pipeline.CandidateDates(pipeline.ModeIncremental, time.Now(), pipeline.PlanConfig{
			IncrementalDays: statusDays,
			EmbargoDays:     cfg.Harvest.EmbargoDays,
			Location:        loc,
		})
		states, err := be.ledger.EffectiveStates(ctx, days)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		out := make([]dateStatus, 0, len(days))
		for _, d := range days {
			c, ok := states[d]
			out = append(out, toDateStatus(d, c, ok, loc))
		}
		return writeStatuses(os.Stdout, out, statusOutput)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusDays, "days", 7, "number of trailing dates to show")
	statusCmd.Flags().StringVar(&statusDate, "date", "", "show full history for one date (YYYY-MM-DD)")
	statusCmd.Flags().StringVar(&statusOutput, "output", "table", "output format: table or yaml")
	rootCmd.AddCommand(statusCmd)
}

func loadHistory(ctx context.Context, be *backend, day time.Time, loc *time.Location) (*dateHistory, error) {
	entries, err := be.ledger.History(ctx, day)
	if err != nil {
		return nil, eris.Wrap(err, "status: history")
	}
	rows, err := be.warehouse.CountRows(ctx, day)
	if err != nil {
		return nil, eris.Wrap(err, "status: count rows")
	}
	return buildHistory(day, entries, rows, loc), nil
}

func buildHistory(day time.Time, entries []model.DateCursor, rows int64, loc *time.Location) *dateHistory {
	h := &dateHistory{Date: model.FormatDay(day), Rows: rows}
	for _, e := range entries {
		h.Entries = append(h.Entries, toDateStatus(day, e, true, loc))
	}
	eff, ok := ledger.Resolve(entries)
	h.Effective = toDateStatus(day, eff, ok, loc)
	return h
}

func toDateStatus(day time.Time, c model.DateCursor, ok bool, loc *time.Location) dateStatus {
	s := dateStatus{Date: model.FormatDay(day), State: "not started"}
	if !ok {
		return s
	}
	s.State = "in progress"
	if c.Completed {
		s.State = "completed"
	}
	s.Offset = c.Offset
	if !c.ObservedAt.IsZero() {
		s.UpdatedAt = c.ObservedAt.In(loc).Format("2006-01-02 15:04:05 MST")
	}
	if c.RunID != uuid.Nil {
		s.RunID = c.RunID.String()
	}
	return s
}

func writeStatuses(out io.Writer, rows []dateStatus, format string) error {
	if format == "yaml" {
		return writeYAML(out, rows)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tSTATE\tOFFSET\tUPDATED\tRUN")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t-------\t---")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.Date, r.State, r.Offset, dash(r.UpdatedAt), dash(r.RunID))
	}
	return w.Flush()
}

func writeHistory(out io.Writer, h *dateHistory, format string) error {
	if format == "yaml" {
		return writeYAML(out, h)
	}
	_, _ = fmt.Fprintf(out, "date:           %s\n", h.Date)
	_, _ = fmt.Fprintf(out, "effective:      %s at offset %d\n", h.Effective.State, h.Effective.Offset)
	_, _ = fmt.Fprintf(out, "warehouse rows: %d\n\n", h.Rows)
	if len(h.Entries) == 0 {
		_, _ = fmt.Fprintln(out, "no ledger entries")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "UPDATED\tSTATE\tOFFSET\tRUN")
	for _, e := range h.Entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", dash(e.UpdatedAt), e.State, e.Offset, dash(e.RunID))
	}
	return w.Flush()
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "status: encode yaml")
	}
	return enc.Close()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
