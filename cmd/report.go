package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/search-harvest/internal/model"
)

var (
	reportFrom   string
	reportTo     string
	reportFormat string
	reportOut    string
)

var reportHeader = []string{"query", "url", "clicks", "impressions", "avg_position", "rows"}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export re-aggregated warehouse rows",
	Long: `Sums clicks and impressions per (query, url) across every stored page and run
in the date range, with an impression-weighted mean position, and writes the
result as CSV or XLSX.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		from, err := model.ParseDay(reportFrom)
		if err != nil {
			return eris.Wrapf(err, "report: parse --from %q", reportFrom)
		}
		to, err := model.ParseDay(reportTo)
		if err != nil {
			return eris.Wrapf(err, "report: parse --to %q", reportTo)
		}
		if to.Before(from) {
			return eris.New("report: --to is before --from")
		}
		if reportFormat != "csv" && reportFormat != "xlsx" {
			return eris.Errorf("report: unknown format %q (csv or xlsx)", reportFormat)
		}
		if reportFormat == "xlsx" && (reportOut == "" || reportOut == "-") {
			return eris.New("report: xlsx output requires --out FILE")
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		be, err := openBackend(ctx, false)
		if err != nil {
			return err
		}
		defer be.close()

		rows, err := be.warehouse.Report(ctx, from, to)
		if err != nil {
			return eris.Wrap(err, "report")
		}

		if reportFormat == "xlsx" {
			err = writeReportXLSX(reportOut, rows)
		} else {
			err = writeReportCSVTo(reportOut, rows)
		}
		if err != nil {
			return err
		}
		zap.L().Info("report written",
			zap.String("format", reportFormat),
			zap.String("out", reportOut),
			zap.Int("rows", len(rows)),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "first date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "last date, inclusive (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "csv", "output format: csv or xlsx")
	reportCmd.Flags().StringVar(&reportOut, "out", "-", "output file; - writes CSV to stdout")
	_ = reportCmd.MarkFlagRequired("from")
	_ = reportCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(reportCmd)
}

func writeReportCSVTo(path string, rows []model.ReportRow) error {
	if path == "" || path == "-" {
		return writeReportCSV(os.Stdout, rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := writeReportCSV(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "report: close")
}

func writeReportCSV(out io.Writer, rows []model.ReportRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(reportHeader); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, r := range rows {
		rec := []string{
			r.Query,
			r.URL,
			strconv.FormatInt(r.Clicks, 10),
			strconv.FormatInt(r.Impressions, 10),
			strconv.FormatFloat(r.AvgPosition, 'f', 2, 64),
			strconv.FormatInt(r.Rows, 10),
		}
		if err := w.Write(rec); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "report: flush csv")
}

func writeReportXLSX(path string, rows []model.ReportRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("report")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range reportHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Query)
		row.AddCell().SetString(r.URL)
		row.AddCell().SetInt64(r.Clicks)
		row.AddCell().SetInt64(r.Impressions)
		row.AddCell().SetFloatWithFormat(r.AvgPosition, "0.00")
		row.AddCell().SetInt64(r.Rows)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
