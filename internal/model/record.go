package model

import "time"

// RawRecord is one search analytics row as returned by the source API,
// scoped to a single calendar date.
type RawRecord struct {
	Date        time.Time `json:"date"`
	Query       string    `json:"query"`
	URL         string    `json:"url"`
	Clicks      int64     `json:"clicks"`
	Impressions int64     `json:"impressions"`
	Position    float64   `json:"position"`
}

// AggregatedRecord is the per (query, normalized URL) rollup of one fetched page.
type AggregatedRecord struct {
	Query       string  `json:"query"`
	URL         string  `json:"url"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	AvgPosition float64 `json:"avg_position"`
}

// ReportRow is an aggregated record re-aggregated across every page and run
// stored for a date range.
type ReportRow struct {
	Query       string  `json:"query"`
	URL         string  `json:"url"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	AvgPosition float64 `json:"avg_position"`
	Rows        int64   `json:"rows"`
}
