// Package source fetches pages of search analytics rows. Each FetchPage call
// is a single attempt; retry decisions belong to the caller.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sells-group/search-harvest/internal/model"
	"github.com/sells-group/search-harvest/internal/resilience"
	"github.com/sells-group/search-harvest/pkg/searchconsole"
)

// Page is one fetched page for a date.
type Page struct {
	Records    []model.RawRecord
	NextOffset int64
}

// Last reports whether the page ends its date: fewer rows than requested,
// including an empty page.
func (p *Page) Last(pageSize int) bool {
	return len(p.Records) < pageSize
}

// Config configures a Connector.
type Config struct {
	SiteURL           string  `yaml:"site_url" mapstructure:"site_url"`
	SearchType        string  `yaml:"search_type" mapstructure:"search_type"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// Connector issues paginated searchAnalytics queries for one property.
type Connector struct {
	client     searchconsole.Client
	site       string
	searchType string
	limiter    *rate.Limiter
	log        *zap.Logger
}

// New creates a Connector. A non-positive RequestsPerSecond disables pacing.
func New(client searchconsole.Client, cfg Config) *Connector {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	searchType := cfg.SearchType
	if searchType == "" {
		searchType = "web"
	}
	return &Connector{
		client:     client,
		site:       cfg.SiteURL,
		searchType: searchType,
		limiter:    rate.NewLimiter(limit, burst),
		log:        zap.L().With(zap.String("component", "source"), zap.String("site", cfg.SiteURL)),
	}
}

// FetchPage requests up to pageSize rows for date starting at offset.
// NextOffset is offset plus the number of rows returned.
//
// Errors: resilience.ErrAuth for rejected or unobtainable credentials,
// *resilience.TransientError for 408/429/5xx and network failures, and
// resilience.ErrMalformedResponse for bodies that break the row contract.
func (c *Connector) FetchPage(ctx context.Context, date time.Time, offset int64, pageSize int) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "source: rate limiter")
	}

	day := model.FormatDay(date)
	start := time.Now()
	resp, err := c.client.Query(ctx, c.site, searchconsole.QueryRequest{
		StartDate:  day,
		EndDate:    day,
		Dimensions: []string{searchconsole.DimensionQuery, searchconsole.DimensionPage},
		Type:       c.searchType,
		RowLimit:   pageSize,
		StartRow:   offset,
	})
	if err != nil {
		return nil, classify(err, day, offset)
	}

	records := make([]model.RawRecord, 0, len(resp.Rows))
	for i, row := range resp.Rows {
		if len(row.Keys) != 2 {
			return nil, eris.Wrapf(resilience.ErrMalformedResponse,
				"source: row %d for %s has %d keys, want [query page]", i, day, len(row.Keys))
		}
		records = append(records, model.RawRecord{
			Date:        model.Day(date),
			Query:       row.Keys[0],
			URL:         row.Keys[1],
			Clicks:      int64(row.Clicks),
			Impressions: int64(row.Impressions),
			Position:    row.Position,
		})
	}

	c.log.Debug("page fetched",
		zap.String("date", day),
		zap.Int64("offset", offset),
		zap.Int("rows", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Page{Records: records, NextOffset: offset + int64(len(records))}, nil
}

func classify(err error, day string, offset int64) error {
	var (
		apiErr    *searchconsole.APIError
		decodeErr *searchconsole.DecodeError
		tokenErr  *oauth2.RetrieveError
	)
	switch {
	case errors.As(err, &apiErr) && resilience.IsAuthHTTPStatus(apiErr.StatusCode):
		return eris.Wrapf(resilience.ErrAuth, "source: %s offset %d: status %d", day, offset, apiErr.StatusCode)
	case errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode):
		return resilience.NewTransientError(eris.Wrapf(err, "source: %s offset %d", day, offset), apiErr.StatusCode)
	case errors.As(err, &apiErr):
		return eris.Wrapf(err, "source: %s offset %d", day, offset)
	case errors.As(err, &tokenErr):
		return eris.Wrapf(resilience.ErrAuth, "source: token refresh: %v", tokenErr)
	case errors.As(err, &decodeErr):
		return eris.Wrapf(resilience.ErrMalformedResponse, "source: %s offset %d: %v", day, offset, decodeErr)
	case errors.Is(err, context.Canceled):
		return eris.Wrap(err, "source: cancelled")
	case resilience.IsTransient(err):
		return resilience.NewTransientError(eris.Wrapf(err, "source: %s offset %d", day, offset), 0)
	default:
		return eris.Wrapf(err, "source: %s offset %d", day, offset)
	}
}
