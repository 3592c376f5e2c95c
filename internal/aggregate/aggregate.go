package aggregate

import "github.com/sells-group/search-harvest/internal/model"

type key struct {
	query string
	url   string
}

type accumulator struct {
	clicks      int64
	impressions int64
	positions   []float64
}

// Records groups raw rows by (query, NormalizeURL(url)), summing clicks and
// impressions and averaging position. Output follows first-seen key order.
// An empty input yields an empty, non-nil slice.
func Records(rows []model.RawRecord) []model.AggregatedRecord {
	acc := make(map[key]*accumulator, len(rows))
	order := make([]key, 0, len(rows))

	for _, r := range rows {
		k := key{query: r.Query, url: NormalizeURL(r.URL)}
		a, ok := acc[k]
		if !ok {
			a = &accumulator{}
			acc[k] = a
			order = append(order, k)
		}
		a.clicks += r.Clicks
		a.impressions += r.Impressions
		a.positions = append(a.positions, r.Position)
	}

	out := make([]model.AggregatedRecord, 0, len(order))
	for _, k := range order {
		a := acc[k]
		out = append(out, model.AggregatedRecord{
			Query:       k.query,
			URL:         k.url,
			Clicks:      a.clicks,
			Impressions: a.impressions,
			AvgPosition: mean(a.positions),
		})
	}
	return out
}

// mean returns 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
