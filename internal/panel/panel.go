// Package panel provides the aligned date-by-asset return panel that all
// estimation runs read from. A panel is immutable after construction.
package panel

import (
	"fmt"
	"math"
	"time"

	"covbench/internal/domain"
)

// ReturnPanel is an ordered sequence of dates with one return per asset per
// date. Rows are time-ordered; columns follow the asset list.
type ReturnPanel struct {
	dates  []time.Time
	assets []string
	rows   [][]float64 // rows[t][j] = return of assets[j] at dates[t]
}

// New validates and builds a return panel. Dates must be strictly increasing
// and unique, every row must cover every asset, and all values must be finite.
func New(dates []time.Time, assets []string, rows [][]float64) (*ReturnPanel, error) {
	if len(assets) == 0 {
		return nil, &domain.InvalidInputError{Reason: "no assets"}
	}
	if len(dates) != len(rows) {
		return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("%d dates but %d rows", len(dates), len(rows))}
	}
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if a == "" {
			return nil, &domain.InvalidInputError{Reason: "empty asset identifier"}
		}
		if _, dup := seen[a]; dup {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("duplicate asset %q", a)}
		}
		seen[a] = struct{}{}
	}
	for t, row := range rows {
		if len(row) != len(assets) {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("row %d has %d values, expected %d", t, len(row), len(assets))}
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("non-finite return for %s at row %d", assets[j], t)}
			}
		}
		if t > 0 && !dates[t].After(dates[t-1]) {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("dates not strictly increasing at row %d", t)}
		}
	}

	return &ReturnPanel{dates: dates, assets: assets, rows: rows}, nil
}

// Len returns the number of periods in the panel.
func (p *ReturnPanel) Len() int { return len(p.rows) }

// NumAssets returns the number of assets in the panel.
func (p *ReturnPanel) NumAssets() int { return len(p.assets) }

// Assets returns the asset identifiers in column order.
func (p *ReturnPanel) Assets() []string { return p.assets }

// Date returns the date of period t.
func (p *ReturnPanel) Date(t int) time.Time { return p.dates[t] }

// Rows returns the return rows in [start, end). The slice shares the panel's
// backing storage; callers must not mutate it.
func (p *ReturnPanel) Rows(start, end int) [][]float64 {
	return p.rows[start:end]
}

// FillMissing forward-fills then back-fills NaN values per asset, in place.
// It is applied to raw series before a panel is constructed, mirroring how
// missing prices are repaired before covariance estimation.
func FillMissing(series []float64) (filled int) {
	var lastValid float64
	hasLastValid := false
	for i := 0; i < len(series); i++ {
		if math.IsNaN(series[i]) {
			if hasLastValid {
				series[i] = lastValid
				filled++
			}
		} else {
			lastValid = series[i]
			hasLastValid = true
		}
	}

	var nextValid float64
	hasNextValid := false
	for i := len(series) - 1; i >= 0; i-- {
		if math.IsNaN(series[i]) {
			if hasNextValid {
				series[i] = nextValid
				filled++
			}
		} else {
			nextValid = series[i]
			hasNextValid = true
		}
	}
	return filled
}
