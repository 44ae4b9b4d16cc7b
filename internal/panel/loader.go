package panel

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"covbench/internal/domain"
	"covbench/pkg/formulas"
)

// Loader reads wide-format CSV files into return panels. The expected layout
// is one row per timestamp: the first column is the timestamp, the remaining
// columns are asset identifiers.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a CSV panel loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "panel_loader").Logger()}
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// LoadReturns reads a returns CSV. Blank cells are treated as missing and
// repaired by forward-fill then back-fill before validation.
func (l *Loader) LoadReturns(path string) (*ReturnPanel, error) {
	dates, assets, cols, err := l.readWide(path)
	if err != nil {
		return nil, err
	}

	filled := 0
	for _, col := range cols {
		filled += FillMissing(col)
	}
	if filled > 0 {
		l.log.Warn().Int("filled_values", filled).Str("path", path).Msg("Filled missing returns")
	}

	rows := transpose(cols, len(dates))
	p, err := New(dates, assets, rows)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	l.log.Info().
		Int("periods", p.Len()).
		Int("assets", p.NumAssets()).
		Str("path", path).
		Msg("Loaded return panel")
	return p, nil
}

// LoadPrices reads a price CSV and converts each asset's series to simple
// returns, dropping the first period.
func (l *Loader) LoadPrices(path string) (*ReturnPanel, error) {
	dates, assets, cols, err := l.readWide(path)
	if err != nil {
		return nil, err
	}
	if len(dates) < 2 {
		return nil, &domain.InvalidInputError{Reason: "price series needs at least two periods"}
	}

	for _, col := range cols {
		FillMissing(col)
	}

	returnCols := make([][]float64, len(cols))
	for j, col := range cols {
		returnCols[j] = formulas.CalculateReturns(col)
	}

	rows := transpose(returnCols, len(dates)-1)
	p, err := New(dates[1:], assets, rows)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	l.log.Info().
		Int("periods", p.Len()).
		Int("assets", p.NumAssets()).
		Str("path", path).
		Msg("Loaded price panel as returns")
	return p, nil
}

// readWide parses the CSV into per-asset columns, with NaN for blank cells.
func (l *Loader) readWide(path string) ([]time.Time, []string, [][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open panel file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, nil, &domain.InvalidInputError{Reason: "panel file has no data rows"}
	}

	header := records[0]
	if len(header) < 2 {
		return nil, nil, nil, &domain.InvalidInputError{Reason: "panel file needs a timestamp column and at least one asset column"}
	}
	assets := header[1:]

	dates := make([]time.Time, 0, len(records)-1)
	cols := make([][]float64, len(assets))
	for j := range cols {
		cols[j] = make([]float64, 0, len(records)-1)
	}

	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, nil, nil, &domain.InvalidInputError{Reason: fmt.Sprintf("row %d has %d fields, expected %d", i+1, len(rec), len(header))}
		}
		date, err := parseDate(rec[0])
		if err != nil {
			return nil, nil, nil, &domain.InvalidInputError{Reason: fmt.Sprintf("row %d: %v", i+1, err)}
		}
		dates = append(dates, date)
		for j, field := range rec[1:] {
			field = strings.TrimSpace(field)
			if field == "" {
				cols[j] = append(cols[j], math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, nil, &domain.InvalidInputError{Reason: fmt.Sprintf("row %d, asset %s: %v", i+1, assets[j], err)}
			}
			cols[j] = append(cols[j], v)
		}
	}

	return dates, assets, cols, nil
}

func transpose(cols [][]float64, periods int) [][]float64 {
	rows := make([][]float64, periods)
	for t := range rows {
		row := make([]float64, len(cols))
		for j := range cols {
			row[j] = cols[j][t]
		}
		rows[t] = row
	}
	return rows
}
