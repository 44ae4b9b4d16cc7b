// Package report turns a run result into persisted tabular artifacts:
// rolling risk series per method, rolling weight vectors per method,
// moving-average summaries, per-method aggregates, and the skip report.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"covbench/internal/backtest"
	"covbench/internal/domain"
)

const dateLayout = "2006-01-02"

// DefaultMovingAverage is the moving-average span used when none is
// configured.
const DefaultMovingAverage = 5

// MethodSummary aggregates a method's risk series across all windows.
type MethodSummary struct {
	Method          string  `csv:"method"`
	Windows         int     `csv:"windows"`
	Skips           int     `csv:"skips"`
	MeanInSample    float64 `csv:"mean_in_sample_risk"`
	MeanOutOfSample float64 `csv:"mean_out_of_sample_risk"`
	StdOutOfSample  float64 `csv:"std_out_of_sample_risk"`
}

type skipRow struct {
	Window int    `csv:"window"`
	Method string `csv:"method"`
	Reason string `csv:"reason"`
}

// Writer persists run artifacts under a directory.
type Writer struct {
	dir      string
	maWindow int
	log      zerolog.Logger
}

// NewWriter creates a writer. maWindow <= 0 selects DefaultMovingAverage.
func NewWriter(dir string, maWindow int, log zerolog.Logger) *Writer {
	if maWindow <= 0 {
		maWindow = DefaultMovingAverage
	}
	return &Writer{
		dir:      dir,
		maWindow: maWindow,
		log:      log.With().Str("component", "report").Logger(),
	}
}

// Write persists all artifacts for one run.
func (w *Writer) Write(res *backtest.Result) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.writeRiskSeries(res, "risk_in_sample.csv", func(r domain.RiskRecord) float64 { return r.InSample }); err != nil {
		return err
	}
	if err := w.writeRiskSeries(res, "risk_out_of_sample.csv", func(r domain.RiskRecord) float64 { return r.OutOfSample }); err != nil {
		return err
	}
	if err := w.writeMovingAverage(res); err != nil {
		return err
	}
	if err := w.writeWeights(res); err != nil {
		return err
	}
	if err := w.writeSkips(res); err != nil {
		return err
	}
	if err := w.writeSummary(res); err != nil {
		return err
	}

	w.log.Info().Str("dir", w.dir).Msg("Wrote run artifacts")
	return nil
}

// writeRiskSeries writes a wide table: one row per window, one column per
// method. Skipped (window, method) pairs leave the cell empty.
func (w *Writer) writeRiskSeries(res *backtest.Result, name string, value func(domain.RiskRecord) float64) error {
	byKey := make(map[string]string)
	windows := windowIndex(res)

	for _, rec := range res.Records {
		byKey[cellKey(rec.WindowIndex, rec.Method)] = formatFloat(value(rec))
	}

	header := []string{"window", "date"}
	for _, m := range res.Methods {
		header = append(header, string(m))
	}

	rows := make([][]string, 0, len(windows))
	for _, win := range windows {
		row := []string{strconv.Itoa(win.index), win.date}
		for _, m := range res.Methods {
			row = append(row, byKey[cellKey(win.index, m)])
		}
		rows = append(rows, row)
	}

	return w.writeCSV(name, header, rows)
}

// writeMovingAverage writes the trailing moving average of the out-of-sample
// risk series per method.
func (w *Writer) writeMovingAverage(res *backtest.Result) error {
	windows := windowIndex(res)
	series := make(map[domain.Method]map[int]float64)
	for _, rec := range res.Records {
		if series[rec.Method] == nil {
			series[rec.Method] = make(map[int]float64)
		}
		series[rec.Method][rec.WindowIndex] = rec.OutOfSample
	}

	header := []string{"window", "date"}
	for _, m := range res.Methods {
		header = append(header, string(m))
	}

	rows := make([][]string, 0, len(windows))
	trailing := make(map[domain.Method][]float64)
	for _, win := range windows {
		row := []string{strconv.Itoa(win.index), win.date}
		for _, m := range res.Methods {
			cell := ""
			if v, ok := series[m][win.index]; ok {
				trailing[m] = append(trailing[m], v)
				if len(trailing[m]) > w.maWindow {
					trailing[m] = trailing[m][1:]
				}
				if ma, err := stats.Mean(trailing[m]); err == nil {
					cell = formatFloat(ma)
				}
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}

	return w.writeCSV("risk_moving_average.csv", header, rows)
}

// writeWeights writes one wide table per method: one row per window, one
// column per asset.
func (w *Writer) writeWeights(res *backtest.Result) error {
	byMethod := make(map[domain.Method][]domain.WeightRecord)
	for _, wr := range res.Weights {
		byMethod[wr.Method] = append(byMethod[wr.Method], wr)
	}

	header := []string{"window", "date"}
	header = append(header, res.Assets...)

	for _, m := range res.Methods {
		records := byMethod[m]
		rows := make([][]string, 0, len(records))
		for _, wr := range records {
			row := []string{strconv.Itoa(wr.WindowIndex), wr.Date.Format(dateLayout)}
			for _, v := range wr.Weights {
				row = append(row, formatFloat(v))
			}
			rows = append(rows, row)
		}
		if err := w.writeCSV(fmt.Sprintf("weights_%s.csv", m), header, rows); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeSkips(res *backtest.Result) error {
	rows := make([]skipRow, 0, len(res.Skips))
	for _, s := range res.Skips {
		rows = append(rows, skipRow{Window: s.WindowIndex, Method: string(s.Method), Reason: s.Reason})
	}
	return w.marshalCSV("skips.csv", &rows)
}

func (w *Writer) writeSummary(res *backtest.Result) error {
	summaries := Summarize(res)
	return w.marshalCSV("summary.csv", &summaries)
}

// Summarize computes per-method aggregates over the risk series.
func Summarize(res *backtest.Result) []MethodSummary {
	inSample := make(map[domain.Method][]float64)
	outOfSample := make(map[domain.Method][]float64)
	for _, rec := range res.Records {
		inSample[rec.Method] = append(inSample[rec.Method], rec.InSample)
		outOfSample[rec.Method] = append(outOfSample[rec.Method], rec.OutOfSample)
	}
	skips := make(map[domain.Method]int)
	for _, s := range res.Skips {
		skips[s.Method]++
	}

	summaries := make([]MethodSummary, 0, len(res.Methods))
	for _, m := range res.Methods {
		s := MethodSummary{
			Method:  string(m),
			Windows: len(outOfSample[m]),
			Skips:   skips[m],
		}
		if len(inSample[m]) > 0 {
			s.MeanInSample, _ = stats.Mean(inSample[m])
			s.MeanOutOfSample, _ = stats.Mean(outOfSample[m])
			s.StdOutOfSample, _ = stats.StandardDeviation(outOfSample[m])
		}
		summaries = append(summaries, s)
	}
	return summaries
}

type windowRow struct {
	index int
	date  string
}

// windowIndex collects the distinct windows that produced at least one record,
// in ascending order.
func windowIndex(res *backtest.Result) []windowRow {
	seen := make(map[int]string)
	for _, rec := range res.Records {
		seen[rec.WindowIndex] = rec.Date.Format(dateLayout)
	}
	rows := make([]windowRow, 0, len(seen))
	for idx, date := range seen {
		rows = append(rows, windowRow{index: idx, date: date})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].index < rows[j].index })
	return rows
}

func cellKey(window int, method domain.Method) string {
	return strconv.Itoa(window) + "|" + string(method)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 12, 64)
}

// writeCSV writes a wide table with a dynamic column set.
func (w *Writer) writeCSV(name string, header []string, rows [][]string) error {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// marshalCSV writes a fixed-schema table from tagged structs.
func (w *Writer) marshalCSV(name string, rows interface{}) error {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
