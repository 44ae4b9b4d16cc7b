// Package store persists run results to a SQLite database, so experiment
// configurations can be compared across runs.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"covbench/internal/backtest"
	"covbench/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	config      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS risk_series (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	window_idx    INTEGER NOT NULL,
	window_date   TEXT NOT NULL,
	method        TEXT NOT NULL,
	in_sample     REAL NOT NULL,
	out_of_sample REAL NOT NULL,
	PRIMARY KEY (run_id, window_idx, method)
);
CREATE TABLE IF NOT EXISTS weights (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	window_idx INTEGER NOT NULL,
	method     TEXT NOT NULL,
	vector     BLOB NOT NULL,
	PRIMARY KEY (run_id, window_idx, method)
);
CREATE TABLE IF NOT EXISTS skips (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	window_idx INTEGER NOT NULL,
	method     TEXT NOT NULL,
	reason     TEXT NOT NULL
);
`

// weightBlob is the msgpack payload stored per (window, method).
type weightBlob struct {
	Assets  []string  `msgpack:"assets"`
	Weights []float64 `msgpack:"weights"`
}

// Store wraps the results database.
type Store struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// Open creates or opens a results database with WAL journaling.
func Open(path string, log zerolog.Logger) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := absPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize results schema: %w", err)
	}

	return &Store{
		conn: conn,
		path: absPath,
		log:  log.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveRun persists one run and returns its generated id. The raw
// configuration document is stored with the run for reproducibility.
func (s *Store) SaveRun(res *backtest.Result, configDoc string) (string, error) {
	runID := uuid.NewString()

	tx, err := s.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, created_at, config) VALUES (?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), configDoc,
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, rec := range res.Records {
		if _, err := tx.Exec(
			`INSERT INTO risk_series (run_id, window_idx, window_date, method, in_sample, out_of_sample)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, rec.WindowIndex, rec.Date.Format("2006-01-02"), string(rec.Method), rec.InSample, rec.OutOfSample,
		); err != nil {
			return "", fmt.Errorf("failed to insert risk record: %w", err)
		}
	}

	for _, wr := range res.Weights {
		blob, err := msgpack.Marshal(weightBlob{Assets: res.Assets, Weights: wr.Weights})
		if err != nil {
			return "", fmt.Errorf("failed to encode weights: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO weights (run_id, window_idx, method, vector) VALUES (?, ?, ?, ?)`,
			runID, wr.WindowIndex, string(wr.Method), blob,
		); err != nil {
			return "", fmt.Errorf("failed to insert weights: %w", err)
		}
	}

	for _, sk := range res.Skips {
		if _, err := tx.Exec(
			`INSERT INTO skips (run_id, window_idx, method, reason) VALUES (?, ?, ?, ?)`,
			runID, sk.WindowIndex, string(sk.Method), sk.Reason,
		); err != nil {
			return "", fmt.Errorf("failed to insert skip: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	s.log.Info().
		Str("run_id", runID).
		Int("records", len(res.Records)).
		Int("skips", len(res.Skips)).
		Msg("Saved run")
	return runID, nil
}

// LoadWeights reads back the weight vector stored for one (run, window,
// method) triple.
func (s *Store) LoadWeights(runID string, windowIdx int, method domain.Method) ([]string, []float64, error) {
	var raw []byte
	err := s.conn.QueryRow(
		`SELECT vector FROM weights WHERE run_id = ? AND window_idx = ? AND method = ?`,
		runID, windowIdx, string(method),
	).Scan(&raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load weights: %w", err)
	}

	var blob weightBlob
	if err := msgpack.Unmarshal(raw, &blob); err != nil {
		return nil, nil, fmt.Errorf("failed to decode weights: %w", err)
	}
	return blob.Assets, blob.Weights, nil
}
