// Package store persists scored transactions in SQLite.
//
// The results table is keyed by txn_id. Writes replace any existing row for
// the same id; reads return rows in reverse physical order, so a replaced
// row counts as the most recent write.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hed1ad/aegis/pkg/metrics"
)

// ErrNotFound is returned by Get for an unknown txn_id.
var ErrNotFound = errors.New("result not found")

// Result is a scored transaction as stored.
type Result struct {
	TxnID     string  `json:"txn_id"`
	Timestamp string  `json:"timestamp"`
	Amount    float64 `json:"amount"`
	Country   string  `json:"country"`
	Merchant  string  `json:"merchant"`
	IFScore   float64 `json:"if_score"`
	AEMSE     float64 `json:"ae_mse"`
	Label     int     `json:"label"`
	// Raw is the JSON of the transaction as it was sent for scoring.
	Raw string `json:"raw,omitempty"`
}

// Store is a SQLite-backed result table.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// migrate creates the results table
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			txn_id TEXT PRIMARY KEY,
			timestamp TEXT,
			amount REAL,
			country TEXT,
			merchant TEXT,
			if_score REAL,
			ae_mse REAL,
			label INTEGER,
			raw TEXT
		)
	`)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts r or replaces the row with the same txn_id.
func (s *Store) Upsert(ctx context.Context, r Result) error {
	if r.TxnID == "" {
		return errors.New("upsert: empty txn_id")
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results
			(txn_id, timestamp, amount, country, merchant, if_score, ae_mse, label, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.TxnID, r.Timestamp, r.Amount, r.Country, r.Merchant, r.IFScore, r.AEMSE, r.Label, r.Raw)
	metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", r.TxnID, err)
	}
	return nil
}

// Recent returns at most limit rows, most recently written first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT txn_id, timestamp, amount, country, merchant, if_score, ae_mse, label, raw
		FROM results
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the row stored under id.
func (s *Store) Get(ctx context.Context, id string) (Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT txn_id, timestamp, amount, country, merchant, if_score, ae_mse, label, raw
		FROM results WHERE txn_id = ?
	`, id)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (Result, error) {
	var (
		r   Result
		raw sql.NullString
	)
	err := sc.Scan(&r.TxnID, &r.Timestamp, &r.Amount, &r.Country, &r.Merchant, &r.IFScore, &r.AEMSE, &r.Label, &raw)
	r.Raw = raw.String
	return r, err
}
