// Package journal records delivery outcomes in SQLite for operators.
// It is observability only: the relay loop never consults it to skip a
// delivery, since duplicate suppression belongs to the destination.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Delivery statuses.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Journal wraps SQLite-backed persistence for delivery attempts.
type Journal struct {
	db *sql.DB
}

// Open initializes the SQLite database and runs minimal schema setup.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Ping checks database connectivity.
func (j *Journal) Ping(ctx context.Context) error {
	if j == nil || j.db == nil {
		return errors.New("journal not initialized")
	}
	return j.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS deliveries (
  tx_hash       TEXT NOT NULL,
  log_index     INTEGER NOT NULL,
  block_number  INTEGER NOT NULL,
  status        TEXT NOT NULL,
  response_code INTEGER,
  attempts      INTEGER NOT NULL DEFAULT 1,
  updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(tx_hash, log_index)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Delivery is one recorded relay outcome.
type Delivery struct {
	TxHash       string
	LogIndex     uint
	BlockNumber  uint64
	Status       string
	ResponseCode int
	Attempts     int
	UpdatedAt    time.Time
}

// Record upserts the outcome for one event; re-relays of the same event
// (reorg margin, crash resume) overwrite the previous row.
func (j *Journal) Record(ctx context.Context, d Delivery) error {
	if d.TxHash == "" || d.Status == "" {
		return errors.New("tx_hash and status are required")
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO deliveries (tx_hash, log_index, block_number, status, response_code, attempts, updated_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(tx_hash, log_index) DO UPDATE SET
  block_number=excluded.block_number,
  status=excluded.status,
  response_code=excluded.response_code,
  attempts=excluded.attempts,
  updated_at=CURRENT_TIMESTAMP;
`, d.TxHash, d.LogIndex, d.BlockNumber, d.Status, d.ResponseCode, d.Attempts)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Totals returns delivered and failed row counts.
func (j *Journal) Totals(ctx context.Context) (delivered, failed int64, err error) {
	row := j.db.QueryRowContext(ctx, `
SELECT
  COUNT(CASE WHEN status = ? THEN 1 END),
  COUNT(CASE WHEN status = ? THEN 1 END)
FROM deliveries;
`, StatusDelivered, StatusFailed)
	if err := row.Scan(&delivered, &failed); err != nil {
		return 0, 0, fmt.Errorf("count deliveries: %w", err)
	}
	return delivered, failed, nil
}

// List returns deliveries ordered by block and log index, newest last.
func (j *Journal) List(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT tx_hash, log_index, block_number, status, response_code, attempts, updated_at
FROM deliveries
ORDER BY block_number, log_index
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var code sql.NullInt64
		if err := rows.Scan(&d.TxHash, &d.LogIndex, &d.BlockNumber, &d.Status, &code, &d.Attempts, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.ResponseCode = int(code.Int64)
		out = append(out, d)
	}
	return out, rows.Err()
}
