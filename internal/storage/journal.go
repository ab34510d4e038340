package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Journal persists the order lifecycle audit trail in SQLite. One row per
// lifecycle event (placed, open, complete, rejected, recovery-dropped,
// barrier-complete) for post-mortem reconstruction of a trading session.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) the journal database with WAL mode enabled.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS order_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			event TEXT NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create order_events table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends one lifecycle event. The payload is marshalled to JSON; a
// nil payload stores an empty blob.
func (j *Journal) Record(ctx context.Context, orderID, event string, ts int64, payload any) error {
	var blob []byte
	if payload != nil {
		var err error
		blob, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal journal payload: %w", err)
		}
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO order_events (order_id, event, ts, payload) VALUES (?, ?, ?, ?)",
		orderID, event, ts, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

// EventsFor returns the recorded event names for an order, oldest first.
func (j *Journal) EventsFor(ctx context.Context, orderID string) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT event FROM order_events WHERE order_id = ? ORDER BY id ASC", orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []string
	for rows.Next() {
		var ev string
		if err := rows.Scan(&ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (j *Journal) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table. Missing keys return
// an empty string without error.
func (j *Journal) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := j.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
