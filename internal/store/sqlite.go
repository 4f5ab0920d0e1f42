package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS session_slots (
    session_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (session_id, key)
);

CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    payload TEXT NOT NULL,
    status TEXT NOT NULL,
    http_code INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_deliveries_session ON deliveries(session_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);
`

// busyTimeout is how long a writer waits on a lock held by another
// process before failing with SQLITE_BUSY.
const busyTimeout = 5000

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Emitter goroutines journal while the accumulator writes its slot.
	// One connection serializes them inside this process.
	db.SetMaxOpenConns(1)

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dbPath, sep, busyTimeout)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSlot(ctx context.Context, sessionID, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_slots WHERE session_id = ? AND key = ?`,
		sessionID, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}

	return value, nil
}

func (s *SQLiteStore) SetSlot(ctx context.Context, sessionID, key string, value []byte) error {
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_slots (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sessionID, key, value, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set slot: %w", err)
	}

	return nil
}

func (s *SQLiteStore) DeleteSlot(ctx context.Context, sessionID, key string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM session_slots WHERE session_id = ? AND key = ?`,
		sessionID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListSlots returns every stored slot, most recently updated first.
func (s *SQLiteStore) ListSlots(ctx context.Context) ([]*Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, key, value, updated_at FROM session_slots ORDER BY updated_at DESC, session_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var slots []*Slot
	for rows.Next() {
		var slot Slot
		var updatedAt int64
		if err := rows.Scan(&slot.SessionID, &slot.Key, &slot.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slot.UpdatedAt = time.Unix(updatedAt, 0)
		slots = append(slots, &slot)
	}

	return slots, rows.Err()
}

// ClearSession drops every slot of a session, ending it.
func (s *SQLiteStore) ClearSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM session_slots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) RecordDelivery(ctx context.Context, d *Delivery) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (session_id, kind, endpoint, payload, status, http_code, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.Kind, d.Endpoint, d.Payload, string(d.Status), d.HTTPCode, d.Error, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	d.ID = id
	d.CreatedAt = time.Unix(createdAt.Unix(), 0)
	return nil
}

// DeliveryFilter narrows ListDeliveries. Zero values match everything.
type DeliveryFilter struct {
	SessionID string
	// Statuses matches any of the listed outcomes.
	Statuses []DeliveryStatus
}

func (s *SQLiteStore) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]*Delivery, error) {
	query := `SELECT id, session_id, kind, endpoint, payload, status, http_code, error, created_at
		 FROM deliveries WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(filter.Statuses)-1) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		var d Delivery
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Kind, &d.Endpoint, &d.Payload, &d.Status, &d.HTTPCode, &d.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		deliveries = append(deliveries, &d)
	}

	return deliveries, rows.Err()
}
