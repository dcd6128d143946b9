package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scanlogd/internal/transaction"
)

// Schema for the inventory mirror.
const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    time_ns     INTEGER NOT NULL,
    payload     TEXT NOT NULL,
    direction   TEXT NOT NULL CHECK (direction IN ('ADD', 'TAKE'))
);

CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(time_ns);
CREATE INDEX IF NOT EXISTS idx_transactions_payload ON transactions(payload, time_ns);

CREATE TABLE IF NOT EXISTS inventory (
    payload     TEXT PRIMARY KEY,
    quantity    INTEGER NOT NULL,
    updated_ns  INTEGER NOT NULL
);
`

// Store represents the SQLite inventory mirror.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The dispatcher is the only writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append stores rec and adjusts the inventory count of its payload:
// ADD counts one unit in, TAKE one unit out.
func (s *Store) Append(rec transaction.Record) error {
	delta := int64(-1)
	if rec.Direction == transaction.Add {
		delta = 1
	}
	ts := rec.Time.UnixNano()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO transactions (time_ns, payload, direction)
		VALUES (?, ?, ?)`,
		ts, rec.Payload, rec.Direction.String(),
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO inventory (payload, quantity, updated_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(payload) DO UPDATE SET
			quantity = quantity + excluded.quantity,
			updated_ns = excluded.updated_ns`,
		rec.Payload, delta, ts,
	); err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Quantity returns the current count for payload, zero if it was never scanned.
func (s *Store) Quantity(payload string) (int64, error) {
	var q int64
	err := s.db.QueryRow(`SELECT quantity FROM inventory WHERE payload = ?`, payload).Scan(&q)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query quantity: %w", err)
	}
	return q, nil
}

// Item returns the inventory row for payload, or nil if it was never scanned.
func (s *Store) Item(payload string) (*Item, error) {
	var it Item
	var updated int64
	err := s.db.QueryRow(`
		SELECT payload, quantity, updated_ns FROM inventory WHERE payload = ?`, payload,
	).Scan(&it.Payload, &it.Quantity, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query item: %w", err)
	}
	it.UpdatedAt = time.Unix(0, updated)
	return &it, nil
}

// Recent returns up to n transactions, newest first.
func (s *Store) Recent(n int) ([]Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, time_ns, payload, direction FROM transactions
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// History returns every transaction for payload in commit order.
func (s *Store) History(payload string) ([]Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, time_ns, payload, direction FROM transactions
		WHERE payload = ?
		ORDER BY id ASC`, payload)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Count returns the number of stored transactions.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		var t Transaction
		var ts int64
		if err := rows.Scan(&t.ID, &ts, &t.Payload, &t.Direction); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Time = time.Unix(0, ts)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
