package store

import "fmt"

// VerifyInventory recomputes every count from the transaction history and
// returns the inventory rows that disagree with it.
func (s *Store) VerifyInventory() ([]Mismatch, error) {
	rows, err := s.db.Query(`
		SELECT i.payload, i.quantity, COALESCE(SUM(CASE t.direction WHEN 'ADD' THEN 1 ELSE -1 END), 0)
		FROM inventory i
		LEFT JOIN transactions t ON t.payload = i.payload
		GROUP BY i.payload
		ORDER BY i.payload ASC`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var mismatches []Mismatch
	for rows.Next() {
		var m Mismatch
		if err := rows.Scan(&m.Payload, &m.Stored, &m.Computed); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		if m.Stored != m.Computed {
			mismatches = append(mismatches, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return mismatches, nil
}

// RebuildInventory replaces the inventory table with counts derived from
// the transaction history.
func (s *Store) RebuildInventory() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM inventory`); err != nil {
		return fmt.Errorf("clear inventory: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO inventory (payload, quantity, updated_ns)
		SELECT payload, SUM(CASE direction WHEN 'ADD' THEN 1 ELSE -1 END), MAX(time_ns)
		FROM transactions
		GROUP BY payload`); err != nil {
		return fmt.Errorf("rebuild inventory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
