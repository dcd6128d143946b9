// Package store mirrors committed transactions into SQLite and keeps a
// running inventory count per scanned code.
package store

import "time"

// Transaction is one stored record.
type Transaction struct {
	ID        int64
	Time      time.Time
	Payload   string
	Direction string
}

// Item is the current inventory count of one code. Quantity goes negative
// when more units were taken than were ever added.
type Item struct {
	Payload   string
	Quantity  int64
	UpdatedAt time.Time
}

// Mismatch is an inventory row that disagrees with the transaction history.
type Mismatch struct {
	Payload  string
	Stored   int64
	Computed int64
}
