// Package transaction decides what a finished scan means: a mode switch
// between adding and taking inventory, a malformed read, or an item to record.
package transaction

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the inventory direction of a transaction.
type Direction int

const (
	Take Direction = iota
	Add
)

func (d Direction) String() string {
	if d == Add {
		return "ADD"
	}
	return "TAKE"
}

// Adding reports whether d is Add.
func (d Direction) Adding() bool {
	return d == Add
}

// DirectionOf converts an adding flag to a Direction.
func DirectionOf(adding bool) Direction {
	if adding {
		return Add
	}
	return Take
}

// ParseDirection accepts "add" or "take" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return Add, nil
	case "take":
		return Take, nil
	default:
		return Take, fmt.Errorf("unknown direction: %q", s)
	}
}

// DefaultTimeLayout is the timestamp layout of transaction log lines.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// Record is one committed scan. Records are append-only.
type Record struct {
	Time      time.Time `json:"time"`
	Payload   string    `json:"payload"`
	Direction Direction `json:"direction"`
}

// Format renders the record as a single newline-terminated log line.
func (r Record) Format(layout string, withDirection bool) string {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	var sb strings.Builder
	sb.WriteString(r.Time.Format(layout))
	sb.WriteByte(' ')
	sb.WriteString(r.Payload)
	if withDirection {
		sb.WriteByte(' ')
		sb.WriteString(r.Direction.String())
	}
	sb.WriteByte('\n')
	return sb.String()
}
