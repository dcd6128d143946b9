// Package scanbuf accumulates decoded key characters into scan payloads.
package scanbuf

import (
	"strings"

	"scanlogd/internal/keycode"
)

// Buffer collects the characters of the scan in progress. It never holds a
// terminator: accepting one finalizes and clears the buffer.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	sb strings.Builder
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Accept feeds one decoded character. It returns the finished payload and
// true when c terminates a scan.
func (b *Buffer) Accept(c keycode.Char) (string, bool) {
	switch c.Kind {
	case keycode.Terminator:
		payload := b.sb.String()
		b.sb.Reset()
		return payload, true
	case keycode.Printable:
		b.sb.WriteRune(c.Rune)
	}
	return "", false
}

// Len returns the number of bytes pending.
func (b *Buffer) Len() int {
	return b.sb.Len()
}

// String returns the pending content without finalizing it.
func (b *Buffer) String() string {
	return b.sb.String()
}

// Reset discards the pending content.
func (b *Buffer) Reset() {
	b.sb.Reset()
}
