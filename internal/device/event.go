// Package device supplies raw input events from a Linux input device node.
package device

import (
	"errors"

	"github.com/holoplot/go-evdev"
)

// Kind classifies an event by type.
type Kind int

const (
	KindOther Kind = iota
	KindKey
)

// Key event values.
const (
	Released int32 = 0
	Pressed  int32 = 1
	Repeat   int32 = 2
)

// Event is one raw (type, code, value) input event.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// KeyPress returns a key-down event for code.
func KeyPress(code int) Event {
	return Event{Type: uint16(evdev.EV_KEY), Code: uint16(code), Value: Pressed}
}

// KeyRelease returns a key-up event for code.
func KeyRelease(code int) Event {
	return Event{Type: uint16(evdev.EV_KEY), Code: uint16(code), Value: Released}
}

// Kind returns KindKey for EV_KEY events.
func (e Event) Kind() Kind {
	if e.Type == uint16(evdev.EV_KEY) {
		return KindKey
	}
	return KindOther
}

// IsKeyPress reports whether e is a key-down. Releases and autorepeat are not.
func (e Event) IsKeyPress() bool {
	return e.Kind() == KindKey && e.Value == Pressed
}

// Source supplies events in arrival order. ReadEvent blocks until an event
// is available or the source fails; Close unblocks a pending read.
type Source interface {
	ReadEvent() (Event, error)
	Close() error
}

var (
	// ErrNotFound means the device node does not exist.
	ErrNotFound = errors.New("device: not found")
	// ErrPermission means the device node exists but cannot be opened.
	ErrPermission = errors.New("device: permission denied")
	// ErrReadFailed means the device stopped delivering events.
	ErrReadFailed = errors.New("device: read failed")
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("device: closed")
)
