package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"
)

// openFlags opens nodes read-only; reading and EVIOCGRAB need no write access.
const openFlags = os.O_RDONLY

// EvdevSource reads events from a /dev/input/event* node.
type EvdevSource struct {
	path    string
	name    string
	dev     *evdev.InputDevice
	grabbed bool
	closed  atomic.Bool
}

var _ Source = (*EvdevSource)(nil)

// Open opens the device at path. With grab set the device is taken for
// exclusive use so scans do not also type into a console.
func Open(path string, grab bool) (*EvdevSource, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	dev, err := evdev.OpenWithFlags(path, openFlags)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}

	s := &EvdevSource{path: path, dev: dev}

	if name, err := dev.Name(); err == nil {
		s.name = name
	} else {
		s.name = "Unknown"
	}

	if grab {
		if err := dev.Grab(); err != nil {
			dev.Close()
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
		s.grabbed = true
	}

	return s, nil
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return &PermissionError{Path: path, Root: unix.Geteuid() == 0, Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return fmt.Errorf("open %s: %w", path, err)
	}
}

// Path returns the device node path.
func (s *EvdevSource) Path() string { return s.path }

// Name returns the name the kernel reports for the device.
func (s *EvdevSource) Name() string { return s.name }

// ReadEvent blocks for the next event.
func (s *EvdevSource) ReadEvent() (Event, error) {
	ev, err := s.dev.ReadOne()
	if err != nil {
		if s.closed.Load() {
			return Event{}, ErrClosed
		}
		return Event{}, fmt.Errorf("%w: %s: %v", ErrReadFailed, s.path, err)
	}
	return Event{Type: uint16(ev.Type), Code: uint16(ev.Code), Value: ev.Value}, nil
}

// Close releases the grab and closes the node. A blocked ReadEvent returns ErrClosed.
func (s *EvdevSource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.grabbed {
		_ = s.dev.Ungrab()
	}
	return s.dev.Close()
}

// PermissionError reports a device that exists but cannot be opened.
type PermissionError struct {
	Path string
	Root bool
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s cannot be opened: %v", e.Path, e.Err)
}

// Hint suggests a fix to the operator.
func (e *PermissionError) Hint() string {
	if e.Root {
		return ""
	}
	return "Try root permissions, or add the user to the 'input' group."
}

func (e *PermissionError) Unwrap() []error {
	return []error{ErrPermission, e.Err}
}
