// Package sink persists committed transaction records and signals each one
// to the operator.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"scanlogd/internal/transaction"
)

// Sink accepts committed records.
type Sink interface {
	Append(rec transaction.Record) error
}

// FileOptions controls how records are rendered and flushed.
type FileOptions struct {
	// TimeLayout is the timestamp layout; empty means transaction.DefaultTimeLayout.
	TimeLayout string
	// WithDirection appends ADD or TAKE to each line.
	WithDirection bool
	// Sync calls fdatasync after every line.
	Sync bool
}

// File appends records to the transaction log. Other processes appending to
// the same file see whole lines because every write holds an exclusive flock.
type File struct {
	path string
	opts FileOptions

	mu sync.Mutex
	f  *os.File
}

var _ Sink = (*File)(nil)

// OpenFile opens (creating if needed) the transaction log at path.
func OpenFile(path string, opts FileOptions) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create transaction directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0640)
	if err != nil {
		return nil, fmt.Errorf("open transaction log: %w", err)
	}
	return &File{path: path, opts: opts, f: f}, nil
}

// Path returns the transaction log path.
func (s *File) Path() string { return s.path }

// Append writes one line for rec.
func (s *File) Append(rec transaction.Record) error {
	line := rec.Format(s.opts.TimeLayout, s.opts.WithDirection)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return os.ErrClosed
	}

	fd := int(s.f.Fd())
	if err := lockFile(fd); err != nil {
		return fmt.Errorf("lock transaction log: %w", err)
	}
	defer unlockFile(fd)

	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	if s.opts.Sync {
		if err := unix.Fdatasync(fd); err != nil {
			return fmt.Errorf("sync transaction log: %w", err)
		}
	}
	return nil
}

// Close closes the log.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func lockFile(fd int) error {
	return unix.Flock(fd, unix.LOCK_EX)
}

func unlockFile(fd int) error {
	return unix.Flock(fd, unix.LOCK_UN)
}
