package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReadPolicy decides what happens when a read fails.
type ReadPolicy int

const (
	// FailStop returns the first read failure to the caller.
	FailStop ReadPolicy = iota
	// Retry closes the device and reopens it, backing off between attempts.
	Retry
)

// ParseReadPolicy accepts "fail-stop" or "retry".
func ParseReadPolicy(s string) (ReadPolicy, error) {
	switch s {
	case "", "fail-stop":
		return FailStop, nil
	case "retry":
		return Retry, nil
	default:
		return FailStop, fmt.Errorf("unknown read policy: %q", s)
	}
}

func (p ReadPolicy) String() string {
	if p == Retry {
		return "retry"
	}
	return "fail-stop"
}

// MaxBackoff caps the delay between reopen attempts.
const MaxBackoff = 30 * time.Second

// Opener opens a fresh source.
type Opener func(ctx context.Context) (Source, error)

// ResilientConfig configures a Resilient source.
type ResilientConfig struct {
	Policy     ReadPolicy
	MaxRetries int
	Backoff    time.Duration
	Logger     *slog.Logger

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Resilient wraps a source with a read-failure policy.
type Resilient struct {
	ctx    context.Context
	cfg    ResilientConfig
	open   Opener
	mu     sync.Mutex
	cur    Source
	closed bool
}

var _ Source = (*Resilient)(nil)

// NewResilient wraps an already opened source. open is used for reopening.
func NewResilient(ctx context.Context, first Source, open Opener, cfg ResilientConfig) *Resilient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Resilient{ctx: ctx, cfg: cfg, open: open, cur: first}
}

// ReadEvent reads from the current source, reopening on failure under Retry.
func (r *Resilient) ReadEvent() (Event, error) {
	for {
		src := r.current()
		if src == nil {
			return Event{}, ErrClosed
		}

		ev, err := src.ReadEvent()
		if err == nil {
			return ev, nil
		}
		if errors.Is(err, ErrClosed) || r.cfg.Policy == FailStop {
			return Event{}, err
		}

		r.cfg.Logger.Warn("device read failed, reopening", "error", err)
		if rerr := r.reopen(); rerr != nil {
			return Event{}, fmt.Errorf("%w: reopen gave up: %v (last read error: %v)", ErrReadFailed, rerr, err)
		}
	}
}

func (r *Resilient) current() Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.cur
}

func (r *Resilient) reopen() error {
	r.mu.Lock()
	if r.cur != nil {
		_ = r.cur.Close()
		r.cur = nil
	}
	r.mu.Unlock()

	delay := r.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := r.cfg.Sleep(r.ctx, delay); err != nil {
			return err
		}

		src, err := r.open(r.ctx)
		if err == nil {
			r.mu.Lock()
			if r.closed {
				r.mu.Unlock()
				_ = src.Close()
				return ErrClosed
			}
			r.cur = src
			r.mu.Unlock()
			r.cfg.Logger.Info("device reopened", "attempt", attempt)
			return nil
		}

		lastErr = err
		r.cfg.Logger.Warn("device reopen failed", "attempt", attempt, "error", err)
		delay = nextBackoff(delay)
	}
	if lastErr == nil {
		lastErr = errors.New("no retries allowed")
	}
	return lastErr
}

func nextBackoff(d time.Duration) time.Duration {
	if d >= MaxBackoff/2 {
		return MaxBackoff
	}
	return d * 2
}

// Close closes the current source and stops further reopening.
func (r *Resilient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.cur != nil {
		return r.cur.Close()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
