// Package pipeline runs the scan loop: raw device events in, committed
// transactions out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"scanlogd/internal/device"
	"scanlogd/internal/keycode"
	"scanlogd/internal/scanbuf"
	"scanlogd/internal/transaction"
)

// Submitter accepts recorded transactions for persistence.
type Submitter interface {
	Submit(rec transaction.Record) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// OnOutcome registers a callback invoked after every committed payload.
func OnOutcome(fn func(payload string, out transaction.Outcome)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// Pipeline owns the scan buffer and the transaction policy. Both are touched
// only by the goroutine running Run.
type Pipeline struct {
	src     device.Source
	policy  *transaction.Policy
	sink    Submitter
	logger  *slog.Logger
	buf     *scanbuf.Buffer
	now     func() time.Time
	observe func(string, transaction.Outcome)
}

// New returns a pipeline reading from src.
func New(src device.Source, policy *transaction.Policy, sink Submitter, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		src:    src,
		policy: policy,
		sink:   sink,
		logger: logger,
		buf:    scanbuf.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes events until ctx is cancelled or the source fails. Closing
// the source is how a blocked read is interrupted on shutdown; that case
// returns nil. Any other read error is returned wrapped in device.ErrReadFailed.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		ev, err := p.src.ReadEvent()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, device.ErrClosed) {
				return nil
			}
			if errors.Is(err, device.ErrReadFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", device.ErrReadFailed, err)
		}

		p.handle(ev)
	}
}

func (p *Pipeline) handle(ev device.Event) {
	if !ev.IsKeyPress() {
		return
	}

	payload, ok := p.buf.Accept(keycode.Decode(int(ev.Code)))
	if !ok {
		return
	}

	out := p.policy.Commit(payload, p.now())
	p.report(payload, out)

	if p.observe != nil {
		p.observe(payload, out)
	}

	if out.Kind == transaction.Recorded {
		// Submit logs its own drops.
		_ = p.sink.Submit(*out.Record)
	}
}

func (p *Pipeline) report(payload string, out transaction.Outcome) {
	switch out.Kind {
	case transaction.Discarded:
		p.logger.Warn("scan discarded", "payload", payload, "length", len(payload), "reason", out.Reason)
	case transaction.ModeChanged:
		p.logger.Info("mode changed", "direction", out.Direction.String())
	case transaction.Recorded:
		p.logger.Info("transaction", "payload", payload, "direction", out.Direction.String())
	}
}

// Pending returns the characters buffered since the last terminator.
func (p *Pipeline) Pending() string {
	return p.buf.String()
}

// Dump prints every key event read from src until ctx is cancelled or the
// source fails. It is a diagnostic for checking what a scanner emits.
func Dump(ctx context.Context, src device.Source, w io.Writer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		ev, err := src.ReadEvent()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, device.ErrClosed) {
				return nil
			}
			if errors.Is(err, device.ErrReadFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", device.ErrReadFailed, err)
		}

		if ev.Kind() != device.KindKey {
			continue
		}

		r := keycode.Decode(int(ev.Code)).Rune
		if r == 0 {
			r = ' '
		}
		if _, err := fmt.Fprintf(w, "Event: type %d code %d value %d:   %c\n", ev.Type, ev.Code, ev.Value, r); err != nil {
			return err
		}
	}
}
