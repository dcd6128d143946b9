package sink

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scanlogd/internal/transaction"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("sink: dispatcher closed")

// ErrQueueFull is returned by Submit when the record could not be queued in time.
var ErrQueueFull = errors.New("sink: queue full")

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	QueueSize      int
	EnqueueTimeout time.Duration
	Notifier       Notifier
	Logger         *slog.Logger
}

// Dispatcher hands records to sinks on a single worker so the scan loop
// never waits on disk or audio. Records reach every sink in submission order.
type Dispatcher struct {
	sinks    []Sink
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger

	queue chan transaction.Record

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher returns a dispatcher writing to sinks in the given order.
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = time.Second
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		sinks:    sinks,
		notifier: cfg.Notifier,
		timeout:  cfg.EnqueueTimeout,
		logger:   cfg.Logger,
		queue:    make(chan transaction.Record, cfg.QueueSize),
	}
}

// Submit queues rec. It waits at most the enqueue timeout; a record that
// cannot be queued in that time is dropped and logged.
func (d *Dispatcher) Submit(rec transaction.Record) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- rec:
		return nil
	default:
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case d.queue <- rec:
		return nil
	case <-timer.C:
		d.dropped.Add(1)
		d.logger.Error("transaction dropped, sink queue full",
			"payload", rec.Payload,
			"direction", rec.Direction.String(),
			"time", rec.Time.Format(transaction.DefaultTimeLayout),
		)
		return ErrQueueFull
	}
}

// Run writes queued records until Close is called and the queue is empty.
func (d *Dispatcher) Run() error {
	for rec := range d.queue {
		d.deliver(rec)
	}
	return nil
}

func (d *Dispatcher) deliver(rec transaction.Record) {
	stored := len(d.sinks) == 0
	for _, s := range d.sinks {
		if err := s.Append(rec); err != nil {
			d.logger.Warn("transaction append failed", "payload", rec.Payload, "error", err)
			continue
		}
		stored = true
	}
	if stored {
		d.written.Add(1)
	} else {
		d.failed.Add(1)
		d.logger.Error("transaction not recorded by any sink", "payload", rec.Payload)
	}
	d.notifier.Notify()
}

// Close stops accepting records. Run returns once the queue drains.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

// Stats counts records by outcome.
type Stats struct {
	Written uint64 // accepted by at least one sink
	Failed  uint64 // rejected by every sink
	Dropped uint64 // never queued
}

// Stats reports how the submitted records fared.
func (d *Dispatcher) Stats() Stats {
	return Stats{Written: d.written.Load(), Failed: d.failed.Load(), Dropped: d.dropped.Load()}
}
