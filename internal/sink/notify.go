package sink

import (
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// Notifier signals the operator that a record was committed.
type Notifier interface {
	// Notify requests a cue and returns immediately.
	Notify()
}

// NopNotifier does nothing.
type NopNotifier struct{}

func (NopNotifier) Notify() {}

// CommandRunner runs the player. Tests replace it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// SoundNotifier plays a WAV file through an external player. Requests made
// while a cue is already pending collapse into that cue.
type SoundNotifier struct {
	player  string
	file    string
	timeout time.Duration
	logger  *slog.Logger
	run     CommandRunner

	pending chan struct{}
}

var _ Notifier = (*SoundNotifier)(nil)

// SoundConfig configures a SoundNotifier.
type SoundConfig struct {
	Player  string
	File    string
	Timeout time.Duration
	Logger  *slog.Logger
	Runner  CommandRunner
}

// NewSoundNotifier returns a notifier for cfg. Call Run to start playback.
func NewSoundNotifier(cfg SoundConfig) *SoundNotifier {
	if cfg.Player == "" {
		cfg.Player = "aplay"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner
	}
	return &SoundNotifier{
		player:  cfg.Player,
		file:    cfg.File,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		run:     cfg.Runner,
		pending: make(chan struct{}, 1),
	}
}

// Notify queues a cue unless one is already waiting.
func (n *SoundNotifier) Notify() {
	select {
	case n.pending <- struct{}{}:
	default:
	}
}

// Run plays queued cues until ctx is done.
func (n *SoundNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.pending:
			n.play(ctx)
		}
	}
}

func (n *SoundNotifier) play(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.run(ctx, n.player, "-q", n.file); err != nil {
		n.logger.Warn("sound cue failed", "player", n.player, "file", n.file, "error", err)
	}
}
