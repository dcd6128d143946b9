// Command scanlogd records barcode scans from a keyboard-emulating scanner
// into an inventory transaction log.
//
// Usage:
//
//	scanlogd [flags] <device>
//
// Scanning the take or add code switches the mode; every other 12-character
// code is appended to the log with the current mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"scanlogd/internal/config"
	"scanlogd/internal/device"
	"scanlogd/internal/logging"
	"scanlogd/internal/pipeline"
	"scanlogd/internal/sink"
	"scanlogd/internal/store"
	"scanlogd/internal/transaction"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if msg := ee.message(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(ee.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	foreground bool
	dump       bool
	configPath string
	logLevel   string
	device     string
	inventory  inventoryRequest
	writeTo    string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options

	fs := pflag.NewFlagSet("scanlogd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVarP(&opts.foreground, "foreground", "f", false, "stay in the foreground and log to stderr as well")
	fs.StringVarP(&opts.configPath, "config", "c", "", "config file (default: "+config.ConfigPath()+")")
	fs.BoolVar(&opts.dump, "dump", false, "print raw key events instead of recording (implies --foreground)")
	fs.StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	fs.StringVar(&opts.writeTo, "write-config", "", "write the effective configuration to `path` and exit")
	fs.BoolVar(&opts.inventory.verify, "verify-inventory", false, "check inventory counts against the transaction history and exit")
	fs.BoolVar(&opts.inventory.rebuild, "rebuild-inventory", false, "recompute inventory counts from the transaction history and exit")
	fs.StringVar(&opts.inventory.item, "item", "", "print the count and history of one code and exit")
	fs.IntVar(&opts.inventory.recent, "recent", 0, "print the newest `n` stored transactions and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: scanlogd [flags] <device>")
		fmt.Fprintln(stderr, "       scanlogd --verify-inventory | --rebuild-inventory | --item <code> | --recent <n>")
		fmt.Fprintln(stderr, "       scanlogd [-c <config>] --write-config <path>")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Reads barcodes from an input device such as /dev/input/event3")
		fmt.Fprintln(stderr, "or /dev/input/by-id/usb-<scanner>-event-kbd.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, &exitError{code: exitUsage}
	}

	switch fs.NArg() {
	case 0:
	case 1:
		opts.device = fs.Arg(0)
	default:
		fs.Usage()
		return nil, &exitError{code: exitUsage}
	}
	if opts.dump {
		opts.foreground = true
	}
	return &opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	daemon := isDaemonChild()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if daemon {
			reportDetached(err)
		}
		return &exitError{code: exitConfig, msg: fmt.Sprintf("configuration: %v", err), err: err}
	}
	if opts.device != "" {
		cfg.Device.Path = opts.device
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.writeTo != "" {
		return writeConfig(cfg, opts.writeTo, stdout)
	}
	if opts.inventory.any() {
		return classify(runInventory(cfg, opts.inventory, stdout))
	}
	if cfg.Device.Path == "" {
		return usageError("Usage: scanlogd [flags] <device>\nNo input device given; pass it as an argument or set device.path in %s.", config.ConfigPath())
	}

	// The diagnostic log comes first so nothing after this point fails silently.
	lc, err := cfg.LoggingSettings()
	if err != nil {
		return &exitError{code: exitConfig, msg: fmt.Sprintf("configuration: %v", err), err: err}
	}
	if opts.foreground && lc.Output == "file" {
		lc.Output = "both"
	}
	if opts.dump {
		lc.Output = "stderr"
	}
	logger, err := logging.New(lc)
	if err != nil {
		return &exitError{code: exitConfig, msg: fmt.Sprintf("open log: %v", err), err: err}
	}
	defer logger.Close()
	logging.SetDefault(logger)
	logger.Debug("diagnostic log opened", "level", logging.LevelString(lc.Level), "output", lc.Output)

	if !opts.foreground && !daemon {
		logger.Info("starting in background", "device", cfg.Device.Path)
		if err := startDaemon(args, stdout); err != nil {
			logger.Error("failed to start daemon", "error", err)
			return err
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openDevice(ctx, cfg, daemon, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return describeOpenError(cfg.Device.Path, err)
	}

	if opts.dump {
		go func() {
			<-ctx.Done()
			src.Close()
		}()
		defer src.Close()
		return classify(pipeline.Dump(ctx, src, stdout))
	}

	err = serve(ctx, cfg, src, logger)
	if err != nil {
		logger.Error("scanlogd stopped", "error", err)
		return classify(err)
	}
	logger.Info("scanlogd stopped")
	return nil
}

// writeConfig saves cfg, flag overrides included, without replacing an
// existing file.
func writeConfig(cfg *config.Config, path string, stdout io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return usageError("%s already exists; remove it first.", path)
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		return &exitError{code: exitConfig, msg: err.Error(), err: err}
	}
	fmt.Fprintf(stdout, "configuration written to %s\n", path)
	return nil
}

// openDevice opens the configured device. The daemon waits for a missing
// device to appear; the foreground fails at once.
func openDevice(ctx context.Context, cfg *config.Config, daemon bool, logger *logging.Logger) (*device.EvdevSource, error) {
	path := cfg.Device.Path

	if daemon {
		if _, err := os.Stat(path); err != nil {
			logger.Info("waiting for device", "device", path)
		}
		if err := device.WaitFor(ctx, path, cfg.WaitPoll(), logger.WithComponent("device").Logger); err != nil {
			return nil, err
		}
	}

	src, err := device.Open(path, cfg.Device.Grab)
	if err != nil {
		logger.Error("cannot open device", "device", path, "error", err)
		return nil, err
	}
	logger.Info("reading from device", "device", src.Path(), "name", src.Name(), "grab", cfg.Device.Grab)
	return src, nil
}

func describeOpenError(path string, err error) error {
	var perr *device.PermissionError
	switch {
	case errors.Is(err, device.ErrNotFound):
		return &exitError{code: exitNoDevice, msg: fmt.Sprintf("%s is not a valid device.", path), err: err}
	case errors.As(err, &perr):
		msg := fmt.Sprintf("%s cannot be opened.", path)
		if hint := perr.Hint(); hint != "" {
			msg += "\n " + hint
		}
		return &exitError{code: exitPermission, msg: msg, err: err}
	default:
		return classify(err)
	}
}

// serve runs the scan loop until a signal arrives or the device fails.
func serve(ctx context.Context, cfg *config.Config, first *device.EvdevSource, logger *logging.Logger) error {
	defer first.Close()

	settings, err := cfg.PolicySettings()
	if err != nil {
		return err
	}
	policy, err := transaction.NewPolicy(settings)
	if err != nil {
		return err
	}
	readPolicy, err := device.ParseReadPolicy(cfg.Device.ReadFailure)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	txlog, err := sink.OpenFile(cfg.Transaction.Path, sink.FileOptions{
		TimeLayout:    cfg.Transaction.TimestampFormat,
		WithDirection: cfg.Transaction.RecordDirection,
		Sync:          cfg.Transaction.Sync,
	})
	if err != nil {
		return err
	}
	defer txlog.Close()
	sinks := []sink.Sink{txlog}

	if cfg.Store.SQLitePath != "" {
		db, err := store.Open(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		checkInventory(db, logger.WithComponent("store"))
		sinks = append(sinks, db)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()

	var notifier sink.Notifier = sink.NopNotifier{}
	if cfg.Notify.SoundFile != "" {
		checkSoundFile(cfg, logger.WithComponent("notify"))
		sn := sink.NewSoundNotifier(sink.SoundConfig{
			Player:  cfg.Notify.Player,
			File:    cfg.Notify.SoundFile,
			Timeout: cfg.NotifyTimeout(),
			Logger:  logger.WithComponent("notify").Logger,
		})
		notifier = sn
		g.Go(logger.Guard("notify", func() error { return sn.Run(notifyCtx) }))
	}

	dispatcher := sink.NewDispatcher(sink.DispatcherConfig{
		QueueSize:      cfg.Sink.QueueSize,
		EnqueueTimeout: cfg.EnqueueTimeout(),
		Notifier:       notifier,
		Logger:         logger.WithComponent("sink").Logger,
	}, sinks...)

	src := device.NewResilient(gctx, first, func(context.Context) (device.Source, error) {
		return device.Open(cfg.Device.Path, cfg.Device.Grab)
	}, device.ResilientConfig{
		Policy:     readPolicy,
		MaxRetries: cfg.Device.RetryMax,
		Backoff:    cfg.RetryBackoff(),
		Logger:     logger.WithComponent("device").Logger,
	})

	loop := pipeline.New(src, policy, dispatcher, logger.WithComponent("pipeline").Logger)

	if reports, err := logging.CrashReports(logger.CrashDir()); err == nil && len(reports) > 0 {
		last := reports[len(reports)-1]
		logger.Warn("earlier crash reports found",
			"dir", logger.CrashDir(),
			"count", len(reports),
			"last_operation", last.Operation,
			"last_panic", last.PanicValue,
		)
	}

	logger.Info("scanlogd started",
		"transactions", txlog.Path(),
		"mode", policy.State().Direction().String(),
		"stale_after", settings.StaleAfter.String(),
	)

	g.Go(logger.Guard("dispatch", func() error {
		// Queued records are still written after the loop stops.
		defer stopNotify()
		return dispatcher.Run()
	}))
	g.Go(logger.Guard("pipeline", func() error {
		defer cancel()
		defer dispatcher.Close()
		return loop.Run(gctx)
	}))
	g.Go(func() error {
		<-gctx.Done()
		if err := src.Close(); err != nil {
			logger.Warn("closing device", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if partial := loop.Pending(); partial != "" {
		logger.Warn("partial scan discarded at shutdown", "buffer", partial)
	}
	stats := dispatcher.Stats()
	logger.Info("transactions flushed", "written", stats.Written, "failed", stats.Failed, "dropped", stats.Dropped)
	return err
}

// reportDetached records a startup failure when the daemon has no terminal.
func reportDetached(err error) {
	if l, lerr := logging.New(&logging.Config{
		Level:     logging.LevelError,
		Output:    "file",
		FilePath:  logging.DefaultConfig().FilePath,
		Component: "scanlogd",
	}); lerr == nil {
		l.Error("daemon startup failed", "error", err)
		l.Close()
	}
}
