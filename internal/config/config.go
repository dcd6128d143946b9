// Package config handles configuration loading, validation, and management for scanlogd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scanlogd/internal/logging"
	"scanlogd/internal/transaction"
)

// Version is the current configuration schema version.
const Version = 1

// Read-failure policies.
const (
	ReadFailStop = "fail-stop"
	ReadRetry    = "retry"
)

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Device configuration for the scanner input node.
	Device DeviceConfig `toml:"device" json:"device" yaml:"device"`

	// Transaction configuration for the commit policy and the transaction log.
	Transaction TransactionConfig `toml:"transaction" json:"transaction" yaml:"transaction"`

	// Notify configuration for the completion cue.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Store configuration for the optional SQLite inventory mirror.
	Store StoreConfig `toml:"store" json:"store" yaml:"store"`

	// Sink configuration for the asynchronous record queue.
	Sink SinkConfig `toml:"sink" json:"sink" yaml:"sink"`

	// Logging configuration for the diagnostic log.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// DeviceConfig holds event source configuration.
type DeviceConfig struct {
	// Path is the input device node. The command line argument overrides it.
	Path string `toml:"path" json:"path" yaml:"path"`

	// Grab requests exclusive access so scans do not reach other consumers.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`

	// WaitPollMs is the poll interval while the daemon waits for the device.
	WaitPollMs int `toml:"wait_poll_ms" json:"wait_poll_ms" yaml:"wait_poll_ms"`

	// ReadFailure is "fail-stop" or "retry".
	ReadFailure string `toml:"read_failure" json:"read_failure" yaml:"read_failure"`

	// RetryMax is the number of reopen attempts under the retry policy.
	RetryMax int `toml:"retry_max" json:"retry_max" yaml:"retry_max"`

	// RetryBackoffMs is the initial delay between reopen attempts; it doubles each attempt.
	RetryBackoffMs int `toml:"retry_backoff_ms" json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
}

// TransactionConfig holds commit policy and transaction log configuration.
type TransactionConfig struct {
	// Path is the transaction log file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// StaleAfterSec is the idle time after which the mode reverts to the default.
	StaleAfterSec int `toml:"stale_after_sec" json:"stale_after_sec" yaml:"stale_after_sec"`

	// DefaultDirection is "add" or "take".
	DefaultDirection string `toml:"default_direction" json:"default_direction" yaml:"default_direction"`

	// AddCode and TakeCode are the reserved mode-switch payloads.
	AddCode  string `toml:"add_code" json:"add_code" yaml:"add_code"`
	TakeCode string `toml:"take_code" json:"take_code" yaml:"take_code"`

	// RecordDirection appends ADD/TAKE to each log line.
	RecordDirection bool `toml:"record_direction" json:"record_direction" yaml:"record_direction"`

	// TimestampFormat is a Go time layout.
	TimestampFormat string `toml:"timestamp_format" json:"timestamp_format" yaml:"timestamp_format"`

	// Sync flushes each line to stable storage before the next.
	Sync bool `toml:"sync" json:"sync" yaml:"sync"`
}

// NotifyConfig holds completion cue configuration.
type NotifyConfig struct {
	// SoundFile is the WAV file to play. Empty disables the cue.
	SoundFile string `toml:"sound_file" json:"sound_file" yaml:"sound_file"`

	// Player is the command used to play SoundFile.
	Player string `toml:"player" json:"player" yaml:"player"`

	// TimeoutMs bounds a single playback.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// StoreConfig holds the optional SQLite mirror configuration.
type StoreConfig struct {
	// SQLitePath enables the inventory mirror when non-empty.
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`
}

// SinkConfig holds the record queue configuration.
type SinkConfig struct {
	// QueueSize is the number of records buffered ahead of the writer.
	QueueSize int `toml:"queue_size" json:"queue_size" yaml:"queue_size"`

	// EnqueueTimeoutMs bounds how long the scan loop waits on a full queue.
	EnqueueTimeoutMs int `toml:"enqueue_timeout_ms" json:"enqueue_timeout_ms" yaml:"enqueue_timeout_ms"`
}

// LoggingConfig holds diagnostic log configuration.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stderr, stdout, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	stock := transaction.DefaultSettings()

	return &Config{
		Version: Version,
		Device: DeviceConfig{
			Grab:           true,
			WaitPollMs:     1000,
			ReadFailure:    ReadFailStop,
			RetryMax:       5,
			RetryBackoffMs: 500,
		},
		Transaction: TransactionConfig{
			Path:             filepath.Join(dir, "transactions.log"),
			StaleAfterSec:    int(stock.StaleAfter / time.Second),
			DefaultDirection: "take",
			AddCode:          stock.AddCode,
			TakeCode:         stock.TakeCode,
			RecordDirection:  true,
			TimestampFormat:  transaction.DefaultTimeLayout,
		},
		Notify: NotifyConfig{
			Player:    "aplay",
			TimeoutMs: 5000,
		},
		Sink: SinkConfig{
			QueueSize:        256,
			EnqueueTimeoutMs: 1000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "file",
			FilePath: filepath.Join(LogDir(), "scanlogd.log"),
		},
	}
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with SCANLOGD_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SCANLOGD_TRANSACTION_PATH"); v != "" {
		c.Transaction.Path = v
	}
	if v := os.Getenv("SCANLOGD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("SCANLOGD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SCANLOGD_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("SCANLOGD_SOUND_FILE"); v != "" {
		c.Notify.SoundFile = v
	}
}

// PolicySettings converts the transaction section to commit policy settings.
func (c *Config) PolicySettings() (transaction.Settings, error) {
	dir, err := transaction.ParseDirection(c.Transaction.DefaultDirection)
	if err != nil {
		return transaction.Settings{}, err
	}
	return transaction.Settings{
		StaleAfter: time.Duration(c.Transaction.StaleAfterSec) * time.Second,
		Default:    dir,
		AddCode:    c.Transaction.AddCode,
		TakeCode:   c.Transaction.TakeCode,
	}, nil
}

// LoggingSettings converts the logging section for the logging package.
func (c *Config) LoggingSettings() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:     level,
		Format:    format,
		Output:    strings.ToLower(c.Logging.Output),
		FilePath:  c.Logging.FilePath,
		Component: "scanlogd",
	}, nil
}

// WaitPoll returns the device wait poll interval.
func (c *Config) WaitPoll() time.Duration {
	return time.Duration(c.Device.WaitPollMs) * time.Millisecond
}

// RetryBackoff returns the initial reopen delay.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Device.RetryBackoffMs) * time.Millisecond
}

// NotifyTimeout returns the playback timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutMs) * time.Millisecond
}

// EnqueueTimeout returns the record queue timeout.
func (c *Config) EnqueueTimeout() time.Duration {
	return time.Duration(c.Sink.EnqueueTimeoutMs) * time.Millisecond
}

// EnsureDirectories creates the directories for the files the daemon writes.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Transaction.Path)}
	if c.Store.SQLitePath != "" {
		dirs = append(dirs, filepath.Dir(c.Store.SQLitePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
