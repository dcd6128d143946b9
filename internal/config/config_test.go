package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scanlogd/internal/logging"
	"scanlogd/internal/transaction"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.Transaction.StaleAfterSec != 600 {
		t.Errorf("expected stale_after_sec 600, got %d", cfg.Transaction.StaleAfterSec)
	}
	if cfg.Transaction.DefaultDirection != "take" {
		t.Errorf("expected default direction take, got %s", cfg.Transaction.DefaultDirection)
	}
	if cfg.Device.ReadFailure != ReadFailStop {
		t.Errorf("expected fail-stop, got %s", cfg.Device.ReadFailure)
	}
	if !strings.HasSuffix(cfg.Transaction.Path, filepath.Join("scanlogd", "transactions.log")) {
		t.Errorf("unexpected transaction path %s", cfg.Transaction.Path)
	}
	if cfg.Store.SQLitePath != "" {
		t.Errorf("sqlite mirror should be disabled by default")
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("SCANLOGD_DATA_DIR", "/srv/inventory")
	if got := DataDir(); got != "/srv/inventory" {
		t.Errorf("DataDir() = %s", got)
	}
	if got := DefaultConfig().Transaction.Path; got != "/srv/inventory/transactions.log" {
		t.Errorf("transaction path = %s", got)
	}
}

func TestConfigPathFindsExistingFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got := ConfigPath(); got != filepath.Join(dir, "scanlogd", "config.toml") {
		t.Errorf("ConfigPath() = %s", got)
	}

	yamlPath := filepath.Join(dir, "scanlogd", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(yamlPath), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := ConfigPath(); got != yamlPath {
		t.Errorf("ConfigPath() = %s, want %s", got, yamlPath)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transaction.StaleAfterSec != 600 {
		t.Errorf("expected defaults, got stale_after_sec %d", cfg.Transaction.StaleAfterSec)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
version = 1

[device]
read_failure = "retry"
retry_max = 3

[transaction]
path = "/var/lib/scanlogd/tx.log"
stale_after_sec = 120
default_direction = "add"
record_direction = false

[logging]
level = "debug"
output = "stderr"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Device.ReadFailure != ReadRetry || cfg.Device.RetryMax != 3 {
		t.Errorf("device section not applied: %+v", cfg.Device)
	}
	if cfg.Transaction.Path != "/var/lib/scanlogd/tx.log" {
		t.Errorf("unexpected path %s", cfg.Transaction.Path)
	}
	if cfg.Transaction.RecordDirection {
		t.Error("record_direction should be false")
	}
	if cfg.Transaction.AddCode != transaction.DefaultAddCode {
		t.Errorf("unset keys should keep defaults, got add_code %s", cfg.Transaction.AddCode)
	}
	if !cfg.Device.Grab {
		t.Error("unset grab should keep default true")
	}

	settings, err := cfg.PolicySettings()
	if err != nil {
		t.Fatalf("PolicySettings: %v", err)
	}
	if settings.StaleAfter != 2*time.Minute || settings.Default != transaction.Add {
		t.Errorf("unexpected settings %+v", settings)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
version: 1
transaction:
  take_code: "200000000001"
  add_code: "200000000002"
notify:
  player: paplay
store:
  sqlite_path: /tmp/inventory.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transaction.TakeCode != "200000000001" || cfg.Transaction.AddCode != "200000000002" {
		t.Errorf("codes not applied: %+v", cfg.Transaction)
	}
	if cfg.Notify.Player != "paplay" {
		t.Errorf("unexpected player %s", cfg.Notify.Player)
	}
	if cfg.Store.SQLitePath != "/tmp/inventory.db" {
		t.Errorf("unexpected sqlite path %s", cfg.Store.SQLitePath)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"version": 1, "sink": {"queue_size": 16}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sink.QueueSize != 16 {
		t.Errorf("expected queue_size 16, got %d", cfg.Sink.QueueSize)
	}
}

func TestLoadUnknownTOMLKey(t *testing.T) {
	path := writeConfig(t, "config.toml", "[device]\ngrabby = true\n")

	_, err := Load(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "device.grabby" {
		t.Errorf("unexpected field %s", verr.Field)
	}
}

func TestLoadUnknownKeyAllFormats(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"config.json", `{"device": {"grabby": true}}`},
		{"config.yaml", "device:\n  grabby: true\n"},
		{"config.yml", "sink:\n  queue: 4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.name, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected unknown key to be rejected")
			}
			if !strings.Contains(err.Error(), "grabby") && !strings.Contains(err.Error(), "queue") {
				t.Errorf("error does not name the key: %v", err)
			}
		})
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sink.QueueSize != DefaultConfig().Sink.QueueSize {
		t.Errorf("expected defaults, got queue_size %d", cfg.Sink.QueueSize)
	}
}

func TestLoadMissingSoundFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "beep.wav")
	path := writeConfig(t, "config.toml", "[notify]\nsound_file = \""+missing+"\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("a missing sound file must not stop the daemon: %v", err)
	}
	if cfg.Notify.SoundFile != missing {
		t.Errorf("unexpected sound file %s", cfg.Notify.SoundFile)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "config.toml", "[device\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestValidateSchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Config)
		field string
	}{
		{"read failure", func(c *Config) { c.Device.ReadFailure = "sometimes" }, "device.read_failure"},
		{"short add code", func(c *Config) { c.Transaction.AddCode = "1234" }, "transaction.add_code"},
		{"long take code", func(c *Config) { c.Transaction.TakeCode = "1234567890123" }, "transaction.take_code"},
		{"stale interval", func(c *Config) { c.Transaction.StaleAfterSec = 0 }, "transaction.stale_after_sec"},
		{"direction", func(c *Config) { c.Transaction.DefaultDirection = "sideways" }, "transaction.default_direction"},
		{"queue size", func(c *Config) { c.Sink.QueueSize = 0 }, "sink.queue_size"},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"poll", func(c *Config) { c.Device.WaitPollMs = 1 }, "device.wait_poll_ms"},
		{"retry max", func(c *Config) { c.Device.RetryMax = 101 }, "device.retry_max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(cfg)

			err := cfg.Validate()
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			found := false
			for _, v := range verrs {
				if v.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestValidateSemantic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transaction.TakeCode = cfg.Transaction.AddCode
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Errorf("expected duplicate code error, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Notify.SoundFile = "/tmp/beep.wav"
	cfg.Notify.Player = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "notify.player") {
		t.Errorf("expected player error, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Logging.FilePath = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "logging.file_path") {
		t.Errorf("expected log path error, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Version = Version + 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected version error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCANLOGD_TRANSACTION_PATH", "/data/tx.log")
	t.Setenv("SCANLOGD_LOG_PATH", "/data/diag.log")
	t.Setenv("SCANLOGD_LOG_LEVEL", "debug")
	t.Setenv("SCANLOGD_SQLITE_PATH", "/data/inv.db")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Transaction.Path != "/data/tx.log" {
		t.Errorf("transaction path %s", cfg.Transaction.Path)
	}
	if cfg.Logging.FilePath != "/data/diag.log" {
		t.Errorf("log path %s", cfg.Logging.FilePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level %s", cfg.Logging.Level)
	}
	if cfg.Store.SQLitePath != "/data/inv.db" {
		t.Errorf("sqlite path %s", cfg.Store.SQLitePath)
	}
}

func TestLoggingSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "Both"

	lc, err := cfg.LoggingSettings()
	if err != nil {
		t.Fatalf("LoggingSettings: %v", err)
	}
	if lc.Level != logging.LevelWarn || lc.Format != logging.FormatJSON || lc.Output != "both" {
		t.Errorf("unexpected logging config %+v", lc)
	}
}

func TestSaveAndReload(t *testing.T) {
	for _, name := range []string{"config.toml", "config.yaml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			cfg := DefaultConfig()
			cfg.Transaction.StaleAfterSec = 42
			cfg.Device.Path = "/dev/input/event7"

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.Transaction.StaleAfterSec != 42 || loaded.Device.Path != "/dev/input/event7" {
				t.Errorf("values lost: %+v", loaded)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Transaction.Path = filepath.Join(dir, "a", "tx.log")
	cfg.Store.SQLitePath = filepath.Join(dir, "b", "inv.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, sub := range []string{"a", "b"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", sub)
		}
	}
}
