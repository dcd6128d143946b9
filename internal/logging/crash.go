package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"time"
)

// CrashReport represents information about a crash.
type CrashReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumGoroutine int               `json:"num_goroutine"`
	Component    string            `json:"component,omitempty"`
	Operation    string            `json:"operation"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Module       string            `json:"module,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// PanicError is returned by a guarded function that panicked.
type PanicError struct {
	Operation string
	Value     any
	Report    string // crash report path, empty if it could not be written
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Operation, e.Value)
}

// CrashDir returns where crash reports are written: a crashes directory
// beside the log file, or under the default state directory.
func (l *Logger) CrashDir() string {
	if l.config != nil && l.config.FilePath != "" {
		return filepath.Join(filepath.Dir(l.config.FilePath), "crashes")
	}
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// Guard wraps fn so that a panic is recorded in a crash report and returned
// as a *PanicError. A detached daemon has no stderr to print a trace to.
func (l *Logger) Guard(op string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				report := l.newCrashReport(op, r)
				path, werr := writeCrashReport(l.CrashDir(), report)
				if werr != nil {
					l.Error("write crash report", "error", werr)
				}
				l.Error("panic recovered", "operation", op, "panic", report.PanicValue, "report", path)
				err = &PanicError{Operation: op, Value: r, Report: path}
			}
		}()
		return fn()
	}
}

func (l *Logger) newCrashReport(op string, value any) CrashReport {
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		Operation:    op,
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(debug.Stack()),
	}
	if l.config != nil {
		report.Component = l.config.Component
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		report.Module = bi.Main.Path + "@" + bi.Main.Version
	}
	return report
}

// writeCrashReport writes the crash report to a file.
func writeCrashReport(dir string, report CrashReport) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	filename := fmt.Sprintf("crash-%s-%s.json",
		report.Operation,
		report.Timestamp.Format("20060102-150405.000"))
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports returns the reports in dir, oldest first.
func CrashReports(dir string) ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}

		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.Before(reports[j].Timestamp)
	})
	return reports, nil
}
