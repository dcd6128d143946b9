package main

import (
	"errors"
	"fmt"

	"scanlogd/internal/config"
	"scanlogd/internal/device"
)

// Exit statuses. 64, 74 and 78 follow sysexits.h.
const (
	exitOK         = 0
	exitNoDevice   = 1
	exitPermission = 2
	exitUsage      = 64
	exitIOErr      = 74
	exitConfig     = 78
)

// exitError carries the process status for an error main should report.
// An empty message means the output was already written.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if m := e.message(); m != "" {
		return m
	}
	return fmt.Sprintf("exit code %d", e.code)
}

// message is what main prints before exiting, possibly nothing.
func (e *exitError) message() string {
	if e.msg != "" {
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e *exitError) ExitCode() int { return e.code }

func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: exitUsage, msg: fmt.Sprintf(format, args...)}
}

// classify maps err to an exit status.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	return &exitError{code: exitCodeFor(err), err: err}
}

func exitCodeFor(err error) int {
	var verrs config.ValidationErrors
	var verr *config.ValidationError

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, device.ErrNotFound):
		return exitNoDevice
	case errors.Is(err, device.ErrPermission):
		return exitPermission
	case errors.Is(err, device.ErrReadFailed):
		return exitIOErr
	case errors.As(err, &verrs), errors.As(err, &verr):
		return exitConfig
	default:
		return 1
	}
}
