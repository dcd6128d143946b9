//go:build !windows

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// daemonEnv marks the re-executed background process.
const daemonEnv = "SCANLOGD_DAEMON"

func isDaemonChild() bool {
	return os.Getenv(daemonEnv) == "1"
}

// getDaemonSysProcAttr returns the SysProcAttr for detaching a daemon process on Unix-like systems.
func getDaemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}

// startDaemon re-executes the binary with args in a new session and returns
// once the child has started.
func startDaemon(args []string, stdout io.Writer) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = getDaemonSysProcAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Fprintf(stdout, "scanlogd running in background (pid %d)\n", cmd.Process.Pid)
	return cmd.Process.Release()
}
