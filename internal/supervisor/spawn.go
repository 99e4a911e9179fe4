// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SpawnFunc launches the given argv and returns the PID and a channel that
// receives exactly one [ExitStatus] when the process terminates. The channel
// is closed afterwards.
//
// If the command cannot be started at all, an error is returned and no PID
// or channel is produced.
type SpawnFunc func(argv []string) (int, <-chan ExitStatus, error)

// KillFunc delivers a signal to the process group of the given PID.
type KillFunc func(pid int, sig syscall.Signal) error

// Spawn starts a child process with its own process group, inheriting the
// supervisor's stdout and stderr. No implicit environment is passed beyond
// what the caller's descriptors specify.
func Spawn(argv []string) (int, <-chan ExitStatus, error) {
	if len(argv) == 0 {
		return 0, nil, os.ErrInvalid
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, nil, err
	}

	pid := cmd.Process.Pid
	exited := make(chan ExitStatus, 1)

	go func() {
		defer close(exited)

		err := cmd.Wait()

		var status syscall.WaitStatus

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			status, _ = exitErr.Sys().(syscall.WaitStatus)
		}

		exited <- ExitStatus{WaitStatus: status, Valid: true}
	}()

	return pid, exited, nil
}

// Kill signals the whole process group so self-forked children are reached
// as well.
func Kill(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}

	if err := unix.Kill(-pid, sig); err != nil {
		// The group is gone already.
		if errors.Is(err, unix.ESRCH) {
			return nil
		}

		return err
	}

	return nil
}
