// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"fmt"
	"syscall"
	"time"

	"github.com/aibor/sphinit/internal/service"
)

// State is the lifecycle state of a process record.
type State uint8

// Process record states. Pending is the initial state; Exited, Failed and
// Skipped are terminal for a start cycle.
const (
	StatePending  State = iota // created, not yet scheduled
	StateStarting              // dependencies satisfied, spawn in progress
	StateRunning               // spawned successfully
	StateExited                // terminated, exit status recorded
	StateFailed                // spawn failed
	StateSkipped               // not attempted due to unsatisfied dependency
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Terminal returns true if the state ends a start cycle.
func (s State) Terminal() bool {
	return s == StateExited || s == StateFailed || s == StateSkipped
}

// ExitStatus records how a child process terminated.
type ExitStatus struct {
	WaitStatus syscall.WaitStatus

	// Valid is false until the process has been reaped.
	Valid bool
}

// Exited returns true if the process terminated normally.
func (e ExitStatus) Exited() bool {
	return e.Valid && e.WaitStatus.Exited()
}

// ExitCode returns the exit code, or -1 if the process did not terminate
// normally.
func (e ExitStatus) ExitCode() int {
	if !e.Exited() {
		return -1
	}

	return e.WaitStatus.ExitStatus()
}

// Signaled returns true if the process was terminated by a signal.
func (e ExitStatus) Signaled() bool {
	return e.Valid && e.WaitStatus.Signaled()
}

// Record is the supervisor's bookkeeping for one instance. It is owned
// exclusively by the control loop; no other goroutine mutates it.
type Record struct {
	Instance *service.Instance

	State      State
	PID        int
	StartedAt  time.Time
	ExitStatus ExitStatus

	// Err explains Failed and Skipped states.
	Err error
}

// Outcome is the per-instance result of a sphere operation.
type Outcome struct {
	State      State
	ExitStatus ExitStatus

	// Err is set for Failed and Skipped outcomes.
	Err error
}

// OutcomeMap reports the outcome for every instance of a sphere operation.
// Partial startup is an expected, reportable result, not an exception.
type OutcomeMap map[string]Outcome

func (r *Record) outcome() Outcome {
	return Outcome{
		State:      r.State,
		ExitStatus: r.ExitStatus,
		Err:        r.Err,
	}
}
