// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package switchroot

import (
	"errors"
	"fmt"
)

var (
	// ErrFatal marks failures at or past the point of no return. There is
	// no safe continuation once the root has changed; callers must
	// terminate (panic or reboot), never retry.
	ErrFatal = errors.New("switch-root failed past the point of no return")

	// ErrNoSupervisor is returned if the new root does not contain the
	// supervisor binary at the expected path.
	ErrNoSupervisor = errors.New("no supervisor binary in new root")
)

// ValidationError is returned if the target is rejected before anything was
// mounted. The system is unchanged.
type ValidationError struct {
	Target string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("switch-root target %s: %v", e.Target, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StepError is a failure in one step of the switch-root sequence. Whether it
// is recoverable depends on the step: errors.Is reports [ErrFatal] for
// irreversible steps.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("switch-root %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return target == ErrFatal && e.Step.Irreversible()
}
