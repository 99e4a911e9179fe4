// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSphere is returned for operations on a sphere name that was
	// not loaded.
	ErrUnknownSphere = errors.New("unknown sphere")

	// ErrSphereActive is returned for a start of a sphere whose records are
	// still live from an earlier start.
	ErrSphereActive = errors.New("sphere already active")

	// ErrStopped is returned for operations issued after the control loop
	// terminated.
	ErrStopped = errors.New("supervisor stopped")
)

// SpawnError is the per-instance error for an exec-level start failure.
type SpawnError struct {
	Instance string
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Instance, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// DependencyError is the per-instance error for an instance skipped because
// one or more of its dependencies did not reach or left the running state.
type DependencyError struct {
	Instance     string
	Dependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf(
		"%s skipped: dependencies not satisfied: %s",
		e.Instance, strings.Join(e.Dependencies, ", "),
	)
}
