// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDefinition is returned if a sphere references a service
	// definition that does not exist.
	ErrUnknownDefinition = errors.New("unknown service definition")

	// ErrDuplicateInstance is returned if a sphere instantiates the same
	// definition more than once.
	ErrDuplicateInstance = errors.New("duplicate instance in sphere")

	// ErrEmptyCommand is returned if a definition's command resolves to an
	// empty argv.
	ErrEmptyCommand = errors.New("empty command")
)

// ArgumentError is returned if a required argument has neither a binding nor
// a default value.
type ArgumentError struct {
	Definition string
	Argument   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf(
		"service %s: required argument %q has no binding",
		e.Definition, e.Argument,
	)
}

// ResolveError wraps an error that occurred resolving a single definition.
type ResolveError struct {
	Definition string
	Err        error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("service %s: %v", e.Definition, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
