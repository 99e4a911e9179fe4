// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package boot prepares the system environment the supervisor and its child
// processes rely on: pseudo file systems, /dev symlinks, environment
// variables and the loopback interface.
package boot

import (
	"errors"
	"fmt"
	"log"
	"os"
)

// Symlinks maps link paths to their targets.
type Symlinks map[string]string

// EnvVars maps environment variable names to values.
type EnvVars map[string]string

// Config defines the boot-time system preparation.
type Config struct {
	// MountPoints are the pseudo file systems mounted first.
	MountPoints MountPoints

	// Symlinks are created after the mounts, since they point into them.
	Symlinks Symlinks

	// Env is added to the supervisor's environment.
	Env EnvVars

	// ConfigureLoopback brings the loopback interface up.
	ConfigureLoopback bool
}

// DefaultConfig returns the preparation an init system performs on a fresh
// kernel.
func DefaultConfig() Config {
	return Config{
		MountPoints: EssentialMountPoints(),
		Symlinks: Symlinks{
			"/dev/fd":     "/proc/self/fd/",
			"/dev/stdin":  "/proc/self/fd/0",
			"/dev/stdout": "/proc/self/fd/1",
			"/dev/stderr": "/proc/self/fd/2",
		},
		Env:               EnvVars{},
		ConfigureLoopback: true,
	}
}

// IsPidOne returns true if the running process has PID 1.
func IsPidOne() bool {
	return os.Getpid() == 1
}

// Prepare runs the boot-time preparation in order: mounts, symlinks,
// environment, loopback. Failed optional mounts are logged, not fatal.
func Prepare(cfg Config) error {
	err := MountAll(cfg.MountPoints)

	var optionalErrs *OptionalMountError
	if errors.As(err, &optionalErrs) {
		for _, err := range optionalErrs.Errs {
			log.Println("INFO optional mount failed: ", err.Error())
		}
	} else if err != nil {
		return err
	}

	if err := CreateSymlinks(cfg.Symlinks); err != nil {
		return err
	}

	for key, value := range cfg.Env {
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setenv %s: %w", key, err)
		}
	}

	if cfg.ConfigureLoopback {
		if err := ConfigureLoopbackInterface(); err != nil {
			return err
		}
	}

	return nil
}

// CreateSymlinks creates the given symbolic links. Existing links are left
// alone.
func CreateSymlinks(symlinks Symlinks) error {
	for path, target := range sortedPaths(symlinks) {
		err := os.Symlink(target, path)
		if err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("symlink %s: %w", path, err)
		}
	}

	return nil
}
