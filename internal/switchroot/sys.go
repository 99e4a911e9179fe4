// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package switchroot

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

const stagingDirMode = 0o755

// Sys is the syscall surface the controller drives. It exists so failures at
// each step of the sequence can be tested without touching a real file
// system.
type Sys interface {
	// IsDir reports whether path exists and is a directory.
	IsDir(path string) (bool, error)

	// Exists reports whether path exists.
	Exists(path string) (bool, error)

	// MkdirAll creates path including missing parents.
	MkdirAll(path string) error

	// Mount mounts the source device at target with the given type.
	Mount(source, target, fsType string) error

	// BindMount binds the source directory at target.
	BindMount(source, target string) error

	// MoveMount atomically moves the mount at source to target.
	MoveMount(source, target string) error

	// Detach lazily unmounts target.
	Detach(target string) error

	// IsNotMounted reports whether the error from Detach means target had
	// no mount.
	IsNotMounted(err error) bool

	// Chdir changes the working directory.
	Chdir(path string) error

	// Chroot changes the process root.
	Chroot(path string) error

	// Exec replaces the process image. It only returns on error.
	Exec(path string, argv, env []string) error
}

// unixSys implements [Sys] with the real syscalls.
type unixSys struct{}

func (unixSys) IsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	return info.IsDir(), nil
}

func (unixSys) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	return true, nil
}

func (unixSys) MkdirAll(path string) error {
	if err := os.MkdirAll(path, stagingDirMode); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}

	return nil
}

func (unixSys) Mount(source, target, fsType string) error {
	if err := unix.Mount(source, target, fsType, 0, ""); err != nil {
		return fmt.Errorf("mount %s at %s: %w", source, target, err)
	}

	return nil
}

func (unixSys) BindMount(source, target string) error {
	err := unix.Mount(source, target, "", unix.MS_BIND, "")
	if err != nil {
		return fmt.Errorf("bind %s at %s: %w", source, target, err)
	}

	return nil
}

func (unixSys) MoveMount(source, target string) error {
	err := unix.Mount(source, target, "", unix.MS_MOVE, "")
	if err != nil {
		return fmt.Errorf("move %s to %s: %w", source, target, err)
	}

	return nil
}

func (unixSys) Detach(target string) error {
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount %s: %w", target, err)
	}

	return nil
}

func (unixSys) IsNotMounted(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOENT)
}

func (unixSys) Chdir(path string) error {
	if err := unix.Chdir(path); err != nil {
		return fmt.Errorf("chdir %s: %w", path, err)
	}

	return nil
}

func (unixSys) Chroot(path string) error {
	if err := unix.Chroot(path); err != nil {
		return fmt.Errorf("chroot %s: %w", path, err)
	}

	return nil
}

func (unixSys) Exec(path string, argv, env []string) error {
	if err := unix.Exec(path, argv, env); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}

	return nil
}
