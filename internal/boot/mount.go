// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"fmt"
	"iter"
	"maps"
	"os"
	"slices"
)

// FSType is a pseudo file system type.
type FSType string

// Pseudo file system types an init system needs.
const (
	FSTypeDevTmp FSType = "devtmpfs"
	FSTypeDevPts FSType = "devpts"
	FSTypeProc   FSType = "proc"
	FSTypeSys    FSType = "sysfs"
	FSTypeTmp    FSType = "tmpfs"
)

const mountPointMode = 0o755

// MountPoint describes one pseudo file system mount.
type MountPoint struct {
	// FSType is the file system type. Required.
	FSType FSType

	// Source is the mount source. Defaults to the type's name.
	Source string

	// Data holds type-specific mount parameters.
	Data string

	// MayFail mounts produce a warning instead of failing boot
	// preparation.
	MayFail bool
}

// MountPoints maps mount paths to their parameters.
type MountPoints map[string]MountPoint

// EssentialMountPoints returns the pseudo file systems the supervisor cannot
// run without, plus the optional ones usual child processes expect.
func EssentialMountPoints() MountPoints {
	return MountPoints{
		"/dev":     {FSType: FSTypeDevTmp},
		"/dev/pts": {FSType: FSTypeDevPts, MayFail: true},
		"/dev/shm": {FSType: FSTypeTmp, MayFail: true},
		"/proc":    {FSType: FSTypeProc},
		"/run":     {FSType: FSTypeTmp},
		"/sys":     {FSType: FSTypeSys},
		"/tmp":     {FSType: FSTypeTmp},
	}
}

// Mount mounts a single pseudo file system, creating the mount point if
// needed.
func Mount(path string, opts MountPoint) error {
	if err := os.MkdirAll(path, mountPointMode); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}

	source := opts.Source
	if source == "" {
		source = string(opts.FSType)
	}

	err := mountFunc(source, path, string(opts.FSType), 0, opts.Data)
	if err != nil {
		return fmt.Errorf("mount %s: %w", path, err)
	}

	return nil
}

// MountAll mounts the given set in lexicographic path order, so parent
// mounts are in place before their children.
//
// If only MayFail mounts failed, an [OptionalMountError] collecting their
// errors is returned.
func MountAll(mountPoints MountPoints) error {
	var optionalErrs []error

	for path, opts := range sortedPaths(mountPoints) {
		if err := Mount(path, opts); err != nil {
			if !opts.MayFail {
				return err
			}

			optionalErrs = append(optionalErrs, err)
		}
	}

	if optionalErrs != nil {
		return &OptionalMountError{Errs: optionalErrs}
	}

	return nil
}

// sortedPaths iterates a path-keyed map in lexicographic order, which puts
// parent paths before their children.
func sortedPaths[V any](byPath map[string]V) iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for _, path := range slices.Sorted(maps.Keys(byPath)) {
			if !yield(path, byPath[path]) {
				return
			}
		}
	}
}
