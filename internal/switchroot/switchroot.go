// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package switchroot implements the one-way transition from the boot file
// system to the permanent root.
//
// The sequence is modeled as an explicit state machine so the point of no
// return is visible in the design: every step before [StepChangeRoot] aborts
// cleanly with the system otherwise unchanged; every failure at or after it
// is fatal by design and must never be retried.
package switchroot

import (
	"fmt"
	"path/filepath"
)

// Step is a state of the switch-root sequence.
type Step uint8

// Switch-root steps in execution order. StepChangeRoot is the point of no
// return.
const (
	StepValidateTarget Step = iota
	StepMountTarget
	StepPreparePseudoFilesystems
	StepChangeRoot
	StepUnmountOld
	StepReexecSupervisor
)

func (s Step) String() string {
	switch s {
	case StepValidateTarget:
		return "validate-target"
	case StepMountTarget:
		return "mount-target"
	case StepPreparePseudoFilesystems:
		return "prepare-pseudo-filesystems"
	case StepChangeRoot:
		return "change-root"
	case StepUnmountOld:
		return "unmount-old"
	case StepReexecSupervisor:
		return "reexec-supervisor"
	default:
		return fmt.Sprintf("Step(%d)", s)
	}
}

// Irreversible returns true for steps at or past the point of no return.
func (s Step) Irreversible() bool {
	return s >= StepChangeRoot
}

// DefaultStagingDir is where the new root is mounted before it replaces the
// current root.
const DefaultStagingDir = "/.sphinit-root"

// DefaultSupervisorPath is the path of the supervisor binary expected inside
// the new root.
const DefaultSupervisorPath = "/sbin/sphinit"

// moveMounts are the pseudo file systems moved into the new root before the
// root changes. Order matters: parents before children.
var moveMounts = []string{"/dev", "/proc", "/sys", "/run", "/tmp"}

// Controller executes the switch-root sequence.
type Controller struct {
	sys            Sys
	stagingDir     string
	supervisorPath string
	fsType         string
	env            []string
}

// Option configures a [Controller].
type Option func(*Controller)

// WithSys replaces the syscall surface. Used by tests to inject failures at
// specific steps.
func WithSys(sys Sys) Option {
	return func(c *Controller) { c.sys = sys }
}

// WithStagingDir sets the mount point for the new root.
func WithStagingDir(dir string) Option {
	return func(c *Controller) { c.stagingDir = dir }
}

// WithSupervisorPath sets the supervisor binary path expected inside the new
// root.
func WithSupervisorPath(path string) Option {
	return func(c *Controller) { c.supervisorPath = path }
}

// WithFSType sets the file system type used to mount a block device target.
func WithFSType(fsType string) Option {
	return func(c *Controller) { c.fsType = fsType }
}

// WithEnv sets the environment passed to the re-executed supervisor. This is
// the complete state contract: the new process starts cold and re-reads its
// configuration from the new root.
func WithEnv(env []string) Option {
	return func(c *Controller) { c.env = env }
}

// New creates a switch-root controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		sys:            unixSys{},
		stagingDir:     DefaultStagingDir,
		supervisorPath: DefaultSupervisorPath,
		fsType:         "ext4",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run executes the switch-root sequence for the given target, a block device
// or an already populated directory.
//
// On success the call never returns: the process image is replaced by the
// supervisor found in the new root. Errors before [StepChangeRoot] leave the
// system unchanged (partial mounts are undone). Errors at or after it
// satisfy errors.Is(err, [ErrFatal]); the caller must treat them as
// terminal.
func (c *Controller) Run(target string) error {
	isDir, err := c.validateTarget(target)
	if err != nil {
		return err
	}

	if err := c.mountTarget(target, isDir); err != nil {
		return err
	}

	if err := c.preparePseudoFilesystems(); err != nil {
		return err
	}

	if err := c.changeRoot(); err != nil {
		return &StepError{Step: StepChangeRoot, Err: err}
	}

	if err := c.unmountOld(); err != nil {
		return &StepError{Step: StepUnmountOld, Err: err}
	}

	argv := []string{c.supervisorPath}
	if err := c.sys.Exec(c.supervisorPath, argv, c.env); err != nil {
		return &StepError{Step: StepReexecSupervisor, Err: err}
	}

	// Exec replaces the process image; reaching this point is impossible.
	return nil
}

// validateTarget confirms the target exists. For directory targets the
// supervisor binary is checked here as well; for block devices the check has
// to wait until the target is mounted.
func (c *Controller) validateTarget(target string) (bool, error) {
	isDir, err := c.sys.IsDir(target)
	if err != nil {
		return false, &ValidationError{Target: target, Err: err}
	}

	if isDir {
		ok, err := c.sys.Exists(filepath.Join(target, c.supervisorPath))
		if err != nil {
			return false, &ValidationError{Target: target, Err: err}
		}

		if !ok {
			return false, &ValidationError{
				Target: target,
				Err: fmt.Errorf(
					"%w: %s", ErrNoSupervisor, c.supervisorPath,
				),
			}
		}
	}

	return isDir, nil
}

// mountTarget mounts the new root at the staging dir. Block device targets
// get their supervisor binary check here, still strictly before the point of
// no return; on failure the staging mount is detached again.
func (c *Controller) mountTarget(target string, isDir bool) error {
	if err := c.sys.MkdirAll(c.stagingDir); err != nil {
		return &StepError{Step: StepMountTarget, Err: err}
	}

	var err error
	if isDir {
		err = c.sys.BindMount(target, c.stagingDir)
	} else {
		err = c.sys.Mount(target, c.stagingDir, c.fsType)
	}

	if err != nil {
		return &StepError{Step: StepMountTarget, Err: err}
	}

	ok, err := c.sys.Exists(filepath.Join(c.stagingDir, c.supervisorPath))
	if err == nil && !ok {
		err = fmt.Errorf("%w: %s", ErrNoSupervisor, c.supervisorPath)
	}

	if err != nil {
		c.abortStagingMount()

		return &StepError{Step: StepMountTarget, Err: err}
	}

	return nil
}

// preparePseudoFilesystems moves the pseudo file system mounts into the new
// root. On failure the already moved mounts are moved back and the staging
// mount is detached, so the old root stays fully usable.
func (c *Controller) preparePseudoFilesystems() error {
	for idx, src := range moveMounts {
		dst := filepath.Join(c.stagingDir, src)

		err := c.sys.MkdirAll(dst)
		if err == nil {
			err = c.sys.MoveMount(src, dst)
		}

		if err != nil {
			// Clean abort: restore what was already moved.
			for jdx := idx - 1; jdx >= 0; jdx-- {
				moved := moveMounts[jdx]
				_ = c.sys.MoveMount(
					filepath.Join(c.stagingDir, moved), moved,
				)
			}

			c.abortStagingMount()

			return &StepError{
				Step: StepPreparePseudoFilesystems,
				Err:  fmt.Errorf("move %s: %w", src, err),
			}
		}
	}

	return nil
}

// changeRoot makes the staging mount the process root. This is the point of
// no return: once the root mount moved, the old root's paths are no longer
// reliably addressable.
func (c *Controller) changeRoot() error {
	if err := c.sys.Chdir(c.stagingDir); err != nil {
		return fmt.Errorf("chdir %s: %w", c.stagingDir, err)
	}

	if err := c.sys.MoveMount(c.stagingDir, "/"); err != nil {
		return fmt.Errorf("move root: %w", err)
	}

	if err := c.sys.Chroot("."); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}

	if err := c.sys.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}

	return nil
}

// unmountOld detaches what is left of the old root's staging path. After the
// root moved there is usually nothing mounted there anymore; that is not an
// error.
func (c *Controller) unmountOld() error {
	err := c.sys.Detach(c.stagingDir)
	if err != nil && !c.sys.IsNotMounted(err) {
		return err
	}

	return nil
}

// abortStagingMount undoes the staging mount during a clean abort. Errors
// are ignored: the mount may be busy, and the system stays on the old root
// either way.
func (c *Controller) abortStagingMount() {
	_ = c.sys.Detach(c.stagingDir)
}
