// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package switchroot_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/sphinit/internal/switchroot"
)

var errNotMounted = errors.New("not mounted")

// fakeSys records every call in order and injects failures for specific
// calls, so each step of the sequence can be made to fail individually.
type fakeSys struct {
	calls      []string
	dirs       map[string]bool
	files      map[string]bool
	failOn     map[string]error
	notMounted map[string]bool

	execPath string
	execArgv []string
	execEnv  []string
}

func newFakeSys() *fakeSys {
	return &fakeSys{
		dirs:       make(map[string]bool),
		files:      make(map[string]bool),
		failOn:     make(map[string]error),
		notMounted: make(map[string]bool),
	}
}

func (f *fakeSys) record(call string) error {
	f.calls = append(f.calls, call)

	return f.failOn[call]
}

func (f *fakeSys) IsDir(path string) (bool, error) {
	if err := f.record("isdir " + path); err != nil {
		return false, err
	}

	if f.dirs[path] {
		return true, nil
	}

	if f.files[path] {
		return false, nil
	}

	return false, os.ErrNotExist
}

func (f *fakeSys) Exists(path string) (bool, error) {
	if err := f.record("exists " + path); err != nil {
		return false, err
	}

	return f.files[path] || f.dirs[path], nil
}

func (f *fakeSys) MkdirAll(path string) error {
	if err := f.record("mkdir " + path); err != nil {
		return err
	}

	f.dirs[path] = true

	return nil
}

func (f *fakeSys) Mount(source, target, fsType string) error {
	return f.record(fmt.Sprintf("mount %s %s %s", source, target, fsType))
}

func (f *fakeSys) BindMount(source, target string) error {
	return f.record(fmt.Sprintf("bind %s %s", source, target))
}

func (f *fakeSys) MoveMount(source, target string) error {
	return f.record(fmt.Sprintf("move %s %s", source, target))
}

func (f *fakeSys) Detach(target string) error {
	if err := f.record("detach " + target); err != nil {
		return err
	}

	if f.notMounted[target] {
		return errNotMounted
	}

	return nil
}

func (f *fakeSys) IsNotMounted(err error) bool {
	return errors.Is(err, errNotMounted)
}

func (f *fakeSys) Chdir(path string) error {
	return f.record("chdir " + path)
}

func (f *fakeSys) Chroot(path string) error {
	return f.record("chroot " + path)
}

func (f *fakeSys) Exec(path string, argv, env []string) error {
	if err := f.record("exec " + path); err != nil {
		return err
	}

	f.execPath = path
	f.execArgv = argv
	f.execEnv = env

	return nil
}

func TestControllerRunDirectoryTarget(t *testing.T) {
	sys := newFakeSys()
	sys.dirs["/data/root"] = true
	sys.files["/data/root/sbin/sphinit"] = true
	sys.files["/.sphinit-root/sbin/sphinit"] = true

	// Nothing mounted at the staging path anymore after the root moved.
	sys.notMounted["/.sphinit-root"] = true

	ctrl := switchroot.New(
		switchroot.WithSys(sys),
		switchroot.WithEnv([]string{"SPHERE=system"}),
	)

	err := ctrl.Run("/data/root")
	require.NoError(t, err)

	expectedCalls := []string{
		"isdir /data/root",
		"exists /data/root/sbin/sphinit",
		"mkdir /.sphinit-root",
		"bind /data/root /.sphinit-root",
		"exists /.sphinit-root/sbin/sphinit",
		"mkdir /.sphinit-root/dev",
		"move /dev /.sphinit-root/dev",
		"mkdir /.sphinit-root/proc",
		"move /proc /.sphinit-root/proc",
		"mkdir /.sphinit-root/sys",
		"move /sys /.sphinit-root/sys",
		"mkdir /.sphinit-root/run",
		"move /run /.sphinit-root/run",
		"mkdir /.sphinit-root/tmp",
		"move /tmp /.sphinit-root/tmp",
		"chdir /.sphinit-root",
		"move /.sphinit-root /",
		"chroot .",
		"chdir /",
		"detach /.sphinit-root",
		"exec /sbin/sphinit",
	}
	assert.Equal(t, expectedCalls, sys.calls)

	assert.Equal(t, "/sbin/sphinit", sys.execPath)
	assert.Equal(t, []string{"/sbin/sphinit"}, sys.execArgv)
	assert.Equal(t, []string{"SPHERE=system"}, sys.execEnv)
}

func TestControllerRunBlockDeviceTarget(t *testing.T) {
	sys := newFakeSys()
	sys.files["/dev/vda1"] = true
	sys.files["/.sphinit-root/sbin/sphinit"] = true

	ctrl := switchroot.New(
		switchroot.WithSys(sys),
		switchroot.WithFSType("xfs"),
	)

	err := ctrl.Run("/dev/vda1")
	require.NoError(t, err)

	assert.Contains(t, sys.calls, "mount /dev/vda1 /.sphinit-root xfs")
	assert.Equal(t, "/sbin/sphinit", sys.execPath)
}

func TestControllerRunValidation(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(sys *fakeSys)
		expectedErr error
	}{
		{
			name:  "target does not exist",
			setup: func(*fakeSys) {},
		},
		{
			name: "directory without supervisor binary",
			setup: func(sys *fakeSys) {
				sys.dirs["/data/root"] = true
			},
			expectedErr: switchroot.ErrNoSupervisor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newFakeSys()
			tt.setup(sys)

			ctrl := switchroot.New(switchroot.WithSys(sys))

			err := ctrl.Run("/data/root")

			var validationErr *switchroot.ValidationError

			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "/data/root", validationErr.Target)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			}

			assert.NotErrorIs(t, err, switchroot.ErrFatal)

			// A rejected target leaves the system untouched.
			assert.NotContains(t, sys.calls, "mkdir /.sphinit-root")
		})
	}
}

func TestControllerRunMissingSupervisorAfterMount(t *testing.T) {
	sys := newFakeSys()
	sys.files["/dev/vda1"] = true

	ctrl := switchroot.New(switchroot.WithSys(sys))

	err := ctrl.Run("/dev/vda1")

	var stepErr *switchroot.StepError

	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, switchroot.StepMountTarget, stepErr.Step)
	assert.ErrorIs(t, err, switchroot.ErrNoSupervisor)
	assert.NotErrorIs(t, err, switchroot.ErrFatal)

	// The staging mount is undone during a clean abort.
	assert.Equal(t, "detach /.sphinit-root", sys.calls[len(sys.calls)-1])
}

func TestControllerRunPseudoFilesystemFailure(t *testing.T) {
	sys := newFakeSys()
	sys.dirs["/data/root"] = true
	sys.files["/data/root/sbin/sphinit"] = true
	sys.files["/.sphinit-root/sbin/sphinit"] = true
	sys.failOn["move /sys /.sphinit-root/sys"] = errors.New("device busy")

	ctrl := switchroot.New(switchroot.WithSys(sys))

	err := ctrl.Run("/data/root")

	var stepErr *switchroot.StepError

	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, switchroot.StepPreparePseudoFilesystems, stepErr.Step)
	assert.NotErrorIs(t, err, switchroot.ErrFatal)

	// Already moved mounts were restored in reverse order before the
	// staging mount was detached.
	tail := sys.calls[len(sys.calls)-3:]
	expectedTail := []string{
		"move /.sphinit-root/proc /proc",
		"move /.sphinit-root/dev /dev",
		"detach /.sphinit-root",
	}
	assert.Equal(t, expectedTail, tail)

	// The root never changed.
	assert.NotContains(t, sys.calls, "chroot .")
}

func TestControllerRunFatalFailures(t *testing.T) {
	tests := []struct {
		name         string
		failCall     string
		expectedStep switchroot.Step
	}{
		{
			name:         "chdir to staging",
			failCall:     "chdir /.sphinit-root",
			expectedStep: switchroot.StepChangeRoot,
		},
		{
			name:         "move root",
			failCall:     "move /.sphinit-root /",
			expectedStep: switchroot.StepChangeRoot,
		},
		{
			name:         "chroot",
			failCall:     "chroot .",
			expectedStep: switchroot.StepChangeRoot,
		},
		{
			name:         "unmount old root",
			failCall:     "detach /.sphinit-root",
			expectedStep: switchroot.StepUnmountOld,
		},
		{
			name:         "exec supervisor",
			failCall:     "exec /sbin/sphinit",
			expectedStep: switchroot.StepReexecSupervisor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newFakeSys()
			sys.dirs["/data/root"] = true
			sys.files["/data/root/sbin/sphinit"] = true
			sys.files["/.sphinit-root/sbin/sphinit"] = true
			sys.failOn[tt.failCall] = errors.New("injected")

			ctrl := switchroot.New(switchroot.WithSys(sys))

			err := ctrl.Run("/data/root")

			var stepErr *switchroot.StepError

			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.expectedStep, stepErr.Step)
			assert.ErrorIs(t, err, switchroot.ErrFatal)
		})
	}
}

func TestStepIrreversible(t *testing.T) {
	assert.False(t, switchroot.StepValidateTarget.Irreversible())
	assert.False(t, switchroot.StepMountTarget.Irreversible())
	assert.False(t, switchroot.StepPreparePseudoFilesystems.Irreversible())
	assert.True(t, switchroot.StepChangeRoot.Irreversible())
	assert.True(t, switchroot.StepUnmountOld.Irreversible())
	assert.True(t, switchroot.StepReexecSupervisor.Irreversible())
}
