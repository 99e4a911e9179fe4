// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestIsPidOne(t *testing.T) {
	// Tests never run as the init process.
	assert.False(t, IsPidOne())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, EssentialMountPoints(), cfg.MountPoints)
	assert.Equal(t, "/proc/self/fd/", cfg.Symlinks["/dev/fd"])
	assert.Equal(t, "/proc/self/fd/2", cfg.Symlinks["/dev/stderr"])
	assert.True(t, cfg.ConfigureLoopback)
}

func TestCreateSymlinks(t *testing.T) {
	base := t.TempDir()
	link := filepath.Join(base, "stdin")

	symlinks := Symlinks{link: "/proc/self/fd/0"}

	require.NoError(t, CreateSymlinks(symlinks))

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "/proc/self/fd/0", target)

	// Existing links are left alone.
	require.NoError(t, CreateSymlinks(symlinks))
}

func TestCreateSymlinksFailure(t *testing.T) {
	base := t.TempDir()
	missing := filepath.Join(base, "nope", "link")

	err := CreateSymlinks(Symlinks{missing: "/proc/self/fd/0"})

	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPoweroffAndReboot(t *testing.T) {
	tests := []struct {
		name        string
		fn          func() error
		expectedCmd int
	}{
		{
			name:        "poweroff",
			fn:          Poweroff,
			expectedCmd: unix.LINUX_REBOOT_CMD_POWER_OFF,
		},
		{
			name:        "reboot",
			fn:          Reboot,
			expectedCmd: unix.LINUX_REBOOT_CMD_RESTART,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				synced bool
				gotCmd int
			)

			origSync := syncFunc
			origReboot := rebootFunc

			syncFunc = func() { synced = true }
			rebootFunc = func(cmd int) error {
				gotCmd = cmd

				return nil
			}

			t.Cleanup(func() {
				syncFunc = origSync
				rebootFunc = origReboot
			})

			require.NoError(t, tt.fn())

			// File systems are synced before the system goes down.
			assert.True(t, synced)
			assert.Equal(t, tt.expectedCmd, gotCmd)
		})
	}
}
