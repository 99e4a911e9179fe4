// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mockable syscall entry points for tests.
var (
	mountFunc  = unix.Mount
	rebootFunc = unix.Reboot
	syncFunc   = unix.Sync
)

// Poweroff syncs file systems and powers the system off. It only returns on
// error.
func Poweroff() error {
	syncFunc()

	if err := rebootFunc(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		return fmt.Errorf("poweroff: %w", err)
	}

	return nil
}

// Reboot syncs file systems and restarts the system. It only returns on
// error.
func Reboot() error {
	syncFunc()

	if err := rebootFunc(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}

	return nil
}
