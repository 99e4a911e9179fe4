// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// ConfigureLoopbackInterface brings the loopback interface up so child
// processes can use local sockets right away.
func ConfigureLoopbackInterface() error {
	link, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("loopback lookup: %w", err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("loopback up: %w", err)
	}

	return nil
}
