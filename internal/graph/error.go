// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package graph

import (
	"fmt"
	"strings"
)

// UnresolvedError is returned if an instance declares a dependency that does
// not exist in the sphere.
type UnresolvedError struct {
	// Referrer is the instance declaring the dependency.
	Referrer string

	// Missing is the dependency name that could not be resolved.
	Missing string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf(
		"unresolved dependency: %s depends on %s which is not in the sphere",
		e.Referrer, e.Missing,
	)
}

// CycleError is returned if the graph contains a dependency cycle. Nodes
// holds the complete residue of nodes with unresolved in-degree, in
// declaration order, so the operator can see the whole cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf(
		"dependency cycle involving %s",
		strings.Join(e.Nodes, ", "),
	)
}
