// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bootfs

import (
	"errors"
)

var (
	// ErrNotAbsolute is returned for archive paths that are not absolute.
	ErrNotAbsolute = errors.New("archive path must be absolute")

	// ErrDuplicatePath is returned if a path is added twice.
	ErrDuplicatePath = errors.New("duplicate archive path")

	// ErrNotRegular is returned if a file entry's source is not a regular
	// file.
	ErrNotRegular = errors.New("not a regular file")
)
