// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"errors"
	"fmt"
)

// OptionalMountError collects the failures of mount points marked MayFail.
// Boot preparation continues past them; the caller decides how loudly to
// report the misses.
type OptionalMountError struct {
	Errs []error
}

func (e *OptionalMountError) Error() string {
	return fmt.Sprintf(
		"%d optional mounts failed: %v",
		len(e.Errs), errors.Join(e.Errs...),
	)
}

func (e *OptionalMountError) Unwrap() []error {
	return e.Errs
}
