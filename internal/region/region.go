// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package region acquires page-aligned backing memory from the OS for the
// allocators to manage in place, and releases it back on shutdown. This is
// the process-entry "thin shell" concern: acquiring the byte region is
// outside the allocator core's scope, but a runnable benchmark still needs
// somewhere to get its memory from.
package region

import "github.com/pkg/errors"

// Acquire maps a zeroed, page-aligned byte slice of size bytes from the OS.
// The returned slice must be passed to Release, exactly once, when no longer
// needed.
func Acquire(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("region: invalid size %d", size)
	}
	b, err := mmap(size)
	if err != nil {
		return nil, errors.Wrap(err, "region: acquire")
	}
	return b, nil
}

// Release returns memory obtained from Acquire to the OS.
func Release(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unmap(b); err != nil {
		return errors.Wrap(err, "region: release")
	}
	return nil
}
