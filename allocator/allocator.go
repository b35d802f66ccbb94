// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocator defines the capability set any in-place, fixed-region
// allocator in this module must implement, so a single benchmark driver can
// exercise interchangeable implementations over identical workloads.
package allocator

// Allocator manages a caller-supplied, fixed-size byte region in place.
// Implementations are single-threaded: callers must not invoke Alloc or Free
// concurrently, and must not touch the region while the allocator is live.
type Allocator interface {
	// Alloc reserves at least size bytes and returns the payload's address,
	// a location inside the region supplied at construction, and true. It
	// returns (0, false) if size is zero or the request cannot be satisfied.
	Alloc(size int) (addr uintptr, ok bool)

	// Free releases an address previously returned by Alloc on this same
	// allocator. Freeing zero, an address this allocator does not own, or an
	// address already freed is a safe no-op: it must not mutate state.
	Free(addr uintptr)

	// Name identifies the allocation strategy, e.g. for benchmark reports.
	Name() string

	// UsedBytes is the sum of served sizes of all currently live allocations.
	UsedBytes() int

	// TotalBytes is the size of the region actually under management; it is
	// constant for the allocator's lifetime and may be smaller than the
	// region supplied at construction.
	TotalBytes() int
}
