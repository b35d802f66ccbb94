// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buddy

import (
	"math"
	"testing"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegion(t *testing.T, size int) []byte {
	t.Helper()
	return make([]byte, size)
}

// TestMonotonicFill is scenario 1 of spec §8: alloc(64) repeatedly until
// null. Every served size must be 128 (64 payload + 32-byte header rounds
// the block up to the 128-byte level), used_bytes must grow by exactly
// that much per success, and never exceed total_bytes.
func TestMonotonicFill(t *testing.T) {
	mem := newRegion(t, 32<<20)
	a := New(mem)

	seen := map[uintptr]bool{}
	var last int
	for {
		addr, ok := a.Alloc(64)
		if !ok {
			break
		}
		require.False(t, seen[addr], "duplicate address %d", addr)
		seen[addr] = true
		assert.Equal(t, last+128, a.UsedBytes())
		last = a.UsedBytes()
		assert.LessOrEqual(t, a.UsedBytes(), a.TotalBytes())
	}
	assert.Greater(t, last, 0)
	assert.Zero(t, last%128)
}

// TestSplitMergeRoundTrip is scenario 2: a region split into two blocks and
// freed must fully coalesce back to a single max-level free block (B-P2).
func TestSplitMergeRoundTrip(t *testing.T) {
	mem := newRegion(t, 1<<20)
	a := New(mem)

	addrA, ok := a.Alloc(40)
	require.True(t, ok)
	addrB, ok := a.Alloc(40)
	require.True(t, ok)

	a.Free(addrA)
	a.Free(addrB)

	assert.Zero(t, a.UsedBytes())
	root := a.freeLists[a.maxLevel]
	require.NotNil(t, root, "no block at max level after full drain")
	assert.Equal(t, a.maxLevel, root.level)
	for lvl := uintptr(0); lvl < a.maxLevel; lvl++ {
		assert.Nil(t, a.freeLists[lvl], "level %d not empty after full drain", lvl)
	}
}

// TestServedSize checks B-P1: served size equals MIN_BLOCK << ceil_log2 of
// the header-inclusive request, capped at the managed region.
func TestServedSize(t *testing.T) {
	mem := newRegion(t, 1<<20)
	a := New(mem)

	for _, size := range []uintptr{1, 31, 1000, 4096} {
		level := a.sizeToLevel(int(size))
		want := uintptr(minBlockSize)
		l := uintptr(0)
		for want < size+headerSize && l < a.maxLevel {
			want <<= 1
			l++
		}
		assert.Equal(t, l, level)
	}
}

// TestInvalidFree is scenario 6: null, foreign, and repeated frees must not
// perturb used_bytes (P7).
func TestInvalidFree(t *testing.T) {
	mem := newRegion(t, 1<<20)
	a := New(mem)

	other := New(newRegion(t, 1<<16))

	a.Free(0)
	otherAddr, ok := other.Alloc(16)
	require.True(t, ok)
	a.Free(otherAddr) // foreign address, out of a's range

	addr, ok := a.Alloc(16)
	require.True(t, ok)
	used := a.UsedBytes()
	require.NotZero(t, used)

	a.Free(addr)
	assert.Zero(t, a.UsedBytes())

	a.Free(addr) // double free
	assert.Zero(t, a.UsedBytes())
}

// TestNoCoexistingFreeBuddies is B-P3: after driving a mixed workload to
// completion, no two free buddies at the same level ever coexist -- checked
// incrementally after every free during the drain.
func TestNoCoexistingFreeBuddies(t *testing.T) {
	mem := newRegion(t, 4<<20)
	a := New(mem)

	rng, err := mathutil.NewFC32(16, 4096, true)
	require.NoError(t, err)
	rng.Seed(7)

	var addrs []uintptr
	for i := 0; i < 2000; i++ {
		if addr, ok := a.Alloc(rng.Next()); ok {
			addrs = append(addrs, addr)
		}
	}

	for _, addr := range addrs {
		a.Free(addr)
		for lvl := uintptr(0); lvl < a.maxLevel; lvl++ {
			for h := a.freeLists[lvl]; h != nil; h = h.next {
				buddy := a.getBuddy(h)
				if buddy == nil {
					continue
				}
				if buddy.level == h.level {
					assert.False(t, buddy.isFree, "coexisting free buddies at level %d", lvl)
				}
			}
		}
	}
	assert.Zero(t, a.UsedBytes())
}

// TestFillVerifyShuffleFree mirrors the teacher's fill/verify/shuffle/free
// cycle in all_test.go, adapted to a fixed-size managed region instead of
// mmap'd OS pages.
func TestFillVerifyShuffleFree(t *testing.T) {
	const quota = 1 << 20
	mem := newRegion(t, 4<<20)
	a := New(mem)

	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	require.NoError(t, err)
	rng.Seed(42)

	var addrs []uintptr
	rem := quota
	for rem > 0 {
		size := rng.Next()%512 + 1
		rem -= size
		addr, ok := a.Alloc(size)
		require.True(t, ok)
		addrs = append(addrs, addr)
	}

	for i := range addrs {
		j := rng.Next() % len(addrs)
		addrs[i], addrs[j] = addrs[j], addrs[i]
	}

	for _, addr := range addrs {
		a.Free(addr)
	}
	assert.Zero(t, a.UsedBytes())
}

func TestZeroSizeReturnsFalse(t *testing.T) {
	a := New(newRegion(t, 1<<16))
	_, ok := a.Alloc(0)
	assert.False(t, ok)
}

func TestTooSmallRegionIsEmptyButValid(t *testing.T) {
	a := New(make([]byte, 4))
	assert.Equal(t, 0, a.TotalBytes())
	_, ok := a.Alloc(1)
	assert.False(t, ok)
	a.Free(1) // must not panic
	assert.Equal(t, "Buddy Allocator", a.Name())
}

func TestOversizeRequestFails(t *testing.T) {
	a := New(newRegion(t, 1<<16))
	_, ok := a.Alloc(a.TotalBytes() * 2)
	assert.False(t, ok)
}

// TestNonPowerOfTwoRegionRoundsDown guards against managing bytes past the
// end of mem: a region size that isn't an exact MIN_BLOCK<<level must have
// its rounded-down prefix as TotalBytes, never rounded up past len(mem).
func TestNonPowerOfTwoRegionRoundsDown(t *testing.T) {
	for _, size := range []int{33, 40, 65, 100, 1000, 4097} {
		mem := newRegion(t, size)
		a := New(mem)
		assert.LessOrEqual(t, a.TotalBytes(), size, "region size %d", size)

		for {
			if _, ok := a.Alloc(1); !ok {
				break
			}
		}
		assert.LessOrEqual(t, a.UsedBytes(), a.TotalBytes())
	}
}
