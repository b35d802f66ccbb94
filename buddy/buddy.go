// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buddy implements a binary buddy allocator over a caller-supplied
// byte region. The region is managed as a binary tree of power-of-two
// blocks, each carrying an in-band header; one free list is kept per level.
package buddy

import "unsafe"

const (
	minBlockSize = 32 // bytes; also the header size on a 64-bit build.
	maxLevels    = 32
)

var headerSize = uintptr(unsafe.Sizeof(header{}))

// header sits in-band at the start of every block, whether free or
// allocated. Payload begins immediately after it.
type header struct {
	next, prev *header
	level      uintptr
	isFree     bool
}

// Allocator is a buddy allocator over a fixed region supplied at
// construction. Its zero value is not usable; use New.
type Allocator struct {
	mem       []byte
	base      uintptr
	totalSize uintptr
	maxLevel  uintptr
	usedBytes int
	freeLists [maxLevels]*header
}

// New constructs a buddy allocator managing mem in place. If mem is smaller
// than the minimum block size, the returned Allocator is valid but permanently
// empty: Alloc always fails and TotalBytes reports 0.
func New(mem []byte) *Allocator {
	a := &Allocator{mem: mem}
	if len(mem) < minBlockSize {
		return a
	}

	a.base = uintptr(unsafe.Pointer(&mem[0]))
	level := uintptr(0)
	size := uintptr(minBlockSize)
	for size*2 <= uintptr(len(mem)) && level < maxLevels-1 {
		size <<= 1
		level++
	}
	a.maxLevel = level
	a.totalSize = size

	root := a.headerAt(0)
	*root = header{level: level, isFree: true}
	a.freeLists[level] = root
	return a
}

func (a *Allocator) headerAt(offset uintptr) *header {
	return (*header)(unsafe.Pointer(a.base + offset))
}

func (a *Allocator) offsetOf(h *header) uintptr {
	return uintptr(unsafe.Pointer(h)) - a.base
}

func levelSize(level uintptr) uintptr { return minBlockSize << level }

// sizeToLevel returns the smallest level whose block can hold size bytes of
// payload plus one header, or maxLevel+1 if no managed level is large enough.
func (a *Allocator) sizeToLevel(size int) uintptr {
	need := uintptr(size) + headerSize
	level := uintptr(0)
	blockSize := uintptr(minBlockSize)
	for blockSize < need && level <= a.maxLevel {
		blockSize <<= 1
		level++
	}
	return level
}

func (a *Allocator) removeFromFreeList(h *header) {
	if h == nil {
		return
	}
	if h.level > a.maxLevel {
		return
	}
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		a.freeLists[h.level] = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	h.next = nil
	h.prev = nil
}

func (a *Allocator) addToFreeList(h *header) {
	if h == nil {
		return
	}
	if h.level > a.maxLevel {
		return
	}
	h.next = a.freeLists[h.level]
	h.prev = nil
	if h.next != nil {
		h.next.prev = h
	}
	a.freeLists[h.level] = h
	h.isFree = true
}

// splitBlock halves h repeatedly until it reaches target, pushing the
// upper-half buddy created at each step onto its own free list.
func (a *Allocator) splitBlock(h *header, target uintptr) {
	for h.level > target {
		a.removeFromFreeList(h)
		h.level--

		newSize := levelSize(h.level)
		buddyOffset := a.offsetOf(h) + newSize
		if buddyOffset+headerSize > a.totalSize {
			h.level++
			a.addToFreeList(h)
			return
		}

		buddy := a.headerAt(buddyOffset)
		*buddy = header{level: h.level, isFree: true}

		a.addToFreeList(h)
		a.addToFreeList(buddy)
	}
}

// getBuddy returns h's buddy at its current level, or nil if the buddy's
// address or extent would fall outside the managed region.
func (a *Allocator) getBuddy(h *header) *header {
	size := levelSize(h.level)
	offset := a.offsetOf(h)
	buddyOffset := offset ^ size
	if buddyOffset >= a.totalSize || buddyOffset+size > a.totalSize {
		return nil
	}
	return a.headerAt(buddyOffset)
}

// mergeBlock coalesces h with its buddy to fixpoint: while the buddy is free,
// at the same level, and in range, the pair merges into one block one level
// up, keeping the lower address.
func (a *Allocator) mergeBlock(h *header) {
	for h.level < a.maxLevel {
		buddy := a.getBuddy(h)
		if buddy == nil {
			break
		}
		if !buddy.isFree || buddy.level != h.level {
			break
		}

		a.removeFromFreeList(buddy)
		a.removeFromFreeList(h)

		if uintptr(unsafe.Pointer(buddy)) < uintptr(unsafe.Pointer(h)) {
			h = buddy
		}
		h.level++
		a.addToFreeList(h)
	}
}

// Alloc reserves at least size bytes and returns the payload's absolute
// address, which lies inside the byte slice passed to New.
func (a *Allocator) Alloc(size int) (uintptr, bool) {
	if size <= 0 || a.base == 0 {
		return 0, false
	}

	level := a.sizeToLevel(size)
	if level > a.maxLevel {
		return 0, false
	}

	search := level
	for search <= a.maxLevel && a.freeLists[search] == nil {
		search++
	}
	if search > a.maxLevel {
		return 0, false
	}

	h := a.freeLists[search]
	if search > level {
		a.splitBlock(h, level)
		h = a.freeLists[level]
		if h == nil {
			return 0, false
		}
	}

	a.removeFromFreeList(h)
	h.isFree = false
	a.usedBytes += int(levelSize(level))
	return uintptr(unsafe.Pointer(h)) + headerSize, true
}

// Free releases addr, an address previously returned by Alloc. A nil
// address, one outside the managed region, or one already free is a silent
// no-op -- it never mutates state.
func (a *Allocator) Free(addr uintptr) {
	if a.base == 0 || addr <= a.base || addr >= a.base+a.totalSize {
		return
	}

	blockAddr := addr - headerSize
	if blockAddr < a.base {
		return
	}

	h := (*header)(unsafe.Pointer(blockAddr))
	if h.level > a.maxLevel || h.isFree {
		return
	}

	a.usedBytes -= int(levelSize(h.level))
	h.isFree = true
	a.addToFreeList(h)
	a.mergeBlock(h)
}

func (a *Allocator) Name() string    { return "Buddy Allocator" }
func (a *Allocator) UsedBytes() int  { return a.usedBytes }
func (a *Allocator) TotalBytes() int { return int(a.totalSize) }
