// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mck implements a McKusick–Karels style allocator: the region is
// split into a page descriptor table and a data area of fixed-size pages.
// Small requests are served from per-size-class free lists carved out of
// whole pages; large requests consume a run of contiguous pages headed by
// an in-band large-block header.
package mck

import "unsafe"

const (
	pageSize       = 4096
	minBucketSize  = 16
	numBuckets     = 12
	largeThreshold = pageSize / 2 // 2048

	pageFree  = -1 // descriptor is in the free-page pool
	pageLarge = -2 // descriptor belongs to a large-block run
)

var (
	descSize        = int(unsafe.Sizeof(pageDescriptor{}))
	largeHeaderSize = uintptr(unsafe.Sizeof(largeBlockHeader{}))
)

// pageDescriptor is out-of-band metadata for exactly one data-area page.
type pageDescriptor struct {
	bucketIndex int // pageFree, pageLarge, or 0..numBuckets-1
	allocCount  int
	next, prev  *pageDescriptor
}

// freeBlock is a single next pointer written in-band at the start of a free
// block inside a bucketed page. While allocated, the same bytes are caller
// data.
type freeBlock struct {
	next *freeBlock
}

// largeBlockHeader sits in-band at the start of the first page of a large
// run. sizeBytes is the whole run size, a multiple of pageSize.
type largeBlockHeader struct {
	sizeBytes  uintptr
	next, prev *largeBlockHeader
	isFree     bool
}

// Allocator is a McKusick–Karels allocator over a fixed region supplied at
// construction. Its zero value is not usable; use New.
type Allocator struct {
	mem       []byte
	base      uintptr
	usedBytes int

	dataStart uintptr // absolute address where the data area begins
	pageCount int

	buckets      [numBuckets]*freeBlock
	partialPages [numBuckets]*pageDescriptor
	freePages    *pageDescriptor
	largeBlocks  *largeBlockHeader
}

// roundup rounds n up to the nearest multiple of m. m must be a power of 2.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }

// New constructs a McKusick–Karels allocator managing mem in place. If mem
// cannot hold at least one descriptor and one page, the returned Allocator
// is valid but permanently empty.
func New(mem []byte) *Allocator {
	a := &Allocator{mem: mem}
	if len(mem) == 0 {
		return a
	}

	a.base = uintptr(unsafe.Pointer(&mem[0]))
	maxPages := len(mem) / pageSize
	descSpace := roundup(descSize*maxPages, pageSize)
	if descSpace >= len(mem) {
		return a
	}

	a.dataStart = a.base + uintptr(descSpace)
	a.pageCount = (len(mem) - descSpace) / pageSize
	if a.pageCount == 0 {
		return a
	}

	for i := 0; i < a.pageCount; i++ {
		d := a.descAt(i)
		d.bucketIndex = pageFree
		d.allocCount = 0
		if i+1 < a.pageCount {
			d.next = a.descAt(i + 1)
		} else {
			d.next = nil
		}
		if i > 0 {
			d.prev = a.descAt(i - 1)
		} else {
			d.prev = nil
		}
	}
	a.freePages = a.descAt(0)
	return a
}

func (a *Allocator) descAt(i int) *pageDescriptor {
	return (*pageDescriptor)(unsafe.Pointer(a.base + uintptr(i*descSize)))
}

func (a *Allocator) pageIndexOf(p *pageDescriptor) int {
	return int(uintptr(unsafe.Pointer(p))-a.base) / descSize
}

func bucketToSize(b int) int { return minBucketSize << uint(b) }

func sizeToBucket(size int) int {
	if size < minBucketSize {
		size = minBucketSize
	}
	bucket := 0
	bucketSize := minBucketSize
	for bucketSize < size && bucket < numBuckets-1 {
		bucketSize <<= 1
		bucket++
	}
	return bucket
}

// pageDescriptorFor returns the descriptor covering the data-area address
// addr, or nil if addr does not lie in the data area.
func (a *Allocator) pageDescriptorFor(addr uintptr) *pageDescriptor {
	if addr < a.dataStart {
		return nil
	}
	offset := addr - a.dataStart
	pageIndex := int(offset / pageSize)
	if pageIndex >= a.pageCount {
		return nil
	}
	return a.descAt(pageIndex)
}

// allocatePage pops a descriptor off the free-page pool, dedicates it to
// bucket, and carves it into equal-size free blocks.
func (a *Allocator) allocatePage(bucket int) *pageDescriptor {
	if a.freePages == nil {
		return nil
	}

	page := a.freePages
	a.freePages = page.next
	if a.freePages != nil {
		a.freePages.prev = nil
	}

	page.bucketIndex = bucket
	page.allocCount = 0

	blockSize := bucketToSize(bucket)
	blocksPerPage := pageSize / blockSize
	pageIndex := a.pageIndexOf(page)
	pageStart := a.dataStart + uintptr(pageIndex*pageSize)

	for i := 0; i < blocksPerPage; i++ {
		blk := (*freeBlock)(unsafe.Pointer(pageStart + uintptr(i*blockSize)))
		blk.next = a.buckets[bucket]
		a.buckets[bucket] = blk
	}

	page.next = a.partialPages[bucket]
	page.prev = nil
	if a.partialPages[bucket] != nil {
		a.partialPages[bucket].prev = page
	}
	a.partialPages[bucket] = page

	return page
}

func (a *Allocator) allocateFromBucket(bucket int) (uintptr, bool) {
	if bucket < 0 || bucket >= numBuckets {
		return 0, false
	}

	if a.buckets[bucket] == nil {
		if a.allocatePage(bucket) == nil {
			return 0, false
		}
	}

	blk := a.buckets[bucket]
	if blk == nil {
		return 0, false
	}
	a.buckets[bucket] = blk.next

	addr := uintptr(unsafe.Pointer(blk))
	if page := a.pageDescriptorFor(addr); page != nil {
		page.allocCount++
	}

	a.usedBytes += bucketToSize(bucket)
	return addr, true
}

// allocateLarge scans the free-page pool, in list order, for a run of
// pagesNeeded descriptors contiguous by index. This mirrors the source's
// behavior of never re-sorting free_pages by index after activity; see
// DESIGN.md for why this fragmentation-prone behavior is kept.
func (a *Allocator) allocateLarge(size int) (uintptr, bool) {
	totalNeeded := size + int(largeHeaderSize)
	pagesNeeded := (totalNeeded + pageSize - 1) / pageSize
	if pagesNeeded > a.pageCount {
		return 0, false
	}

	consecutive := 0
	var firstPage *pageDescriptor
	for page := a.freePages; page != nil; page = page.next {
		idx := a.pageIndexOf(page)
		if firstPage != nil {
			firstIdx := a.pageIndexOf(firstPage)
			if idx == firstIdx+consecutive {
				consecutive++
			} else {
				firstPage = page
				consecutive = 1
			}
		} else {
			firstPage = page
			consecutive = 1
		}
		if consecutive >= pagesNeeded {
			break
		}
	}

	if consecutive < pagesNeeded || firstPage == nil {
		return 0, false
	}

	firstIdx := a.pageIndexOf(firstPage)
	for i := 0; i < pagesNeeded; i++ {
		page := a.descAt(firstIdx + i)
		if page.prev != nil {
			page.prev.next = page.next
		} else {
			a.freePages = page.next
		}
		if page.next != nil {
			page.next.prev = page.prev
		}
		page.bucketIndex = pageLarge
		page.next = nil
		page.prev = nil
	}

	blockAddr := a.dataStart + uintptr(firstIdx*pageSize)
	block := (*largeBlockHeader)(unsafe.Pointer(blockAddr))
	block.sizeBytes = uintptr(pagesNeeded * pageSize)
	block.isFree = false
	block.next = a.largeBlocks
	block.prev = nil
	if a.largeBlocks != nil {
		a.largeBlocks.prev = block
	}
	a.largeBlocks = block

	a.usedBytes += int(block.sizeBytes)
	return blockAddr + largeHeaderSize, true
}

// Alloc reserves at least size bytes and returns the payload's absolute
// address, a location inside the byte slice passed to New.
func (a *Allocator) Alloc(size int) (uintptr, bool) {
	if size <= 0 || a.pageCount == 0 {
		return 0, false
	}
	if size <= largeThreshold {
		return a.allocateFromBucket(sizeToBucket(size))
	}
	return a.allocateLarge(size)
}

func (a *Allocator) freeToBucket(addr uintptr, page *pageDescriptor) {
	if page == nil || page.bucketIndex < 0 || page.bucketIndex >= numBuckets {
		return
	}
	if page.allocCount == 0 {
		return
	}

	bucket := page.bucketIndex
	blk := (*freeBlock)(unsafe.Pointer(addr))
	blk.next = a.buckets[bucket]
	a.buckets[bucket] = blk

	if page.allocCount > 0 {
		page.allocCount--
	}
	a.usedBytes -= bucketToSize(bucket)
}

func (a *Allocator) freeLarge(block *largeBlockHeader) {
	if block == nil || block.sizeBytes == 0 {
		return
	}

	a.usedBytes -= int(block.sizeBytes)

	if block.prev != nil {
		block.prev.next = block.next
	} else {
		a.largeBlocks = block.next
	}
	if block.next != nil {
		block.next.prev = block.prev
	}

	blockAddr := uintptr(unsafe.Pointer(block))
	if blockAddr < a.dataStart {
		return
	}

	pageIndex := int((blockAddr - a.dataStart) / pageSize)
	numPages := int(block.sizeBytes) / pageSize
	if pageIndex+numPages > a.pageCount {
		return
	}

	for i := 0; i < numPages; i++ {
		page := a.descAt(pageIndex + i)
		page.bucketIndex = pageFree
		page.allocCount = 0
		page.next = a.freePages
		page.prev = nil
		if a.freePages != nil {
			a.freePages.prev = page
		}
		a.freePages = page
	}
}

// Free releases addr, an address previously returned by Alloc. A nil
// address, one outside the data area, one whose page is already in the
// free pool, or one on a bucket page with no live blocks is a silent no-op.
func (a *Allocator) Free(addr uintptr) {
	if addr == 0 || addr < a.dataStart {
		return
	}
	end := a.dataStart + uintptr(a.pageCount*pageSize)
	if addr >= end {
		return
	}

	page := a.pageDescriptorFor(addr)
	if page == nil {
		return
	}

	switch {
	case page.bucketIndex == pageLarge:
		if addr < a.dataStart+largeHeaderSize {
			return
		}
		block := (*largeBlockHeader)(unsafe.Pointer(addr - largeHeaderSize))
		a.freeLarge(block)
	case page.bucketIndex >= 0 && page.bucketIndex < numBuckets:
		a.freeToBucket(addr, page)
	}
}

func (a *Allocator) Name() string    { return "McKusick-Karels Allocator" }
func (a *Allocator) UsedBytes() int  { return a.usedBytes }
func (a *Allocator) TotalBytes() int { return a.pageCount * pageSize }
