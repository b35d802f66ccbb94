// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bench drives an allocator.Allocator with a random-sized workload
// and reports timings and utilization. It is the Go port of the source's
// Benchmark class, kept deliberately dumb: it only calls the Allocator
// contract, never an allocator's concrete type.
package bench

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cznic/mathutil"
	"github.com/dustin/go-humanize"

	"github.com/geori0/allocbench/allocator"
)

// Options configures a single benchmark run.
type Options struct {
	NumOps  int
	MinSize int
	MaxSize int
	// Seed drives the full-cycle PRNG used both to pick allocation sizes and
	// to shuffle the free order. The same seed reproduces the same workload,
	// unlike the source's std::random_device-seeded generator.
	Seed uint32
}

// Result mirrors the source's BenchmarkResult, field for field.
type Result struct {
	Name        string
	AvgAllocNs  float64
	AvgFreeNs   float64
	Utilization float64
	Successful  int
	Failed      int
}

// Run allocates Options.NumOps times with sizes drawn uniformly from
// [MinSize, MaxSize], samples the allocator's utilization, then frees
// everything it got back in a shuffled order. It never mutates a outside of
// calling its Alloc/Free/UsedBytes/TotalBytes/Name methods.
func Run(a allocator.Allocator, opts Options) (Result, error) {
	if opts.MinSize <= 0 || opts.MaxSize < opts.MinSize {
		return Result{}, fmt.Errorf("bench: invalid size range [%d, %d]", opts.MinSize, opts.MaxSize)
	}

	rng, err := mathutil.NewFC32(opts.MinSize, opts.MaxSize, true)
	if err != nil {
		return Result{}, fmt.Errorf("bench: construct PRNG: %w", err)
	}
	rng.Seed(opts.Seed)

	result := Result{Name: a.Name()}
	addrs := make([]uintptr, 0, opts.NumOps)

	allocStart := time.Now()
	for i := 0; i < opts.NumOps; i++ {
		size := rng.Next()
		if addr, ok := a.Alloc(size); ok {
			addrs = append(addrs, addr)
			result.Successful++
		} else {
			result.Failed++
		}
	}
	allocElapsed := time.Since(allocStart)

	if total := a.TotalBytes(); total > 0 {
		result.Utilization = float64(a.UsedBytes()) / float64(total)
	}

	shuffle(addrs, rng)

	freeStart := time.Now()
	for _, addr := range addrs {
		a.Free(addr)
	}
	freeElapsed := time.Since(freeStart)

	if opts.NumOps > 0 {
		result.AvgAllocNs = float64(allocElapsed.Nanoseconds()) / float64(opts.NumOps)
	}
	denom := len(addrs)
	if denom == 0 {
		denom = 1
	}
	result.AvgFreeNs = float64(freeElapsed.Nanoseconds()) / float64(denom)

	return result, nil
}

// shuffle performs an in-place Fisher-Yates shuffle driven by rng, mirroring
// the effect (not the implementation) of the source's std::shuffle call.
func shuffle(addrs []uintptr, rng *mathutil.FC32) {
	for i := len(addrs) - 1; i > 0; i-- {
		j := rng.Next() % (i + 1)
		addrs[i], addrs[j] = addrs[j], addrs[i]
	}
}

// ComparePrint renders r1 and r2 side by side, one row per metric.
func ComparePrint(w io.Writer, r1, r2 Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=============== Allocator comparison ===============")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-34s | %20s | %20s\n", "Metric", r1.Name, r2.Name)
	fmt.Fprintln(w, strings.Repeat("-", 81))
	fmt.Fprintf(w, "%-34s | %20.2f | %20.2f\n", "Avg alloc time (ns)", r1.AvgAllocNs, r2.AvgAllocNs)
	fmt.Fprintf(w, "%-34s | %20.2f | %20.2f\n", "Avg free time (ns)", r1.AvgFreeNs, r2.AvgFreeNs)
	fmt.Fprintf(w, "%-34s | %19.2f%% | %19.2f%%\n", "Utilization", r1.Utilization*100, r2.Utilization*100)
	fmt.Fprintf(w, "%-34s | %20d | %20d\n", "Successful allocations", r1.Successful, r2.Successful)
	fmt.Fprintf(w, "%-34s | %20d | %20d\n", "Failed allocations", r1.Failed, r2.Failed)
	fmt.Fprintln(w, strings.Repeat("=", 81))
}

// FormatBytes renders a byte count the way the CLI shell reports region
// sizes, e.g. "32 MiB".
func FormatBytes(n int) string { return humanize.IBytes(uint64(n)) }
