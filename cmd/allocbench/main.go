// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command allocbench acquires two disjoint memory regions from the OS,
// constructs a buddy allocator over one and a McKusick-Karels allocator over
// the other, drives both with the same random workload, and prints a
// side-by-side comparison.
package main

import (
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/geori0/allocbench/buddy"
	"github.com/geori0/allocbench/internal/bench"
	"github.com/geori0/allocbench/internal/region"
	"github.com/geori0/allocbench/mck"
)

const (
	memorySize   = 32 * 1024 * 1024
	numOps       = 100000
	minAllocSize = 16
	maxAllocSize = 4096

	// benchSeed 0 means "unset": run picks a time-derived seed so an
	// unconfigured run still varies from one invocation to the next, while
	// still running both allocators against the identical workload.
	benchSeed = 0
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if err := run(logger); err != nil {
		level.Error(logger).Log("msg", "allocbench failed", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	level.Info(logger).Log("msg", "acquiring regions", "size", bench.FormatBytes(memorySize), "count", 2)

	mem1, err := region.Acquire(memorySize)
	if err != nil {
		return errors.Wrap(err, "acquire buddy region")
	}
	defer region.Release(mem1)

	mem2, err := region.Acquire(memorySize)
	if err != nil {
		return errors.Wrap(err, "acquire mck region")
	}
	defer region.Release(mem2)

	buddyAlloc := buddy.New(mem1)
	mckAlloc := mck.New(mem2)

	seed := uint32(benchSeed)
	if seed == 0 {
		seed = uint32(time.Now().UnixNano())
	}

	level.Info(logger).Log("msg", "running benchmark", "ops", numOps, "min", minAllocSize, "max", maxAllocSize, "seed", seed)

	opts := bench.Options{NumOps: numOps, MinSize: minAllocSize, MaxSize: maxAllocSize, Seed: seed}

	buddyResult, err := bench.Run(buddyAlloc, opts)
	if err != nil {
		return errors.Wrap(err, "run buddy benchmark")
	}

	mckResult, err := bench.Run(mckAlloc, opts)
	if err != nil {
		return errors.Wrap(err, "run mck benchmark")
	}

	bench.ComparePrint(os.Stdout, buddyResult, mckResult)
	return nil
}
