// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bench

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geori0/allocbench/buddy"
	"github.com/geori0/allocbench/mck"
)

// TestMixedWorkloadParity is scenario 5: the same workload, same seed, run
// against both allocators must drain each back to zero used bytes (P5),
// count every operation as a success or a failure, and produce no crashes.
func TestMixedWorkloadParity(t *testing.T) {
	opts := Options{NumOps: 1000, MinSize: 16, MaxSize: 4096, Seed: 42}

	b := buddy.New(make([]byte, 32<<20))
	m := mck.New(make([]byte, 32<<20))

	r1, err := Run(b, opts)
	require.NoError(t, err)
	r2, err := Run(m, opts)
	require.NoError(t, err)

	assert.Zero(t, b.UsedBytes())
	assert.Zero(t, m.UsedBytes())
	assert.GreaterOrEqual(t, r1.Successful, 0)
	assert.GreaterOrEqual(t, r2.Successful, 0)
	assert.Equal(t, opts.NumOps, r1.Successful+r1.Failed)
	assert.Equal(t, opts.NumOps, r2.Successful+r2.Failed)
}

func TestRunRejectsInvalidSizeRange(t *testing.T) {
	b := buddy.New(make([]byte, 1<<20))
	_, err := Run(b, Options{NumOps: 10, MinSize: 100, MaxSize: 50})
	assert.Error(t, err)
}

func TestComparePrintRendersBothNames(t *testing.T) {
	var buf bytes.Buffer
	ComparePrint(&buf, Result{Name: "Buddy Allocator"}, Result{Name: "McKusick-Karels Allocator"})
	out := buf.String()
	assert.Contains(t, out, "Buddy Allocator")
	assert.Contains(t, out, "McKusick-Karels Allocator")
}
