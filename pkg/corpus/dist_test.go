// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipede-fuzz/centipede/pkg/testutil"
)

func TestWeightedDistributionBasic(t *testing.T) {
	wd := NewWeightedDistribution()
	assert.Equal(t, 0, wd.Size())
	wd.AddWeight(10)
	wd.AddWeight(0)
	wd.AddWeight(5)
	require.Equal(t, 3, wd.Size())
	assert.Equal(t, uint64(10), wd.Weight(0))
	assert.Equal(t, uint64(0), wd.Weight(1))

	// With weights {10, 0, 5} raw values map deterministically.
	assert.Equal(t, 0, wd.RandomIndex(0))
	assert.Equal(t, 0, wd.RandomIndex(9))
	assert.Equal(t, 2, wd.RandomIndex(10))
	assert.Equal(t, 2, wd.RandomIndex(14))
	assert.Equal(t, 0, wd.RandomIndex(15)) // wraps modulo the total
}

func TestWeightedDistributionBias(t *testing.T) {
	wd := NewWeightedDistribution()
	for _, w := range []uint64{10, 100, 1} {
		wd.AddWeight(w)
	}
	rnd := rand.New(testutil.RandSource(t))
	counts := make([]int, 3)
	for i := 0; i < 10000; i++ {
		counts[wd.RandomIndex(rnd.Uint64())]++
	}
	assert.Greater(t, counts[1], 9*counts[0])
	assert.Greater(t, counts[0], 9*counts[2])
}

func TestWeightedDistributionChangeWeight(t *testing.T) {
	wd := NewWeightedDistribution()
	wd.AddWeight(1)
	wd.AddWeight(1)
	wd.AddWeight(1)
	wd.ChangeWeight(0, 0)
	wd.ChangeWeight(2, 100)
	wd.RecomputeInternalState()
	rnd := rand.New(testutil.RandSource(t))
	counts := make([]int, 3)
	for i := 0; i < 1000; i++ {
		counts[wd.RandomIndex(rnd.Uint64())]++
	}
	assert.Equal(t, 0, counts[0])
	assert.Greater(t, counts[2], counts[1])
}

func TestWeightedDistributionPopBack(t *testing.T) {
	wd := NewWeightedDistribution()
	wd.AddWeight(1)
	wd.AddWeight(2)
	wd.AddWeight(3)
	wd.PopBack()
	require.Equal(t, 2, wd.Size())
	// Prefix sums of the remaining entries are still valid.
	assert.Equal(t, 0, wd.RandomIndex(0))
	assert.Equal(t, 1, wd.RandomIndex(1))
	assert.Equal(t, 1, wd.RandomIndex(2))
	wd.Clear()
	assert.Equal(t, 0, wd.Size())
}
