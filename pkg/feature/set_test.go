// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetCountUnseen(t *testing.T) {
	fs := NewSet(3)
	vec := Vec{10, 20}
	assert.Equal(t, 2, fs.CountUnseenAndPruneFrequentFeatures(&vec))
	assert.Equal(t, Vec{10, 20}, vec)
	fs.IncrementFrequencies(vec)
	assert.Equal(t, 2, fs.Size())

	vec = Vec{10, 20, 30}
	assert.Equal(t, 1, fs.CountUnseenAndPruneFrequentFeatures(&vec))
	assert.Equal(t, Vec{10, 20, 30}, vec)
}

func TestSetFrequencyPruning(t *testing.T) {
	fs := NewSet(3)
	for i := 0; i < 3; i++ {
		fs.IncrementFrequencies(Vec{10})
	}
	vec := Vec{10, 20}
	assert.Equal(t, 1, fs.CountUnseenAndPruneFrequentFeatures(&vec))
	assert.Equal(t, Vec{20}, vec)
	assert.Equal(t, uint8(3), fs.Frequency(10))
}

func TestSetIdempotentPruning(t *testing.T) {
	fs := NewSet(2)
	fs.IncrementFrequencies(Vec{1, 2, 3})
	fs.IncrementFrequencies(Vec{2, 3})
	vec := Vec{1, 2, 3, 4}
	first := fs.CountUnseenAndPruneFrequentFeatures(&vec)
	afterFirst := append(Vec(nil), vec...)
	second := fs.CountUnseenAndPruneFrequentFeatures(&vec)
	assert.Equal(t, first, second)
	assert.Equal(t, afterFirst, vec)
}

func TestSetSaturation(t *testing.T) {
	fs := NewSet(2)
	for i := 0; i < 100; i++ {
		fs.IncrementFrequencies(Vec{7})
	}
	assert.Equal(t, uint8(2), fs.Frequency(7))
	assert.True(t, fs.AllFrequent(Vec{7}))
	assert.True(t, fs.AllFrequent(nil))
	assert.False(t, fs.AllFrequent(Vec{7, 8}))
}

func TestSetWeightMonotonic(t *testing.T) {
	fs := NewSet(100)
	fs.IncrementFrequencies(Vec{1, 2, 3, 4})
	fs.IncrementFrequencies(Vec{1, 2})
	fs.IncrementFrequencies(Vec{1})
	sub := Vec{2, 3}
	super := Vec{1, 2, 3, 4}
	assert.GreaterOrEqual(t, fs.ComputeWeight(super), fs.ComputeWeight(sub))
	// Rarer features weigh more.
	assert.Greater(t, fs.ComputeWeight(Vec{4}), fs.ComputeWeight(Vec{2}))
	assert.Greater(t, fs.ComputeWeight(Vec{2}), fs.ComputeWeight(Vec{1}))
}

func TestSetWeightDomains(t *testing.T) {
	fs := NewSet(100)
	// Populate the counter domain with many features, the data-flow
	// domain with one.
	var counters Vec
	for i := uint64(0); i < 100; i++ {
		counters = append(counters, Counters8Bit.ConvertToMe(i))
	}
	fs.IncrementFrequencies(counters)
	df := Vec{DataFlow.ConvertToMe(1)}
	fs.IncrementFrequencies(df)
	// Equal frequency, but the data-flow feature lives in a
	// less-populated domain.
	assert.Greater(t, fs.ComputeWeight(df), fs.ComputeWeight(Vec{counters[0]}))
	assert.Equal(t, 100, fs.CountFeatures(Counters8Bit))
	assert.Equal(t, 1, fs.CountFeatures(DataFlow))
}

func TestSetToCoveragePCs(t *testing.T) {
	fs := NewSet(10)
	fs.IncrementFrequencies(Vec{
		FromPCIndexAndCounter(5, 1),
		FromPCIndexAndCounter(3, 10),
		FromPCIndexAndCounter(5, 200),
		DataFlow.ConvertToMe(1000),
	})
	assert.Equal(t, []uint64{3, 5}, fs.ToCoveragePCs())
}
