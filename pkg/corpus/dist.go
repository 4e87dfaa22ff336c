// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"sort"

	"github.com/centipede-fuzz/centipede/pkg/log"
)

// WeightedDistribution samples indices with probability proportional to
// their weight. Lookup is a binary search over prefix sums, so sampling
// is O(log n) and append is O(1).
type WeightedDistribution struct {
	weights []uint64
	sums    []uint64
	computed bool
}

func NewWeightedDistribution() *WeightedDistribution {
	return &WeightedDistribution{computed: true}
}

func (wd *WeightedDistribution) AddWeight(weight uint64) {
	last := uint64(0)
	if n := len(wd.sums); n > 0 {
		last = wd.sums[n-1]
	}
	wd.weights = append(wd.weights, weight)
	wd.sums = append(wd.sums, last+weight)
}

// ChangeWeight updates the weight of index idx. Sampling is not allowed
// again until RecomputeInternalState is called.
func (wd *WeightedDistribution) ChangeWeight(idx int, weight uint64) {
	wd.weights[idx] = weight
	wd.computed = false
}

// RecomputeInternalState rebuilds the prefix sums after ChangeWeight calls.
func (wd *WeightedDistribution) RecomputeInternalState() {
	sum := uint64(0)
	for i, w := range wd.weights {
		sum += w
		wd.sums[i] = sum
	}
	wd.computed = true
}

// RandomIndex returns an index with probability weights[i]/sum(weights),
// using r as the source of randomness.
func (wd *WeightedDistribution) RandomIndex(r uint64) int {
	if !wd.computed {
		log.Fatalf("sampling from a weighted distribution with stale prefix sums")
	}
	n := len(wd.sums)
	if n == 0 || wd.sums[n-1] == 0 {
		log.Fatalf("sampling from an empty or all-zero weighted distribution")
	}
	r %= wd.sums[n-1]
	return sort.Search(n, func(i int) bool { return wd.sums[i] > r })
}

// PopBack removes the last entry. Prefix sums of the remaining entries
// stay valid.
func (wd *WeightedDistribution) PopBack() {
	wd.weights = wd.weights[:len(wd.weights)-1]
	wd.sums = wd.sums[:len(wd.sums)-1]
}

func (wd *WeightedDistribution) Size() int {
	return len(wd.weights)
}

func (wd *WeightedDistribution) Weight(idx int) uint64 {
	return wd.weights[idx]
}

func (wd *WeightedDistribution) Clear() {
	wd.weights = wd.weights[:0]
	wd.sums = wd.sums[:0]
	wd.computed = true
}
