// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package feature

import (
	"math"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/centipede-fuzz/centipede/pkg/log"
)

// Set tracks the frequency of every feature observed by a shard.
// Frequencies saturate at the configured threshold; once a feature reaches
// the threshold it is considered common and pruned from new input vectors.
type Set struct {
	threshold uint8
	freq      map[Feature]uint8
	perDomain [NumDomains]int
}

func NewSet(frequencyThreshold int) *Set {
	if frequencyThreshold < 2 || frequencyThreshold > 255 {
		log.Fatalf("frequency threshold %v is outside [2, 255]", frequencyThreshold)
	}
	return &Set{
		threshold: uint8(frequencyThreshold),
		freq:      make(map[Feature]uint8),
	}
}

// CountUnseenAndPruneFrequentFeatures returns the number of features in
// vec not yet present in the set, and removes from vec in place every
// feature whose frequency has reached the threshold. The order of the
// remaining elements is preserved.
func (s *Set) CountUnseenAndPruneFrequentFeatures(vec *Vec) int {
	unseen := 0
	kept := (*vec)[:0]
	for _, f := range *vec {
		freq, seen := s.freq[f]
		if !seen {
			unseen++
		}
		if freq < s.threshold {
			kept = append(kept, f)
		}
	}
	*vec = kept
	return unseen
}

// IncrementFrequencies bumps the saturating frequency counter of every
// feature in vec, counting previously unseen features per domain.
func (s *Set) IncrementFrequencies(vec Vec) {
	for _, f := range vec {
		freq, seen := s.freq[f]
		if !seen {
			s.perDomain[DomainOf(f)]++
		}
		if freq < s.threshold {
			s.freq[f] = freq + 1
		}
	}
}

// ComputeWeight returns the weight of an input with the given features.
// Rarer features weigh more, and so do features from domains with fewer
// distinct members. Every feature must have been passed to
// IncrementFrequencies before.
func (s *Set) ComputeWeight(vec Vec) uint32 {
	total := uint64(len(s.freq))
	sum := uint64(0)
	for _, f := range vec {
		freq, seen := s.freq[f]
		if !seen {
			log.Fatalf("computing weight of unseen feature %v", uint64(f))
		}
		rarity := uint64(65536) / uint64(freq)
		domainScale := (total << 16) / uint64(s.perDomain[DomainOf(f)])
		sum += rarity * domainScale >> 16
	}
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

// AllFrequent reports whether every feature of vec has reached the
// frequency threshold. An empty vector is vacuously frequent.
func (s *Set) AllFrequent(vec Vec) bool {
	for _, f := range vec {
		if s.freq[f] < s.threshold {
			return false
		}
	}
	return true
}

// Size returns the number of distinct features observed.
func (s *Set) Size() int {
	return len(s.freq)
}

// CountFeatures returns the number of distinct features observed in the domain.
func (s *Set) CountFeatures(d Domain) int {
	return s.perDomain[d]
}

// Frequency returns the recorded frequency of f.
// Querying a feature never seen by IncrementFrequencies is a programming error.
func (s *Set) Frequency(f Feature) uint8 {
	freq, seen := s.freq[f]
	if !seen {
		log.Fatalf("querying frequency of unseen feature %v", uint64(f))
	}
	return freq
}

// ToCoveragePCs returns the sorted PC table indices derived from the
// observed counter features.
func (s *Set) ToCoveragePCs() []uint64 {
	pcs := make(map[uint64]bool)
	for _, f := range maps.Keys(s.freq) {
		if Counters8Bit.Contains(f) {
			pcs[f.PCIndex()] = true
		}
	}
	res := maps.Keys(pcs)
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
