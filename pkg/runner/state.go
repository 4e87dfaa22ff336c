// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"encoding/binary"
	"sort"

	"github.com/centipede-fuzz/centipede/pkg/feature"
)

// State is the explicit per-target instrumentation state. Instrumented
// code (hand-written hooks in test targets and puzzle binaries) calls
// the Trace* methods during one input's execution; the harness then
// reads Features and CmpArgs and calls Reset before the next input.
//
// Counters are 8-bit and saturate. The path ring buffer hashes the last
// pathLevel edges into a bounded-path feature per step. Comparison
// traces feed both the cmp feature domain and a small dictionary of
// mismatched operand pairs.
type State struct {
	counters  []uint8
	pathLevel int
	pathRing  []uint64
	pathPos   int

	extra   map[feature.Feature]struct{}
	cmpArgs []byte
}

// maxCmpEntries bounds the per-input dictionary so a comparison in a
// hot loop cannot flood it.
const maxCmpEntries = 64

// cmpEntrySize is one dictionary record: a length byte plus two
// operands of that length.
const cmpEntrySize = 1 + 8 + 8

// NewState creates instrumentation state for a target with numPCs
// instrumented edges. pathLevel 0 disables bounded-path features.
func NewState(numPCs, pathLevel int) *State {
	return &State{
		counters:  make([]uint8, numPCs),
		pathLevel: pathLevel,
		pathRing:  make([]uint64, pathLevel),
		extra:     make(map[feature.Feature]struct{}),
	}
}

// TraceEdge records one execution of the instrumented edge pcIndex.
func (s *State) TraceEdge(pcIndex uint64) {
	if pcIndex >= uint64(len(s.counters)) {
		return
	}
	if s.counters[pcIndex] != 255 {
		s.counters[pcIndex]++
	}
	if s.pathLevel != 0 {
		s.pathRing[s.pathPos] = pcIndex
		s.pathPos = (s.pathPos + 1) % s.pathLevel
		hash := uint64(0)
		for _, pc := range s.pathRing {
			hash = mix(hash ^ mix(pc))
		}
		s.extra[feature.BoundedPath.ConvertToMe(hash)] = struct{}{}
	}
}

// TraceCmp records a comparison of two operands at the call site pc.
// Mismatched operands also enter the cmp-args dictionary.
func (s *State) TraceCmp(pc, arg1, arg2 uint64) {
	s.extra[feature.CMP.ConvertToMe(mix(pc)^mix(arg1^mix(arg2)))] = struct{}{}
	if arg1 == arg2 || len(s.cmpArgs) >= maxCmpEntries*cmpEntrySize {
		return
	}
	var entry [cmpEntrySize]byte
	entry[0] = 8
	binary.LittleEndian.PutUint64(entry[1:], arg1)
	binary.LittleEndian.PutUint64(entry[9:], arg2)
	s.cmpArgs = append(s.cmpArgs, entry[:]...)
}

// TraceLoad records a load from a global address, forming a data-flow
// feature from the (pc, address) pair.
func (s *State) TraceLoad(pc, addr uint64) {
	s.extra[feature.DataFlow.ConvertToMe(mix(pc)^mix(addr))] = struct{}{}
}

// Features returns the feature vector of the input executed since the
// last Reset: one counter feature per touched edge, in edge order,
// followed by the other domains' features in sorted order.
func (s *State) Features() feature.Vec {
	var vec feature.Vec
	for pc, counter := range s.counters {
		if counter != 0 {
			vec = append(vec, feature.FromPCIndexAndCounter(uint64(pc), counter))
		}
	}
	rest := make(feature.Vec, 0, len(s.extra))
	for f := range s.extra {
		rest = append(rest, f)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(vec, rest...)
}

// CmpArgs returns the packed dictionary of mismatched comparison
// operands: repeated records of a length byte followed by the two
// operands in little-endian order.
func (s *State) CmpArgs() []byte {
	return s.cmpArgs
}

// Reset clears all per-input state.
func (s *State) Reset() {
	for i := range s.counters {
		s.counters[i] = 0
	}
	for i := range s.pathRing {
		s.pathRing[i] = 0
	}
	s.pathPos = 0
	s.extra = make(map[feature.Feature]struct{})
	s.cmpArgs = nil
}

func mix(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
