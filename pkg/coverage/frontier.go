// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"github.com/centipede-fuzz/centipede/pkg/corpus"
	"github.com/centipede-fuzz/centipede/pkg/feature"
	"github.com/centipede-fuzz/centipede/pkg/log"
)

// Frontier classifies the basic blocks of a partially covered function:
// a covered block with at least one uncovered successor is a frontier,
// the natural target to steer mutation towards.
type Frontier struct {
	pcTable   PCTable
	cfg       *ControlFlowGraph
	callGraph *CallGraph

	isFrontier             []bool
	weights                []uint64
	numFunctionsInFrontier int
}

const (
	// calleeWeightScale is the weight of calling into a fully uncovered
	// function, and of an indirect call whose targets are unknown.
	calleeWeightScale = 153
	// unknownCalleeWeight is the weight of calling a function that has
	// no PC table entry (uninstrumented or out of the binary).
	unknownCalleeWeight = 25
)

func NewFrontier(pcTable PCTable, cfg *ControlFlowGraph, callGraph *CallGraph) *Frontier {
	return &Frontier{
		pcTable:    pcTable,
		cfg:        cfg,
		callGraph:  callGraph,
		isFrontier: make([]bool, len(pcTable)),
		weights:    make([]uint64, len(pcTable)),
	}
}

// Compute scans the union of the corpus records' features, extracts the
// covered PC indices and recomputes the frontier. Returns the number of
// functions with at least one frontier block.
func (fr *Frontier) Compute(c *corpus.Corpus) int {
	covered := make(map[uint64]bool)
	for i, n := 0, c.NumActive(); i < n; i++ {
		for _, f := range c.GetFeatures(i) {
			if !feature.Counters8Bit.Contains(f) {
				continue
			}
			if pcIndex := f.PCIndex(); pcIndex < uint64(len(fr.pcTable)) {
				covered[pcIndex] = true
			}
		}
	}
	return fr.computeFromCoveredPCs(covered)
}

func (fr *Frontier) computeFromCoveredPCs(covered map[uint64]bool) int {
	for i := range fr.pcTable {
		fr.isFrontier[i] = false
		fr.weights[i] = 0
	}
	fr.numFunctionsInFrontier = 0

	indexOfPC := make(map[uint64]int, len(fr.pcTable))
	for i, pi := range fr.pcTable {
		indexOfPC[pi.PC] = i
	}
	// Per-function covered/total block counts, keyed by the entry PC.
	type funcCover struct {
		covered int
		total   int
	}
	funcs := make(map[uint64]funcCover)
	fr.forEachFunction(func(begin, end int) {
		fc := funcCover{total: end - begin}
		for i := begin; i < end; i++ {
			if covered[uint64(i)] {
				fc.covered++
			}
		}
		funcs[fr.pcTable[begin].PC] = fc
	})

	calleeWeight := func(callee int64) uint64 {
		if callee == IndirectCallee {
			return calleeWeightScale
		}
		fc, ok := funcs[uint64(callee)]
		if !ok {
			return unknownCalleeWeight
		}
		return calleeWeightScale - calleeWeightScale*uint64(fc.covered)/uint64(fc.total)
	}

	fr.forEachFunction(func(begin, end int) {
		fc := funcs[fr.pcTable[begin].PC]
		if fc.covered == 0 || fc.covered == fc.total {
			return
		}
		inFrontier := false
		for i := begin; i < end; i++ {
			if !covered[uint64(i)] {
				continue
			}
			for _, succ := range fr.cfg.Successors(fr.pcTable[i].PC) {
				succIdx, known := indexOfPC[succ]
				if known && covered[uint64(succIdx)] {
					continue
				}
				fr.isFrontier[i] = true
				inFrontier = true
				for _, callee := range fr.callGraph.Callees(succ) {
					fr.weights[i] += calleeWeight(callee)
				}
			}
		}
		if inFrontier {
			fr.numFunctionsInFrontier++
		}
	})
	return fr.numFunctionsInFrontier
}

// forEachFunction calls cb with the [begin, end) PC index range of every
// function in the PC table.
func (fr *Frontier) forEachFunction(cb func(begin, end int)) {
	begin := -1
	for i, pi := range fr.pcTable {
		if !pi.IsFuncEntry() {
			continue
		}
		if begin >= 0 {
			cb(begin, i)
		}
		begin = i
	}
	if begin >= 0 {
		cb(begin, len(fr.pcTable))
	}
}

func (fr *Frontier) NumFunctionsInFrontier() int {
	return fr.numFunctionsInFrontier
}

// PcIndexIsFrontier reports whether the PC index is a frontier block.
func (fr *Frontier) PcIndexIsFrontier(pcIndex uint64) bool {
	fr.checkIndex(pcIndex)
	return fr.isFrontier[pcIndex]
}

// FrontierWeight returns the weight of a frontier PC index, 0 for
// non-frontier indices.
func (fr *Frontier) FrontierWeight(pcIndex uint64) uint64 {
	fr.checkIndex(pcIndex)
	return fr.weights[pcIndex]
}

func (fr *Frontier) checkIndex(pcIndex uint64) {
	if pcIndex >= uint64(len(fr.pcTable)) {
		log.Fatalf("pc index %v is out of range [0, %v)", pcIndex, len(fr.pcTable))
	}
}
