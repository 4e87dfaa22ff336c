// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipede-fuzz/centipede/pkg/corpus"
	"github.com/centipede-fuzz/centipede/pkg/feature"
)

// The fixture covers seven functions in different states:
// [0,1) fully covered, [1,2) not covered, [2,4) partially covered,
// [4,6) not covered, [6,9) partially covered, [9,12) fully covered,
// [12,19) partially covered with two frontiers.
func frontierFixture() (PCTable, CFTable) {
	pcTable := make(PCTable, 19)
	for i := range pcTable {
		pcTable[i].PC = uint64(i)
	}
	for _, entry := range []int{0, 1, 2, 4, 6, 9, 12} {
		pcTable[entry].Flags = PCFlagFuncEntry
	}
	cfTable := CFTable{
		0, 0, 9, 0, // 0 calls 9.
		1, 0, 6, 0, // 1 calls 6.
		2, 3, 0, 0, // 2 branches to 3.
		3, 0, 4, 0, // 3 calls 4.
		4, 5, 0, 0,
		5, 0, 9, 0,
		6, 7, 8, 0, 0, // 6 branches to 7 and 8.
		7, 0, 0,
		8, 0, 2, -1, 0, // 8 calls 2 and makes an indirect call.
		9, 10, 0, 0,
		10, 11, 0, 0,
		11, 0, 0,
		12, 13, 14, 0, 0,
		13, 15, 16, 0, 0,
		14, 17, 18, 0, 0,
		15, 0, 9, 99, 0, // 15 calls 9 and the unknown 99.
		16, 13, 0, 0,
		17, 0, 0,
		18, 0, 4, 0, // 18 calls 4.
	}
	return pcTable, cfTable
}

func TestFrontierCompute(t *testing.T) {
	pcTable, cfTable := frontierFixture()
	fr := NewFrontier(pcTable, NewControlFlowGraph(cfTable), NewCallGraph(cfTable))

	fs := feature.NewSet(100)
	c := corpus.New()
	add := func(f feature.Feature) {
		vec := feature.Vec{f}
		fs.IncrementFrequencies(vec)
		c.Add([]byte{42}, vec, nil, fs, fr)
	}
	for _, idx := range []uint64{0, 2, 6, 7, 9, 10, 11, 12, 13, 14, 16, 17} {
		add(feature.FromPCIndexAndCounter(idx, 1))
	}
	for _, x := range []uint64{1, 2, 3, 4} {
		add(feature.Unknown.ConvertToMe(x))
	}

	require.Equal(t, 3, fr.Compute(c))
	assert.Equal(t, 3, fr.NumFunctionsInFrontier())

	wantFrontier := map[uint64]bool{2: true, 6: true, 13: true, 14: true}
	wantWeight := map[uint64]uint64{2: 153, 6: 230, 13: 25, 14: 153}
	for idx := uint64(0); idx < uint64(len(pcTable)); idx++ {
		assert.Equal(t, wantFrontier[idx], fr.PcIndexIsFrontier(idx), "pc index %v", idx)
		assert.Equal(t, wantWeight[idx], fr.FrontierWeight(idx), "pc index %v", idx)
	}
}

func TestFrontierEmptyCorpus(t *testing.T) {
	pcTable, cfTable := frontierFixture()
	fr := NewFrontier(pcTable, NewControlFlowGraph(cfTable), NewCallGraph(cfTable))
	assert.Equal(t, 0, fr.Compute(corpus.New()))
	assert.Equal(t, 0, fr.NumFunctionsInFrontier())
	for idx := uint64(0); idx < uint64(len(pcTable)); idx++ {
		assert.False(t, fr.PcIndexIsFrontier(idx))
		assert.Equal(t, uint64(0), fr.FrontierWeight(idx))
	}
}

func TestControlFlowGraph(t *testing.T) {
	_, cfTable := frontierFixture()
	cfg := NewControlFlowGraph(cfTable)
	assert.Equal(t, []uint64{7, 8}, cfg.Successors(6))
	assert.Empty(t, cfg.Successors(7))
	assert.True(t, cfg.Exists(0))
	assert.False(t, cfg.Exists(99))

	cg := NewCallGraph(cfTable)
	assert.Equal(t, []int64{2, IndirectCallee}, cg.Callees(8))
	assert.Equal(t, []int64{9, 99}, cg.Callees(15))
	assert.Empty(t, cg.Callees(7))
}
