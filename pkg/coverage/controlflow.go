// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

// IndirectCallee marks an indirect call site in the CF table.
const IndirectCallee = -1

// ControlFlowGraph maps every basic block PC to its successor PCs.
type ControlFlowGraph struct {
	graph map[uint64][]uint64
}

// NewControlFlowGraph builds the graph from the flattened CF table.
// Blocks absent from the table have no successors.
func NewControlFlowGraph(cfTable CFTable) *ControlFlowGraph {
	cfg := &ControlFlowGraph{graph: make(map[uint64][]uint64)}
	forEachCFEntry(cfTable, func(pc uint64, successors []uint64, callees []int64) {
		cfg.graph[pc] = successors
	})
	return cfg
}

// Successors returns the successor PCs of the given basic block.
func (cfg *ControlFlowGraph) Successors(basicBlock uint64) []uint64 {
	return cfg.graph[basicBlock]
}

// Exists reports whether the basic block has a CF table entry.
func (cfg *ControlFlowGraph) Exists(basicBlock uint64) bool {
	_, ok := cfg.graph[basicBlock]
	return ok
}

func (cfg *ControlFlowGraph) Size() int {
	return len(cfg.graph)
}

// CallGraph maps every basic block PC to the functions it calls.
// IndirectCallee entries denote indirect call sites.
type CallGraph struct {
	callees map[uint64][]int64
}

func NewCallGraph(cfTable CFTable) *CallGraph {
	cg := &CallGraph{callees: make(map[uint64][]int64)}
	forEachCFEntry(cfTable, func(pc uint64, successors []uint64, callees []int64) {
		cg.callees[pc] = callees
	})
	return cg
}

// Callees returns the callee PCs of the given basic block.
func (cg *CallGraph) Callees(basicBlock uint64) []int64 {
	return cg.callees[basicBlock]
}

// forEachCFEntry walks the flattened CF table. Each entry is the block PC,
// its successors terminated by 0, then its callees terminated by 0.
func forEachCFEntry(cfTable CFTable, cb func(pc uint64, successors []uint64, callees []int64)) {
	for i := 0; i < len(cfTable); {
		pc := uint64(cfTable[i])
		i++
		var successors []uint64
		for ; i < len(cfTable) && cfTable[i] != 0; i++ {
			successors = append(successors, uint64(cfTable[i]))
		}
		i++ // skip the successors delimiter
		var callees []int64
		for ; i < len(cfTable) && cfTable[i] != 0; i++ {
			callees = append(callees, cfTable[i])
		}
		i++ // skip the callees delimiter
		cb(pc, successors, callees)
	}
}
