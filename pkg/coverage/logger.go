// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"github.com/centipede-fuzz/centipede/pkg/feature"
	"github.com/centipede-fuzz/centipede/pkg/log"
	"github.com/centipede-fuzz/centipede/pkg/symbolizer"
)

// Logger describes every newly observed PC once, symbolized.
type Logger struct {
	pcTable   PCTable
	symbols   *symbolizer.SymbolTable
	described map[uint64]bool
}

func NewLogger(pcTable PCTable, symbols *symbolizer.SymbolTable) *Logger {
	return &Logger{
		pcTable:   pcTable,
		symbols:   symbols,
		described: make(map[uint64]bool),
	}
}

// LogIfNew logs the symbolized location of a counter feature's PC the
// first time that PC is observed.
func (cl *Logger) LogIfNew(f feature.Feature) {
	if !feature.Counters8Bit.Contains(f) {
		return
	}
	pcIndex := f.PCIndex()
	if pcIndex >= uint64(len(cl.pcTable)) || cl.described[pcIndex] {
		return
	}
	cl.described[pcIndex] = true
	if !log.V(1) {
		return
	}
	log.Logf(1, "new cov: pc_index: %v pc: 0x%x func: %v",
		pcIndex, cl.pcTable[pcIndex].PC, cl.symbols.Name(int(pcIndex)))
}
