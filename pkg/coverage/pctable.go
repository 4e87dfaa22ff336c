// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage holds the static views of an instrumented binary
// (PC table, control-flow table, CFG, call graph) and the coverage
// frontier computed from them.
package coverage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// PCInfo describes one instrumented basic block.
type PCInfo struct {
	PC    uint64
	Flags uint64
}

const (
	// PCFlagFuncEntry marks the first basic block of a function.
	PCFlagFuncEntry = 1
)

func (pi PCInfo) IsFuncEntry() bool {
	return pi.Flags&PCFlagFuncEntry != 0
}

// PCTable is the ordered list of instrumented basic blocks, as emitted
// by the sancov pc-table section. PC table indices, not raw PC values,
// appear in counter features.
type PCTable []PCInfo

// CFTable is the flattened control-flow section: for every basic block
// the entry is the block PC, the successor PCs terminated by 0, then the
// callee PCs terminated by 0. A callee of -1 denotes an indirect call.
type CFTable []int64

// ReadPCTable reads a PC table serialized as consecutive little-endian
// (pc, flags) uint64 pairs.
func ReadPCTable(path string) (PCTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pc table: %w", err)
	}
	defer f.Close()
	var table PCTable
	r := bufio.NewReader(f)
	for {
		var pair [2]uint64
		if err := binary.Read(r, binary.LittleEndian, &pair); err != nil {
			if err == io.EOF {
				return table, nil
			}
			return nil, fmt.Errorf("failed to read pc table %v: %w", path, err)
		}
		table = append(table, PCInfo{PC: pair[0], Flags: pair[1]})
	}
}

// ReadCFTable reads a control-flow table serialized as consecutive
// little-endian int64 values.
func ReadCFTable(path string) (CFTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cf table: %w", err)
	}
	defer f.Close()
	var table CFTable
	r := bufio.NewReader(f)
	for {
		var v int64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			if err == io.EOF {
				return table, nil
			}
			return nil, fmt.Errorf("failed to read cf table %v: %w", path, err)
		}
		table = append(table, v)
	}
}
