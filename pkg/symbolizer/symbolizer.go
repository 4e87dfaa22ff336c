// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package symbolizer resolves instrumented PCs to function names.
// Symbols are read from the target binary with nm and demangled, then a
// SymbolTable aligned with the PC table maps every PC index to its
// containing function.
package symbolizer

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ianlancetaylor/demangle"

	"github.com/centipede-fuzz/centipede/pkg/osutil"
)

const unknownSymbol = "?"

// SymbolTable maps PC table indices to function names.
type SymbolTable struct {
	names []string
}

// NewSymbolTable builds a table with one name per PC table entry.
func NewSymbolTable(names []string) *SymbolTable {
	return &SymbolTable{names: names}
}

// Name returns the function name of the PC index, "?" when unknown.
func (st *SymbolTable) Name(pcIndex int) string {
	if st == nil || pcIndex >= len(st.names) || st.names[pcIndex] == "" {
		return unknownSymbol
	}
	return st.names[pcIndex]
}

func (st *SymbolTable) Size() int {
	if st == nil {
		return 0
	}
	return len(st.names)
}

type symbol struct {
	addr uint64
	size uint64
	name string
}

const nmTimeout = time.Minute

// LoadSymbols runs nm on the binary and maps every PC to its containing
// text symbol, demangled.
func LoadSymbols(binary string, pcs []uint64) (*SymbolTable, error) {
	output, err := osutil.RunCmd(nmTimeout, "", "nm", "--defined-only", "-S", binary)
	if err != nil {
		return nil, fmt.Errorf("failed to run nm on %v: %w", binary, err)
	}
	symbols, err := parseNMOutput(output)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nm output for %v: %w", binary, err)
	}
	names := make([]string, len(pcs))
	for i, pc := range pcs {
		names[i] = lookup(symbols, pc)
	}
	return &SymbolTable{names: names}, nil
}

// parseNMOutput parses "addr size type name" lines, keeping text symbols.
func parseNMOutput(output []byte) ([]symbol, error) {
	var symbols []symbol
	s := bufio.NewScanner(bytes.NewReader(output))
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) != 4 {
			continue
		}
		typ := fields[2]
		if typ != "t" && typ != "T" && typ != "w" && typ != "W" {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad symbol address %q: %w", fields[0], err)
		}
		size, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad symbol size %q: %w", fields[1], err)
		}
		if size == 0 {
			continue
		}
		symbols = append(symbols, symbol{
			addr: addr,
			size: size,
			name: demangle.Filter(fields[3]),
		})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].addr < symbols[j].addr })
	return symbols, nil
}

func lookup(symbols []symbol, pc uint64) string {
	i := sort.Search(len(symbols), func(i int) bool { return symbols[i].addr > pc })
	if i == 0 {
		return ""
	}
	sym := symbols[i-1]
	if pc >= sym.addr+sym.size {
		return ""
	}
	return sym.name
}
