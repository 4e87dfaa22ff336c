// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"strings"

	"github.com/centipede-fuzz/centipede/pkg/feature"
	"github.com/centipede-fuzz/centipede/pkg/symbolizer"
)

// FunctionFilter restricts corpus additions to inputs that touch one of
// the named functions. An empty filter, or one whose functions do not
// appear in the binary, passes everything.
type FunctionFilter struct {
	marked    []bool
	numMarked int
}

// NewFunctionFilter marks the PC indices whose symbol name contains one
// of the comma-separated function names.
func NewFunctionFilter(functions string, pcTable PCTable, symbols *symbolizer.SymbolTable) *FunctionFilter {
	ff := &FunctionFilter{marked: make([]bool, len(pcTable))}
	if functions == "" {
		return ff
	}
	names := strings.Split(functions, ",")
	for i := range pcTable {
		symbol := symbols.Name(i)
		for _, name := range names {
			if name != "" && strings.Contains(symbol, name) {
				ff.marked[i] = true
				ff.numMarked++
				break
			}
		}
	}
	return ff
}

// Pass reports whether an input with the given features touches the
// filtered functions. Trivial filters pass everything.
func (ff *FunctionFilter) Pass(features feature.Vec) bool {
	if ff == nil || ff.numMarked == 0 {
		return true
	}
	for _, f := range features {
		if !feature.Counters8Bit.Contains(f) {
			continue
		}
		if pcIndex := f.PCIndex(); pcIndex < uint64(len(ff.marked)) && ff.marked[pcIndex] {
			return true
		}
	}
	return false
}
