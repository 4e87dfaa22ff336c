// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"fmt"
	"io"
	"sort"

	"github.com/centipede-fuzz/centipede/pkg/symbolizer"
)

// PrintReport writes a per-function coverage summary: for every function
// with at least one covered block, the function name and the counts of
// covered and total blocks.
func PrintReport(w io.Writer, pcTable PCTable, symbols *symbolizer.SymbolTable, coveredPCs []uint64) error {
	covered := make(map[uint64]bool, len(coveredPCs))
	for _, pc := range coveredPCs {
		covered[pc] = true
	}
	type funcCov struct {
		name    string
		covered int
		total   int
	}
	var funcs []funcCov
	begin := -1
	flush := func(end int) {
		if begin < 0 {
			return
		}
		fc := funcCov{name: symbols.Name(begin), total: end - begin}
		for i := begin; i < end; i++ {
			if covered[uint64(i)] {
				fc.covered++
			}
		}
		if fc.covered > 0 {
			funcs = append(funcs, fc)
		}
	}
	for i, pi := range pcTable {
		if pi.IsFuncEntry() {
			flush(i)
			begin = i
		}
	}
	flush(len(pcTable))
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })
	for _, fc := range funcs {
		status := "FULL"
		if fc.covered < fc.total {
			status = "PARTIAL"
		}
		if _, err := fmt.Fprintf(w, "%v: %v (%v/%v basic blocks)\n",
			status, fc.name, fc.covered, fc.total); err != nil {
			return err
		}
	}
	return nil
}
