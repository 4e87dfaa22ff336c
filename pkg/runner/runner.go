// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package runner defines the contract between the fuzzing engine and the
// instrumented target, plus an in-process target state for tests and
// puzzle binaries.
//
// The engine never talks to a target directly. It calls the Execute hook
// with a batch of inputs and receives a BatchResult: per-input feature
// vectors on success, or the exit code and log of the failing run.
package runner

import (
	"time"

	"github.com/centipede-fuzz/centipede/pkg/feature"
)

// Result holds what one input's execution produced.
type Result struct {
	Features feature.Vec
	// CmpArgs is an opaque dictionary blob of mismatched comparison
	// operands, consumed by the mutator. May be empty.
	CmpArgs []byte
}

// BatchResult is the outcome of executing one batch of inputs.
// On success ExitCode is 0 and len(Results) equals the batch size.
// On failure NumOutputsRead says how many inputs completed before the
// target died; Results holds that many entries.
type BatchResult struct {
	ExitCode       int
	Log            string
	NumOutputsRead int
	Results        []Result
}

func (br *BatchResult) OK() bool {
	return br.ExitCode == 0
}

// Callbacks are the engine's polymorphic hooks. All are plain function
// fields; nil fields select the built-in behavior described per field.
type Callbacks struct {
	// Execute runs the batch against the binary and never returns nil.
	Execute func(binary string, inputs [][]byte, timeout time.Duration) *BatchResult

	// Mutate replaces the batch contents in place, preserving its
	// length.
	Mutate func(batch [][]byte)

	// InputFilter reports whether an input may enter the corpus.
	// nil accepts everything.
	InputFilter func(data []byte) bool

	// AddCmpDictionary feeds the cmp-args blob of a sampled corpus
	// record to the mutator before the batch is mutated. nil drops
	// the blob.
	AddCmpDictionary func(cmpArgs []byte)
}
