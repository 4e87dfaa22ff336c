// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import "sync/atomic"

// Early exit is a process-wide cooperative flag. The fuzzing loop
// observes it at the top of every batch; the first requested code wins.
var earlyExitCode atomic.Int64

const earlyExitBit = 1 << 32

// RequestEarlyExit asks all loops in the process to stop after their
// current batch. code is the eventual process exit code.
func RequestEarlyExit(code int) {
	earlyExitCode.CompareAndSwap(0, earlyExitBit|int64(code))
}

// EarlyExitRequested reports whether RequestEarlyExit was called.
func EarlyExitRequested() bool {
	return earlyExitCode.Load() != 0
}

// ExitCode returns the requested exit code, or 0.
func ExitCode() int {
	return int(earlyExitCode.Load() &^ earlyExitBit)
}
