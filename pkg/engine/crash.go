// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"path/filepath"
	"strconv"

	"github.com/centipede-fuzz/centipede/pkg/hash"
	"github.com/centipede-fuzz/centipede/pkg/log"
	"github.com/centipede-fuzz/centipede/pkg/osutil"
	"github.com/centipede-fuzz/centipede/pkg/runner"
)

// reportCrash localizes a failing batch to a single input. The presumed
// culprit is the first unread input; if it does not reproduce alone,
// every batch member is retried singly. Reports are bounded by
// max_num_crash_reports per shard.
func (e *Engine) reportCrash(br *runner.BatchResult, batch [][]byte) {
	if e.numCrashReports >= e.env.MaxNumCrashReports {
		return
	}
	e.numCrashReports++
	log.Logf(0, "batch of %v inputs failed with exit code %v", len(batch), br.ExitCode)
	log.Logf(0, "batch execution log:\n%v", br.Log)
	if idx := br.NumOutputsRead; idx < len(batch) {
		if e.tryReproduce(batch[idx]) {
			return
		}
		log.Logf(0, "input %v did not reproduce the failure on its own", idx)
	}
	for idx, data := range batch {
		if idx == br.NumOutputsRead {
			continue
		}
		if e.tryReproduce(data) {
			return
		}
	}
	log.Logf(0, "no single input reproduces the failure; "+
		"it likely depends on a sequence of inputs")
}

// tryReproduce executes one input alone; if it fails, its bytes go to
// the crash reproducer directory under the input's hash.
func (e *Engine) tryReproduce(data []byte) bool {
	br := e.cb.Execute(e.env.Binary, [][]byte{data}, e.env.Timeout())
	if br.OK() {
		return false
	}
	sig := hash.String(data)
	log.Logf(0, "input bytes: %v", inputString(data))
	log.Logf(0, "exit code: %v", br.ExitCode)
	path := filepath.Join(e.env.CrashReproducerDir(), sig)
	if err := osutil.WriteFile(path, data); err != nil {
		log.Logf(0, "failed to save crash reproducer: %v", err)
		return true
	}
	log.Logf(0, "saved crash reproducer to %v", path)
	return true
}

// inputString renders input bytes for the crash log: verbatim when
// fully printable, quoted otherwise.
func inputString(data []byte) string {
	printable := true
	for _, b := range data {
		if b < 0x20 || b >= 0x7f {
			printable = false
			break
		}
	}
	if printable {
		return string(data)
	}
	return strconv.Quote(string(data))
}
