// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/centipede-fuzz/centipede/pkg/osutil"
)

// Target is an in-process fuzz target. It receives the instrumentation
// state to trace into and the input bytes, and returns a non-nil error
// to report a crash.
type Target func(s *State, data []byte) error

// NewInProcessExecutor adapts a Target into an Execute hook. Inputs run
// one at a time against a fresh state; a target error stops the batch
// with the results collected so far. The batch as a whole is bounded by
// the timeout, reported as "failure description: timeout-exceeded" in
// the log.
func NewInProcessExecutor(target Target, numPCs, pathLevel int) func(binary string, inputs [][]byte, timeout time.Duration) *BatchResult {
	s := NewState(numPCs, pathLevel)
	return func(binary string, inputs [][]byte, timeout time.Duration) *BatchResult {
		br := &BatchResult{}
		deadline := time.Now().Add(timeout)
		for _, data := range inputs {
			if timeout != 0 && time.Now().After(deadline) {
				br.ExitCode = 1
				br.Log = "failure description: timeout-exceeded"
				return br
			}
			s.Reset()
			if err := target(s, data); err != nil {
				br.ExitCode = 1
				br.Log = err.Error()
				return br
			}
			br.Results = append(br.Results, Result{
				Features: s.Features(),
				CmpArgs:  append([]byte(nil), s.CmpArgs()...),
			})
			br.NumOutputsRead++
		}
		return br
	}
}

// NewCommandExecutor returns an Execute hook that runs the binary once
// per input with the input file path as the sole argument. This is the
// uninstrumented mode: only crashes are observed, feature vectors come
// back empty, so the corpus does not grow beyond the seeds.
func NewCommandExecutor(tmpRoot string) func(binary string, inputs [][]byte, timeout time.Duration) *BatchResult {
	return func(binary string, inputs [][]byte, timeout time.Duration) *BatchResult {
		br := &BatchResult{}
		dir, err := osutil.TempDir(tmpRoot, "centipede-exec")
		if err != nil {
			br.ExitCode = 1
			br.Log = err.Error()
			return br
		}
		defer os.RemoveAll(dir)
		inputFile := filepath.Join(dir, "input")
		for _, data := range inputs {
			if err := osutil.WriteFile(inputFile, data); err != nil {
				br.ExitCode = 1
				br.Log = err.Error()
				return br
			}
			output, err := osutil.RunCmd(timeout, dir, binary, inputFile)
			if err != nil {
				br.ExitCode = exitCode(err)
				br.Log = logWithOutput(err, output)
				return br
			}
			br.Results = append(br.Results, Result{})
			br.NumOutputsRead++
		}
		return br
	}
}

func exitCode(err error) int {
	var verbose *osutil.VerboseError
	if errors.As(err, &verbose) && verbose.ExitCode != 0 {
		return verbose.ExitCode
	}
	return 1
}

func logWithOutput(err error, output []byte) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v", err)
	if len(output) != 0 {
		sb.WriteString("\n")
		sb.Write(output)
	}
	return sb.String()
}
