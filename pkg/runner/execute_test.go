// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessExecutor(t *testing.T) {
	target := func(s *State, data []byte) error {
		for _, b := range data {
			s.TraceEdge(uint64(b) % 4)
		}
		return nil
	}
	execute := NewInProcessExecutor(target, 4, 0)
	br := execute("", [][]byte{{0, 1}, {2}}, time.Minute)
	require.True(t, br.OK())
	require.Equal(t, 2, br.NumOutputsRead)
	require.Len(t, br.Results, 2)
	assert.Len(t, br.Results[0].Features, 2)
	assert.Len(t, br.Results[1].Features, 1)
	// The state is reset between inputs: the second input's features do
	// not include the first input's edges.
	assert.NotEqual(t, br.Results[0].Features, br.Results[1].Features)
}

func TestInProcessExecutorCrash(t *testing.T) {
	target := func(s *State, data []byte) error {
		if len(data) != 0 && data[0] == 42 {
			return errors.New("boom")
		}
		s.TraceEdge(0)
		return nil
	}
	execute := NewInProcessExecutor(target, 1, 0)
	br := execute("", [][]byte{{1}, {42}, {2}}, time.Minute)
	assert.False(t, br.OK())
	assert.Equal(t, 1, br.ExitCode)
	assert.Equal(t, "boom", br.Log)
	assert.Equal(t, 1, br.NumOutputsRead)
	assert.Len(t, br.Results, 1)
}

func TestInProcessExecutorTimeout(t *testing.T) {
	target := func(s *State, data []byte) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	execute := NewInProcessExecutor(target, 1, 0)
	br := execute("", [][]byte{{1}, {2}}, time.Millisecond)
	assert.False(t, br.OK())
	assert.Equal(t, "failure description: timeout-exceeded", br.Log)
	assert.Equal(t, 1, br.NumOutputsRead)
}

func writeScript(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestCommandExecutor(t *testing.T) {
	binary := writeScript(t, "ok.sh", "exit 0")
	execute := NewCommandExecutor(t.TempDir())
	br := execute(binary, [][]byte{{1}, {2}}, time.Minute)
	require.True(t, br.OK())
	assert.Equal(t, 2, br.NumOutputsRead)
	require.Len(t, br.Results, 2)
	// Uninstrumented targets report no features.
	assert.Empty(t, br.Results[0].Features)
}

func TestCommandExecutorCrash(t *testing.T) {
	binary := writeScript(t, "crash.sh", "echo boom; exit 7")
	execute := NewCommandExecutor(t.TempDir())
	br := execute(binary, [][]byte{{1}}, time.Minute)
	assert.False(t, br.OK())
	assert.Equal(t, 7, br.ExitCode)
	assert.Contains(t, br.Log, "boom")
	assert.Equal(t, 0, br.NumOutputsRead)
}
