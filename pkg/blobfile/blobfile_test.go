// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package blobfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs")
	w, err := NewWriter(path)
	require.NoError(t, err)
	blobs := [][]byte{{1, 2, 3}, {}, {0xff}}
	for _, blob := range blobs {
		require.NoError(t, w.Write(blob))
	}
	require.NoError(t, w.Close())

	got, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, got, len(blobs))
	assert.Equal(t, []byte{1, 2, 3}, got[0])
	assert.Empty(t, got[1])
	assert.Equal(t, []byte{0xff}, got[2])
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs")
	for i := byte(0); i < 3; i++ {
		w, err := NewWriter(path)
		require.NoError(t, err)
		require.NoError(t, w.Write([]byte{i}))
		require.NoError(t, w.Close())
	}
	got, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0}, {1}, {2}}, got)
}

func TestTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte{1, 2}))
	require.NoError(t, w.Write([]byte{3, 4, 5}))
	require.NoError(t, w.Close())

	// Chop the last record mid-payload: readers must see only the
	// complete prefix.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-2], 0644))

	got, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2}}, got)
}

func TestCorruptMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs")
	require.NoError(t, os.WriteFile(path, []byte("not a blob file at all"), 0644))
	got, err := ReadAll(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Read()
	assert.Equal(t, io.EOF, err)
}

func TestMissingFile(t *testing.T) {
	got, err := ReadAll(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
