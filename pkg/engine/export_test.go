// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/centipede-fuzz/centipede/pkg/blobfile"
	"github.com/centipede-fuzz/centipede/pkg/hash"
)

func TestExportCorpusFromLocalDir(t *testing.T) {
	env := testEnv(t)
	env.TotalShards = 3
	seedDir := t.TempDir()
	seeds := map[string][]byte{
		"seed-a": []byte("one"),
		"seed-b": []byte("two"),
		"seed-c": []byte("three"),
		"seed-d": []byte("four"),
	}
	nameOf := map[string]string{}
	for name, seed := range seeds {
		require.NoError(t, os.WriteFile(filepath.Join(seedDir, name), seed, 0644))
		nameOf[string(seed)] = name
	}
	require.NoError(t, ExportCorpusFromLocalDir(env, []string{seedDir}))

	found := map[string]int{}
	for shard := 0; shard < env.TotalShards; shard++ {
		inputs, err := blobfile.ReadAll(env.CorpusPath(shard))
		require.NoError(t, err)
		for _, data := range inputs {
			found[string(data)]++
			name := nameOf[string(data)]
			want := int(binaryFirstUint64(hash.Hash([]byte(name))) % uint64(env.TotalShards))
			assert.Equal(t, want, shard, "input %q in wrong shard", data)
		}
	}
	require.Len(t, found, len(seeds))
	for _, seed := range seeds {
		assert.Equal(t, 1, found[string(seed)])
	}

	// A second export skips everything that is already present.
	require.NoError(t, ExportCorpusFromLocalDir(env, []string{seedDir}))
	total := 0
	for shard := 0; shard < env.TotalShards; shard++ {
		inputs, err := blobfile.ReadAll(env.CorpusPath(shard))
		require.NoError(t, err)
		total += len(inputs)
	}
	assert.Equal(t, len(seeds), total)

	// A same-named seed with new content from another dir lands in the
	// same shard as the original because placement is keyed by file name.
	otherDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(otherDir, "seed-a"), []byte("five"), 0644))
	require.NoError(t, ExportCorpusFromLocalDir(env, []string{otherDir}))
	wantShard := int(binaryFirstUint64(hash.Hash([]byte("seed-a"))) % uint64(env.TotalShards))
	inputs, err := blobfile.ReadAll(env.CorpusPath(wantShard))
	require.NoError(t, err)
	assert.Contains(t, inputs, []byte("five"))
}

func TestSaveCorpusToLocalDir(t *testing.T) {
	env := testEnv(t)
	w, err := blobfile.NewWriter(env.CorpusPath(0))
	require.NoError(t, err)
	inputs := [][]byte{[]byte("aa"), []byte("bb")}
	for _, data := range inputs {
		require.NoError(t, w.Write(data))
	}
	require.NoError(t, w.Close())

	dir := filepath.Join(t.TempDir(), "saved")
	require.NoError(t, SaveCorpusToLocalDir(env, dir))
	for _, data := range inputs {
		got, err := os.ReadFile(filepath.Join(dir, hash.String(data)))
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestExportCorpusArchive(t *testing.T) {
	env := testEnv(t)
	w, err := blobfile.NewWriter(env.CorpusPath(0))
	require.NoError(t, err)
	inputs := [][]byte{[]byte("aa"), []byte("bb")}
	for _, data := range inputs {
		require.NoError(t, w.Write(data))
	}
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "corpus.tar.xz")
	require.NoError(t, ExportCorpusArchive(env, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	xzr, err := xz.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(xzr)
	entries := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = data
	}
	require.Len(t, entries, len(inputs))
	for _, data := range inputs {
		assert.Equal(t, data, entries[hash.String(data)])
	}
}
