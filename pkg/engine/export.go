// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/centipede-fuzz/centipede/pkg/blobfile"
	"github.com/centipede-fuzz/centipede/pkg/environ"
	"github.com/centipede-fuzz/centipede/pkg/hash"
	"github.com/centipede-fuzz/centipede/pkg/log"
	"github.com/centipede-fuzz/centipede/pkg/osutil"
)

// ExportCorpusFromLocalDir distributes seed files from local dirs over
// the shard corpus files, keyed by file name hash so seeds with the
// same name land in the same shard no matter which dir provided them.
// Seeds whose content hash the shard already holds are skipped.
func ExportCorpusFromLocalDir(env *environ.Environment, dirs []string) error {
	known := make([]map[hash.Sig]bool, env.TotalShards)
	writers := make([]*blobfile.Writer, env.TotalShards)
	for shard := range writers {
		existing, err := blobfile.ReadAll(env.CorpusPath(shard))
		if err != nil {
			return err
		}
		known[shard] = make(map[hash.Sig]bool, len(existing))
		for _, data := range existing {
			known[shard][hash.Hash(data)] = true
		}
		w, err := blobfile.NewWriter(env.CorpusPath(shard))
		if err != nil {
			return err
		}
		defer w.Close()
		writers[shard] = w
	}
	exported, skipped := 0, 0
	for _, dir := range dirs {
		files, err := osutil.ListDir(dir)
		if err != nil {
			return fmt.Errorf("failed to list corpus dir: %w", err)
		}
		for _, file := range files {
			data, err := os.ReadFile(filepath.Join(dir, file))
			if err != nil {
				return err
			}
			shard := int(binaryFirstUint64(hash.Hash([]byte(file))) % uint64(env.TotalShards))
			sig := hash.Hash(data)
			if known[shard][sig] {
				skipped++
				continue
			}
			known[shard][sig] = true
			if err := writers[shard].Write(data); err != nil {
				return err
			}
			exported++
		}
	}
	log.Logf(0, "exported %v seed inputs over %v shards, %v already present",
		exported, env.TotalShards, skipped)
	return nil
}

func binaryFirstUint64(sig hash.Sig) uint64 {
	v := uint64(0)
	for _, b := range sig[:8] {
		v = v<<8 | uint64(b)
	}
	return v
}

// SaveCorpusToLocalDir unpacks every shard's corpus into hash-named
// files under dir.
func SaveCorpusToLocalDir(env *environ.Environment, dir string) error {
	if err := osutil.MkdirAll(dir); err != nil {
		return err
	}
	saved := 0
	for shard := 0; shard < env.TotalShards; shard++ {
		inputs, err := blobfile.ReadAll(env.CorpusPath(shard))
		if err != nil {
			return err
		}
		for _, data := range inputs {
			if err := osutil.WriteFile(filepath.Join(dir, hash.String(data)), data); err != nil {
				return err
			}
			saved++
		}
	}
	log.Logf(0, "saved %v corpus inputs to %v", saved, dir)
	return nil
}

// ExportCorpusArchive writes every shard's corpus as an xz-compressed
// tar archive of hash-named entries.
func ExportCorpusArchive(env *environ.Environment, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	xzw, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(xzw)
	for shard := 0; shard < env.TotalShards; shard++ {
		inputs, err := blobfile.ReadAll(env.CorpusPath(shard))
		if err != nil {
			return err
		}
		for _, data := range inputs {
			hdr := &tar.Header{
				Name: hash.String(data),
				Mode: 0644,
				Size: int64(len(data)),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if _, err := tw.Write(data); err != nil {
				return err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return xzw.Close()
}
