// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"encoding/binary"

	"github.com/centipede-fuzz/centipede/pkg/blobfile"
	"github.com/centipede-fuzz/centipede/pkg/environ"
	"github.com/centipede-fuzz/centipede/pkg/feature"
	"github.com/centipede-fuzz/centipede/pkg/hash"
	"github.com/centipede-fuzz/centipede/pkg/log"
)

// A features record re-associates a feature vector with its corpus
// record across files: the input's hash followed by the packed vector.

// PackFeatures encodes a features record for the input with the given
// feature vector.
func PackFeatures(data []byte, features feature.Vec) []byte {
	sig := hash.Hash(data)
	blob := make([]byte, len(sig)+8*len(features))
	copy(blob, sig[:])
	for i, f := range features {
		binary.LittleEndian.PutUint64(blob[len(sig)+8*i:], uint64(f))
	}
	return blob
}

// UnpackFeatures decodes a features record. ok is false for records too
// short to carry a hash or with a misaligned vector.
func UnpackFeatures(blob []byte) (sig hash.Sig, features feature.Vec, ok bool) {
	if len(blob) < len(sig) || (len(blob)-len(sig))%8 != 0 {
		return sig, nil, false
	}
	copy(sig[:], blob)
	for rest := blob[len(sig):]; len(rest) != 0; rest = rest[8:] {
		features = append(features, feature.Feature(binary.LittleEndian.Uint64(rest)))
	}
	return sig, features, true
}

// shardFiles is one shard's view of another shard's append-only pair.
type shardFiles struct {
	// inputs holds the corpus records in file order.
	inputs [][]byte
	// features maps input hash to the recorded feature vector. An
	// input present in inputs but absent here has not been re-run by
	// its owner yet.
	features map[hash.Sig]feature.Vec
}

// readShardFiles loads whatever complete records both files of the
// shard currently hold. Missing files read as empty, so a peer that has
// not started yet contributes nothing.
func readShardFiles(env *environ.Environment, shard int) (*shardFiles, error) {
	inputs, err := blobfile.ReadAll(env.CorpusPath(shard))
	if err != nil {
		return nil, err
	}
	blobs, err := blobfile.ReadAll(env.FeaturesPath(shard))
	if err != nil {
		return nil, err
	}
	sf := &shardFiles{
		inputs:   inputs,
		features: make(map[hash.Sig]feature.Vec, len(blobs)),
	}
	for _, blob := range blobs {
		sig, vec, ok := UnpackFeatures(blob)
		if !ok {
			log.Logf(1, "skipping malformed features record of %v bytes in shard %v", len(blob), shard)
			continue
		}
		sf.features[sig] = vec
	}
	return sf, nil
}
