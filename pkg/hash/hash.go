// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash computes stable identities of fuzzing inputs.
// Input hashes name crash reproducers and corpus-dir files, and glue
// feature records to corpus records across append-only shard files.
package hash

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

type Sig [sha1.Size]byte

// HexLen is the length of Sig.String().
const HexLen = 2 * sha1.Size

func Hash(pieces ...[]byte) Sig {
	h := sha1.New()
	for _, data := range pieces {
		h.Write(data)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig
}

func String(pieces ...[]byte) string {
	sig := Hash(pieces...)
	return sig.String()
}

func (sig Sig) String() string {
	return hex.EncodeToString(sig[:])
}

func FromString(str string) (Sig, error) {
	bin, err := hex.DecodeString(str)
	if err != nil {
		return Sig{}, fmt.Errorf("failed to decode sig %q: %w", str, err)
	}
	if len(bin) != len(Sig{}) {
		return Sig{}, fmt.Errorf("failed to decode sig %q: bad len", str)
	}
	var sig Sig
	copy(sig[:], bin)
	return sig, nil
}
