// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutator implements the default byte-array mutator used when
// no external Mutate hook is injected.
//
// Each mutation applies one strategy chosen by knob-weighted selection:
// flip a bit, overwrite a byte, erase a range, insert random bytes,
// cross over with another batch member, or overwrite bytes with an
// operand from the comparison dictionary the runner collected.
package mutator

import (
	"bytes"
	"math/rand"

	"github.com/centipede-fuzz/centipede/pkg/knobs"
)

var (
	knobFlipBit       = knobs.NewID("mutate_flip_bit")
	knobOverwriteByte = knobs.NewID("mutate_overwrite_byte")
	knobEraseBytes    = knobs.NewID("mutate_erase_bytes")
	knobInsertBytes   = knobs.NewID("mutate_insert_bytes")
	knobCrossover     = knobs.NewID("mutate_crossover")
	knobDictionary    = knobs.NewID("mutate_dictionary")
)

var strategyKnobs = []knobs.ID{
	knobFlipBit,
	knobOverwriteByte,
	knobEraseBytes,
	knobInsertBytes,
	knobCrossover,
	knobDictionary,
}

const (
	// maxInsertSize bounds one insertion so inputs grow gradually.
	maxInsertSize = 16
	// maxDictEntries bounds the dictionary; old entries are evicted
	// in FIFO order.
	maxDictEntries = 1024
)

type dictEntry struct {
	a, b []byte
}

// Mutator mutates batches of byte inputs in place.
type Mutator struct {
	rnd   *rand.Rand
	knobs *knobs.Knobs
	dict  []dictEntry
}

// New creates a mutator with its own RNG stream.
func New(seed uint64, k *knobs.Knobs) *Mutator {
	return &Mutator{
		rnd:   rand.New(rand.NewSource(int64(seed))),
		knobs: k,
	}
}

// AddCmpDictionary merges a packed cmp-args blob into the dictionary.
// The blob is repeated records of a length byte followed by the two
// operands of that length; a malformed tail is ignored.
func (m *Mutator) AddCmpDictionary(cmpArgs []byte) {
	for len(cmpArgs) > 0 {
		n := int(cmpArgs[0])
		if n == 0 || len(cmpArgs) < 1+2*n {
			return
		}
		m.dict = append(m.dict, dictEntry{
			a: append([]byte(nil), cmpArgs[1:1+n]...),
			b: append([]byte(nil), cmpArgs[1+n:1+2*n]...),
		})
		cmpArgs = cmpArgs[1+2*n:]
	}
	if len(m.dict) > maxDictEntries {
		m.dict = m.dict[len(m.dict)-maxDictEntries:]
	}
}

type strategy func(m *Mutator, data, other []byte) []byte

// MutateBatch replaces every batch element with a mutant of itself,
// preserving the batch length. Crossover partners come from the batch.
func (m *Mutator) MutateBatch(batch [][]byte) {
	for i, data := range batch {
		other := batch[m.rnd.Intn(len(batch))]
		batch[i] = m.Mutate(data, other)
	}
}

// Mutate returns a mutant of data. other is the crossover partner and
// may be empty.
func (m *Mutator) Mutate(data, other []byte) []byte {
	data = append([]byte(nil), data...)
	strategies := []strategy{
		(*Mutator).flipBit,
		(*Mutator).overwriteByte,
		(*Mutator).eraseBytes,
		(*Mutator).insertBytes,
		(*Mutator).crossover,
		(*Mutator).overwriteFromDictionary,
	}
	s := knobs.Choose(m.knobs, strategyKnobs, strategies, m.rnd.Uint64())
	mutant := s(m, data, other)
	if len(mutant) == 0 {
		mutant = []byte{byte(m.rnd.Intn(256))}
	}
	return mutant
}

func (m *Mutator) flipBit(data, other []byte) []byte {
	if len(data) == 0 {
		return data
	}
	pos := m.rnd.Intn(len(data) * 8)
	data[pos/8] ^= 1 << (pos % 8)
	return data
}

func (m *Mutator) overwriteByte(data, other []byte) []byte {
	if len(data) == 0 {
		return data
	}
	data[m.rnd.Intn(len(data))] = byte(m.rnd.Intn(256))
	return data
}

func (m *Mutator) eraseBytes(data, other []byte) []byte {
	if len(data) <= 1 {
		return data
	}
	n := 1 + m.rnd.Intn(len(data)-1)
	pos := m.rnd.Intn(len(data) - n + 1)
	return append(data[:pos], data[pos+n:]...)
}

func (m *Mutator) insertBytes(data, other []byte) []byte {
	n := 1 + m.rnd.Intn(maxInsertSize)
	chunk := make([]byte, n)
	for i := range chunk {
		chunk[i] = byte(m.rnd.Intn(256))
	}
	pos := m.rnd.Intn(len(data) + 1)
	data = append(data, chunk...)
	copy(data[pos+n:], data[pos:])
	copy(data[pos:], chunk)
	return data
}

// crossover overwrites a range of data with a range of other.
func (m *Mutator) crossover(data, other []byte) []byte {
	if len(data) == 0 || len(other) == 0 {
		return m.overwriteByte(data, other)
	}
	n := 1 + m.rnd.Intn(min(len(data), len(other)))
	dst := m.rnd.Intn(len(data) - n + 1)
	src := m.rnd.Intn(len(other) - n + 1)
	copy(data[dst:dst+n], other[src:src+n])
	return data
}

// overwriteFromDictionary picks a random dictionary entry and direction;
// if the chosen operand occurs in data, that occurrence is overwritten
// with the counterpart operand. Otherwise the counterpart overwrites data
// at a random position, truncated to fit; the length never changes.
func (m *Mutator) overwriteFromDictionary(data, other []byte) []byte {
	if len(m.dict) == 0 || len(data) == 0 {
		return m.overwriteByte(data, other)
	}
	entry := m.dict[m.rnd.Intn(len(m.dict))]
	from, to := entry.a, entry.b
	if m.rnd.Intn(2) == 0 {
		from, to = to, from
	}
	if pos := bytes.Index(data, from); pos >= 0 && pos+len(to) <= len(data) {
		copy(data[pos:], to)
		return data
	}
	if len(to) > len(data) {
		to = to[:len(data)]
	}
	pos := m.rnd.Intn(len(data) - len(to) + 1)
	copy(data[pos:], to)
	return data
}
