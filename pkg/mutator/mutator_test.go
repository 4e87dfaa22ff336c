// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipede-fuzz/centipede/pkg/knobs"
)

func TestMutate(t *testing.T) {
	m := New(1, &knobs.Knobs{})
	data := []byte{1, 2, 3, 4}
	changed := false
	for i := 0; i < 100; i++ {
		mutant := m.Mutate(data, []byte{9, 9})
		assert.NotEmpty(t, mutant)
		if !assert.ObjectsAreEqual(data, mutant) {
			changed = true
		}
	}
	assert.True(t, changed)
	// The input itself is never modified.
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestMutateEmptyInput(t *testing.T) {
	m := New(1, &knobs.Knobs{})
	for i := 0; i < 100; i++ {
		assert.NotEmpty(t, m.Mutate(nil, nil))
	}
}

func TestMutateBatch(t *testing.T) {
	m := New(1, &knobs.Knobs{})
	batch := [][]byte{{1, 2}, {3, 4, 5}, {6}}
	m.MutateBatch(batch)
	require.Len(t, batch, 3)
	for _, data := range batch {
		assert.NotEmpty(t, data)
	}
}

// dictionaryOnly weights the strategy knobs so that only the dictionary
// strategy is ever chosen.
func dictionaryOnly() *knobs.Knobs {
	k := &knobs.Knobs{}
	values := make([]byte, len(strategyKnobs))
	values[len(values)-1] = 255
	k.Set(values)
	return k
}

func TestDictionary(t *testing.T) {
	m := New(1, dictionaryOnly())
	a, b := []byte("ABCDEFGH"), []byte("12345678")
	blob := append([]byte{8}, append(append([]byte(nil), a...), b...)...)
	m.AddCmpDictionary(blob)
	require.Len(t, m.dict, 1)
	assert.Equal(t, a, m.dict[0].a)
	assert.Equal(t, b, m.dict[0].b)

	// Mutating the first operand either rewrites it into the second or
	// leaves it as is, depending on the randomly chosen direction.
	sawCounterpart := false
	for i := 0; i < 100; i++ {
		mutant := m.Mutate(a, nil)
		require.Contains(t, [][]byte{a, b}, mutant)
		if assert.ObjectsAreEqual(b, mutant) {
			sawCounterpart = true
		}
	}
	assert.True(t, sawCounterpart)
}

func TestDictionaryMalformed(t *testing.T) {
	m := New(1, dictionaryOnly())
	m.AddCmpDictionary([]byte{8, 1, 2}) // truncated record
	m.AddCmpDictionary([]byte{0, 1, 2}) // zero length
	assert.Empty(t, m.dict)
	// With an empty dictionary the strategy falls back to a byte
	// overwrite and must not panic.
	assert.NotEmpty(t, m.Mutate([]byte{1, 2, 3}, nil))
}

func TestDictionaryEviction(t *testing.T) {
	m := New(1, &knobs.Knobs{})
	entry := make([]byte, 17)
	entry[0] = 8
	for i := 0; i < maxDictEntries+100; i++ {
		entry[1] = byte(i)
		m.AddCmpDictionary(entry)
	}
	assert.Len(t, m.dict, maxDictEntries)
}
