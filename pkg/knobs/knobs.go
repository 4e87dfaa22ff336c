// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package knobs controls the randomized choices made by the engine.
//
// Knobs is a fixed-size array of named bytes loaded at startup (or left
// zero). A knob value biases one randomized decision: a probability
// weight, a strategy selector, a repetition count. IDs are allocated as
// file-scope globals via NewID, so the allocation is stable between runs
// of the same binary.
package knobs

import (
	"github.com/centipede-fuzz/centipede/pkg/log"
)

// NumKnobs is the total number of knobs. Kept small-ish for now.
const NumKnobs = 32

// ID names one knob. Create as a package-level variable:
//
//	var knobWeightOfFoo = knobs.NewID("weight_of_foo")
type ID struct {
	id int
}

var (
	nextID int
	names  [NumKnobs]string
)

// NewID allocates a process-global knob id. Must be called at process
// startup, before the fuzzing loop begins.
func NewID(name string) ID {
	if nextID >= NumKnobs {
		log.Fatalf("out of knob ids registering %q", name)
	}
	id := ID{id: nextID}
	names[nextID] = name
	nextID++
	return id
}

// Name returns the name associated with the id.
func Name(id ID) string {
	return names[id.id]
}

// Knobs holds the current knob values.
type Knobs struct {
	values [NumKnobs]byte
}

// SetAll sets every knob to the same value.
func (k *Knobs) SetAll(value byte) {
	for i := range k.values {
		k.values[i] = value
	}
}

// Set loads knob values from a slice. If the slice is shorter than
// NumKnobs, only that many knobs are set.
func (k *Knobs) Set(values []byte) {
	copy(k.values[:], values)
}

// Value returns the value of the knob.
func (k *Knobs) Value(id ID) byte {
	if id.id >= NumKnobs {
		log.Fatalf("knob id %v is out of range", id.id)
	}
	return k.values[id.id]
}

// ForEachKnob calls cb for every registered knob.
func (k *Knobs) ForEachKnob(cb func(name string, value byte)) {
	for i := 0; i < nextID; i++ {
		cb(names[i], k.values[i])
	}
}

// Choose returns one of choices, using the knob values of ids as
// probability weights. If all weights are zero the choice is uniform.
// ids and choices must be non-empty and of equal length.
func Choose[T any](k *Knobs, ids []ID, choices []T, random uint64) T {
	if len(choices) == 0 || len(ids) != len(choices) {
		log.Fatalf("choosing between %v choices with %v knobs", len(choices), len(ids))
	}
	sum := uint64(0)
	for _, id := range ids {
		sum += uint64(k.Value(id))
	}
	if sum == 0 {
		return choices[random%uint64(len(choices))]
	}
	random %= sum
	partialSum := uint64(0)
	for i, id := range ids {
		partialSum += uint64(k.Value(id))
		if partialSum > random {
			return choices[i]
		}
	}
	panic("unreachable")
}

// GenerateBool chooses between two strategies. Knob values 0 and 255
// return the default, 1 returns false, 254 returns true, and values in
// [2, 253] map linearly to the probability of returning true.
func (k *Knobs) GenerateBool(id ID, defaultValue bool, random uint64) bool {
	value := k.Value(id)
	switch value {
	case 0, 255:
		return defaultValue
	case 1:
		return false
	case 254:
		return true
	}
	// 252 knob values remain, value is in [2, 253].
	return random%252 <= uint64(value-2)
}
