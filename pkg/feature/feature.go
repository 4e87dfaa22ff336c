// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package feature defines execution features and their accounting.
//
// A feature is a 64-bit fingerprint of one execution phenomenon: an edge
// counter reaching a value bucket, a load from a global, a comparison, a
// bounded path through the program. The 64-bit space is partitioned into
// equal fixed-size domains so that unrelated instrumentation sources never
// collide and can be weighted separately.
package feature

import (
	"github.com/centipede-fuzz/centipede/pkg/log"
)

type Feature uint64

// Vec is an ordered sequence of features with no duplicates per input.
type Vec []Feature

// Domain identifies a disjoint numeric range of the feature space.
type Domain int

const (
	Unknown Domain = iota
	Counters8Bit
	DataFlow
	CMP
	BoundedPath
	NumDomains
)

var domainNames = [NumDomains]string{
	Unknown:      "unknown",
	Counters8Bit: "8bit-counters",
	DataFlow:     "data-flow",
	CMP:          "cmp",
	BoundedPath:  "bounded-path",
}

func (d Domain) String() string {
	return domainNames[d]
}

const domainSize = uint64(1) << 40

// Begin returns the first feature of the domain.
func (d Domain) Begin() Feature {
	return Feature(uint64(d) * domainSize)
}

// Size returns the capacity of the domain.
func (d Domain) Size() uint64 {
	return domainSize
}

// ConvertToMe maps an arbitrary 64-bit value into the domain's range.
func (d Domain) ConvertToMe(x uint64) Feature {
	return d.Begin() + Feature(x%domainSize)
}

// Contains reports whether f belongs to the domain.
func (d Domain) Contains(f Feature) bool {
	return f >= d.Begin() && uint64(f) < uint64(d.Begin())+domainSize
}

// DomainOf returns the domain a feature belongs to.
// Features past the last domain fold into Unknown.
func DomainOf(f Feature) Domain {
	d := Domain(uint64(f) / domainSize)
	if d >= NumDomains {
		return Unknown
	}
	return d
}

// numCounterBuckets is the number of buckets a counter value maps to.
const numCounterBuckets = 8

// CounterBucket maps an 8-bit edge counter value to its bucket:
// 1, 2, 3, 4-7, 8-15, 16-31, 32-127, 128-255.
func CounterBucket(counter uint8) uint64 {
	switch {
	case counter == 0:
		log.Fatalf("zero counter has no bucket")
		return 0
	case counter <= 3:
		return uint64(counter) - 1
	case counter <= 7:
		return 3
	case counter <= 15:
		return 4
	case counter <= 31:
		return 5
	case counter <= 127:
		return 6
	default:
		return 7
	}
}

// FromPCIndexAndCounter encodes an edge counter observation as a feature
// in the Counters8Bit domain.
func FromPCIndexAndCounter(pcIndex uint64, counter uint8) Feature {
	return Counters8Bit.ConvertToMe(pcIndex*numCounterBuckets + CounterBucket(counter))
}

// PCIndex recovers the PC table index from a Counters8Bit feature.
func (f Feature) PCIndex() uint64 {
	if !Counters8Bit.Contains(f) {
		log.Fatalf("feature %v is not a counter feature", uint64(f))
	}
	return uint64(f-Counters8Bit.Begin()) / numCounterBuckets
}
