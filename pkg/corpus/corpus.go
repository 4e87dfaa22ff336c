// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus keeps the live set of fuzzing inputs together with their
// features and a weighted distribution used for sampling.
package corpus

import (
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/centipede-fuzz/centipede/pkg/feature"
	"github.com/centipede-fuzz/centipede/pkg/log"
)

// Record is one corpus entry: the input bytes, the features the input
// exercised, and an opaque cmp-args blob for the mutator's dictionary.
type Record struct {
	Data     []byte
	Features feature.Vec
	CmpArgs  []byte
}

// Frontier scores covered PCs that border uncovered code.
// A nil Frontier contributes no bonus weight.
type Frontier interface {
	PcIndexIsFrontier(pcIndex uint64) bool
	FrontierWeight(pcIndex uint64) uint64
}

// Corpus is the ordered list of live records plus their sampling weights.
// Records removed by Prune are gone; NumTotal still counts them.
type Corpus struct {
	records  []Record
	weights  *WeightedDistribution
	numTotal int
}

func New() *Corpus {
	return &Corpus{weights: NewWeightedDistribution()}
}

// Add appends an active record. Its initial weight is the feature weight
// plus the frontier bonus of its covered frontier PCs.
func (c *Corpus) Add(data []byte, features feature.Vec, cmpArgs []byte,
	fs *feature.Set, frontier Frontier) {
	c.records = append(c.records, Record{
		Data:     data,
		Features: features,
		CmpArgs:  cmpArgs,
	})
	c.weights.AddWeight(recordWeight(features, fs, frontier))
	c.numTotal++
}

func recordWeight(features feature.Vec, fs *feature.Set, frontier Frontier) uint64 {
	weight := uint64(fs.ComputeWeight(features))
	if frontier == nil {
		return weight
	}
	for _, f := range features {
		if !feature.Counters8Bit.Contains(f) {
			continue
		}
		if pc := f.PCIndex(); frontier.PcIndexIsFrontier(pc) {
			weight += frontier.FrontierWeight(pc)
		}
	}
	return weight
}

// Prune removes every record all of whose features are now frequent,
// then removes random records until at most maxCorpusSize remain.
// Returns the number of records removed. NumTotal is unchanged.
func (c *Corpus) Prune(fs *feature.Set, frontier Frontier, maxCorpusSize int, rnd *rand.Rand) int {
	if maxCorpusSize == 0 {
		log.Fatalf("pruning to an empty corpus")
	}
	numBefore := len(c.records)
	survivors := c.records[:0]
	c.weights.Clear()
	for _, rec := range c.records {
		if fs.AllFrequent(rec.Features) {
			continue
		}
		survivors = append(survivors, rec)
		c.weights.AddWeight(recordWeight(rec.Features, fs, frontier))
	}
	c.records = survivors
	for len(c.records) > maxCorpusSize {
		idx := c.randomPositiveWeightIndex(rnd)
		last := len(c.records) - 1
		c.records[idx] = c.records[last]
		c.records = c.records[:last]
		c.weights.ChangeWeight(idx, c.weights.Weight(last))
		c.weights.PopBack()
	}
	c.weights.RecomputeInternalState()
	return numBefore - len(c.records)
}

func (c *Corpus) randomPositiveWeightIndex(rnd *rand.Rand) int {
	n := len(c.records)
	for attempt := 0; attempt < 10*n; attempt++ {
		idx := rnd.Intn(n)
		if c.weights.Weight(idx) > 0 {
			return idx
		}
	}
	// Only zero-weight records remain, any of them will do.
	return rnd.Intn(n)
}

func (c *Corpus) NumActive() int {
	return len(c.records)
}

func (c *Corpus) NumTotal() int {
	return c.numTotal
}

func (c *Corpus) Get(idx int) []byte {
	return c.records[idx].Data
}

func (c *Corpus) GetCmpArgs(idx int) []byte {
	return c.records[idx].CmpArgs
}

func (c *Corpus) GetFeatures(idx int) feature.Vec {
	return c.records[idx].Features
}

// WeightedRandomIndex returns an active record index sampled
// proportionally to record weights. When every record weighs zero the
// index is sampled uniformly.
func (c *Corpus) WeightedRandomIndex(r uint64) int {
	if n := len(c.weights.sums); n != 0 && c.weights.sums[n-1] == 0 {
		return c.UniformRandomIndex(r)
	}
	return c.weights.RandomIndex(r)
}

// UniformRandomIndex returns a uniformly sampled active record index.
func (c *Corpus) UniformRandomIndex(r uint64) int {
	return int(r % uint64(len(c.records)))
}

// WeightedRandom returns the data of a record sampled proportionally to
// record weights.
func (c *Corpus) WeightedRandom(r uint64) []byte {
	return c.records[c.WeightedRandomIndex(r)].Data
}

// UniformRandom returns the data of a uniformly sampled record.
func (c *Corpus) UniformRandom(r uint64) []byte {
	return c.records[c.UniformRandomIndex(r)].Data
}

// MaxAndAvgSize returns the maximum and average data size of active records.
func (c *Corpus) MaxAndAvgSize() (int, int) {
	if len(c.records) == 0 {
		return 0, 0
	}
	maxSize, total := 0, 0
	for _, rec := range c.records {
		if len(rec.Data) > maxSize {
			maxSize = len(rec.Data)
		}
		total += len(rec.Data)
	}
	return maxSize, total / len(c.records)
}

// PrintStats writes a JSON document describing every active record:
// its feature count and the current frequency of each of its features.
func (c *Corpus) PrintStats(w io.Writer, fs *feature.Set) error {
	var sb strings.Builder
	sb.WriteString("{ \"corpus_stats\": [")
	for i, rec := range c.records {
		if i != 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n  ")
		freqs := make([]string, len(rec.Features))
		for k, f := range rec.Features {
			freqs[k] = fmt.Sprint(fs.Frequency(f))
		}
		fmt.Fprintf(&sb, "{\"size\": %v, \"frequencies\": [%v]}",
			len(rec.Features), strings.Join(freqs, ", "))
	}
	sb.WriteString("]}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
