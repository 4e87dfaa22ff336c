// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package engine runs one fuzzing shard: the batched
// sample/mutate/execute/evaluate loop, cross-shard synchronization over
// the append-only workdir files, distillation, merging, and crash
// reporting.
package engine

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/centipede-fuzz/centipede/pkg/blobfile"
	"github.com/centipede-fuzz/centipede/pkg/corpus"
	"github.com/centipede-fuzz/centipede/pkg/coverage"
	"github.com/centipede-fuzz/centipede/pkg/environ"
	"github.com/centipede-fuzz/centipede/pkg/feature"
	"github.com/centipede-fuzz/centipede/pkg/hash"
	"github.com/centipede-fuzz/centipede/pkg/log"
	"github.com/centipede-fuzz/centipede/pkg/osutil"
	"github.com/centipede-fuzz/centipede/pkg/runner"
	"github.com/centipede-fuzz/centipede/pkg/stat"
	"github.com/centipede-fuzz/centipede/pkg/symbolizer"
)

// dummyInput is executed once before fuzzing so the target initializes
// its instrumentation tables.
var dummyInput = []byte{0}

// Engine is one shard's fuzzing state. It owns the FeatureSet, the
// Corpus and the coverage tables; collaborators are passed by reference
// into each call, never stored across each other.
type Engine struct {
	env *environ.Environment
	cb  runner.Callbacks
	rnd *rand.Rand

	fs       *feature.Set
	corpus   *corpus.Corpus
	pcTable  coverage.PCTable
	symbols  *symbolizer.SymbolTable
	frontier *coverage.Frontier
	covLog   *coverage.Logger
	fnFilter *coverage.FunctionFilter

	numRuns         int
	numCrashReports int
	startTime       time.Time

	statRuns    *stat.Val
	statCrashes *stat.Val
	statExecMS  *stat.Val
}

// New builds a shard engine. The workdir layout is created; PC and
// control-flow tables are loaded from the binary workdir when the
// instrumentation pipeline has placed them there, otherwise frontier
// steering is inert.
func New(env *environ.Environment, cb runner.Callbacks) (*Engine, error) {
	if err := env.MakeDirs(); err != nil {
		return nil, err
	}
	seed := env.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	e := &Engine{
		env:       env,
		cb:        cb,
		rnd:       rand.New(rand.NewSource(int64(seed))),
		fs:        feature.NewSet(env.FrequencyThreshold),
		corpus:    corpus.New(),
		startTime: time.Now(),
	}
	e.loadCoverageTables()
	e.statRuns = stat.New("exec total", "Total target executions", stat.Console,
		stat.Rate{}, stat.Prometheus("centipede_exec_total"))
	e.statCrashes = stat.New("crashes", "Crashing batches observed", stat.Console,
		stat.Prometheus("centipede_crashes_total"))
	e.statExecMS = stat.New("batch exec time", "Batch execution time (ms)", stat.All,
		stat.Distribution{})
	stat.New("corpus records", "Active corpus records", stat.Console,
		stat.Prometheus("centipede_corpus_records"),
		func() int { return e.corpus.NumActive() })
	stat.New("features", "Distinct features seen", stat.Console,
		stat.Prometheus("centipede_features"),
		func() int { return e.fs.Size() })
	return e, nil
}

// PCTablePath and CFTablePath are where the instrumentation pipeline
// drops the binary's coverage tables.
func PCTablePath(env *environ.Environment) string {
	return filepath.Join(env.BinaryWorkdir(), "pc_table")
}

func CFTablePath(env *environ.Environment) string {
	return filepath.Join(env.BinaryWorkdir(), "cf_table")
}

func (e *Engine) loadCoverageTables() {
	pcTable, err := coverage.ReadPCTable(PCTablePath(e.env))
	if err != nil {
		log.Logf(1, "no pc table: %v", err)
	}
	e.pcTable = pcTable
	pcs := make([]uint64, len(pcTable))
	for i, pi := range pcTable {
		pcs[i] = pi.PC
	}
	e.symbols, err = symbolizer.LoadSymbols(e.env.Binary, pcs)
	if err != nil {
		log.Logf(1, "symbolization failed: %v", err)
		e.symbols = symbolizer.NewSymbolTable(nil)
	}
	cfTable, err := coverage.ReadCFTable(CFTablePath(e.env))
	if err != nil {
		log.Logf(1, "no cf table: %v", err)
	}
	e.frontier = coverage.NewFrontier(pcTable,
		coverage.NewControlFlowGraph(cfTable), coverage.NewCallGraph(cfTable))
	e.covLog = coverage.NewLogger(pcTable, e.symbols)
	e.fnFilter = coverage.NewFunctionFilter(e.env.FunctionFilter, pcTable, e.symbols)
}

// Run executes the full shard lifetime and returns the process exit
// code: 0 on clean completion, the early-exit code otherwise.
func (e *Engine) Run() int {
	env := e.env
	if err := e.run(); err != nil {
		log.Fatal(err)
	}
	log.Logf(0, "end-fuzz: shard %v of %v, runs %v, corpus %v, features %v, elapsed %v",
		env.MyShardIndex, env.TotalShards, e.numRuns,
		e.corpus.NumActive(), e.fs.Size(), time.Since(e.startTime).Round(time.Second))
	return ExitCode()
}

func (e *Engine) run() error {
	env := e.env
	e.execute([][]byte{dummyInput})
	log.Logf(0, "begin-fuzz: shard %v of %v, binary %v-%v",
		env.MyShardIndex, env.TotalShards, env.BinaryName(), env.BinaryFingerprint())

	corpusFile, err := blobfile.NewWriter(env.CorpusPath(env.MyShardIndex))
	if err != nil {
		return err
	}
	defer corpusFile.Close()
	featuresFile, err := blobfile.NewWriter(env.FeaturesPath(env.MyShardIndex))
	if err != nil {
		return err
	}
	defer featuresFile.Close()

	if err := e.initialLoad(featuresFile); err != nil {
		return err
	}
	if env.MergeFrom != "" {
		if err := e.merge(corpusFile, featuresFile); err != nil {
			return err
		}
	}
	if env.Distill {
		return e.distill()
	}
	if e.corpus.NumActive() == 0 {
		e.corpus.Add(dummyInput, nil, nil, e.fs, e.frontier)
	}

	numBatches := (env.NumRuns + env.BatchSize - 1) / env.BatchSize
	numAdds := 0
	for batchIndex := 0; batchIndex < numBatches && !EarlyExitRequested(); batchIndex++ {
		batch := e.sampleBatch(env.BatchSize)
		if e.cb.Mutate != nil {
			e.cb.Mutate(batch)
		}
		br := e.execute(batch)
		if !br.OK() {
			e.statCrashes.Add(1)
			e.reportCrash(br, batch)
			if env.ExitOnCrash {
				RequestEarlyExit(br.ExitCode)
			}
		}
		e.processResults(batch, br, corpusFile, featuresFile, &numAdds)
		if batchIndex&(batchIndex-1) == 0 {
			e.pulse(batchIndex)
		}
		if env.TotalShards > 1 && env.LoadOtherShardFrequency > 0 &&
			batchIndex%env.LoadOtherShardFrequency == 0 {
			e.loadOtherShard(featuresFile)
		}
	}
	if env.MyShardIndex == 0 {
		e.generateCoverageReport()
	}
	return nil
}

// sampleBatch picks batchSize inputs from the corpus and feeds their
// cmp dictionaries to the mutator.
func (e *Engine) sampleBatch(batchSize int) [][]byte {
	batch := make([][]byte, batchSize)
	for i := range batch {
		var idx int
		if e.env.UseCorpusWeights {
			idx = e.corpus.WeightedRandomIndex(e.rnd.Uint64())
		} else {
			idx = e.corpus.UniformRandomIndex(e.rnd.Uint64())
		}
		batch[i] = e.corpus.Get(idx)
		if e.cb.AddCmpDictionary != nil {
			if cmpArgs := e.corpus.GetCmpArgs(idx); len(cmpArgs) != 0 {
				e.cb.AddCmpDictionary(cmpArgs)
			}
		}
	}
	return batch
}

// execute runs the batch against the primary binary and, concurrently,
// every extra binary. The primary's result supplies the features; any
// failing result is reported, preferring the primary's.
func (e *Engine) execute(batch [][]byte) *runner.BatchResult {
	start := time.Now()
	results := make([]*runner.BatchResult, 1+len(e.env.ExtraBinaries))
	var eg errgroup.Group
	binaries := append([]string{e.env.Binary}, e.env.ExtraBinaries...)
	for i, binary := range binaries {
		i, binary := i, binary
		eg.Go(func() error {
			results[i] = e.cb.Execute(binary, batch, e.env.Timeout())
			return nil
		})
	}
	eg.Wait()
	e.numRuns += len(batch)
	e.statRuns.Add(len(batch))
	e.statExecMS.Add(int(time.Since(start).Milliseconds()))
	br := results[0]
	if br.OK() {
		for i, extra := range results[1:] {
			if !extra.OK() {
				log.Logf(0, "extra binary %v failed with exit code %v",
					binaries[1+i], extra.ExitCode)
				extra.Results = br.Results
				return extra
			}
		}
	}
	return br
}

// processResults evaluates each executed input and appends the keepers
// to the shard files and the corpus, bumping totalAdds per addition.
func (e *Engine) processResults(batch [][]byte, br *runner.BatchResult,
	corpusFile, featuresFile *blobfile.Writer, totalAdds *int) {
	for i, res := range br.Results {
		data := batch[i]
		vec := res.Features
		unseen := e.fs.CountUnseenAndPruneFrequentFeatures(&vec)
		if unseen == 0 {
			continue
		}
		if e.cb.InputFilter != nil && !e.cb.InputFilter(data) {
			log.Logf(1, "input filter rejected %v byte input %v", len(data), hash.String(data))
			continue
		}
		e.fs.IncrementFrequencies(vec)
		for _, f := range vec {
			e.covLog.LogIfNew(f)
		}
		if err := corpusFile.Write(data); err != nil {
			log.Logf(0, "failed to append to corpus file: %v", err)
			return
		}
		if err := featuresFile.Write(PackFeatures(data, vec)); err != nil {
			log.Logf(0, "failed to append to features file: %v", err)
			return
		}
		if !e.fnFilter.Pass(vec) {
			continue
		}
		e.corpus.Add(data, vec, res.CmpArgs, e.fs, e.frontier)
		*totalAdds++
		if e.env.PruneFrequency > 0 && *totalAdds%e.env.PruneFrequency == 0 {
			e.frontier.Compute(e.corpus)
			pruned := e.corpus.Prune(e.fs, e.frontier, e.env.MaxCorpusSize, e.rnd)
			log.Logf(1, "pruned %v records, %v active", pruned, e.corpus.NumActive())
		}
	}
}

// initialLoad populates the FeatureSet and Corpus from the shard files.
// With full_sync or when distilling every shard is loaded in a random
// order, otherwise only our own; records without a features record yet
// are re-executed in batches and their features appended.
func (e *Engine) initialLoad(featuresFile *blobfile.Writer) error {
	env := e.env
	if env.FullSync || env.Distill {
		for _, shard := range e.rnd.Perm(env.TotalShards) {
			rerun := shard == env.MyShardIndex
			if err := e.loadShard(shard, rerun, featuresFile); err != nil {
				return err
			}
		}
		return nil
	}
	return e.loadShard(env.MyShardIndex, true, featuresFile)
}

// loadShard absorbs one shard's files. rerun re-executes records whose
// features are not on disk yet and appends the outcome to our features
// file.
func (e *Engine) loadShard(shard int, rerun bool, featuresFile *blobfile.Writer) error {
	sf, err := readShardFiles(e.env, shard)
	if err != nil {
		return err
	}
	var unknown [][]byte
	loaded := 0
	for _, data := range sf.inputs {
		vec, ok := sf.features[hash.Hash(data)]
		if !ok {
			if rerun {
				unknown = append(unknown, data)
			}
			continue
		}
		if e.addLoadedRecord(data, vec) {
			loaded++
		}
	}
	log.Logf(1, "loaded shard %v: %v inputs, %v contributed, %v unknown",
		shard, len(sf.inputs), loaded, len(unknown))
	if rerun && len(unknown) != 0 {
		e.rerunUnknowns(unknown, featuresFile)
	}
	return nil
}

// addLoadedRecord feeds a loaded (input, features) pair through the
// same evaluation as a fresh execution, minus the shard-file append.
func (e *Engine) addLoadedRecord(data []byte, vec feature.Vec) bool {
	if e.fs.CountUnseenAndPruneFrequentFeatures(&vec) == 0 {
		return false
	}
	e.fs.IncrementFrequencies(vec)
	if !e.fnFilter.Pass(vec) {
		return false
	}
	e.corpus.Add(data, vec, nil, e.fs, e.frontier)
	return true
}

// rerunUnknowns executes corpus records that have no features record
// and appends their features to the features file only.
func (e *Engine) rerunUnknowns(unknown [][]byte, featuresFile *blobfile.Writer) {
	log.Logf(0, "re-running %v inputs without features", len(unknown))
	for len(unknown) != 0 && !EarlyExitRequested() {
		n := min(len(unknown), e.env.BatchSize)
		batch := unknown[:n]
		unknown = unknown[n:]
		br := e.execute(batch)
		if !br.OK() {
			e.statCrashes.Add(1)
			e.reportCrash(br, batch)
			if e.env.ExitOnCrash {
				RequestEarlyExit(br.ExitCode)
			}
		}
		for i, res := range br.Results {
			data := batch[i]
			vec := res.Features
			if e.fs.CountUnseenAndPruneFrequentFeatures(&vec) == 0 {
				continue
			}
			e.fs.IncrementFrequencies(vec)
			if err := featuresFile.Write(PackFeatures(data, vec)); err != nil {
				return
			}
			if e.fnFilter.Pass(vec) {
				e.corpus.Add(data, vec, res.CmpArgs, e.fs, e.frontier)
			}
		}
	}
}

// loadOtherShard picks a random shard other than ours and absorbs it.
func (e *Engine) loadOtherShard(featuresFile *blobfile.Writer) {
	env := e.env
	shard := e.rnd.Intn(env.TotalShards - 1)
	if shard >= env.MyShardIndex {
		shard++
	}
	if err := e.loadShard(shard, false, featuresFile); err != nil {
		log.Logf(0, "failed to load shard %v: %v", shard, err)
	}
}

// merge performs the initial-load protocol against the same shard index
// of another workdir and appends everything it contributed beyond our
// initial active set to our own shard files.
func (e *Engine) merge(corpusFile, featuresFile *blobfile.Writer) error {
	other := *e.env
	other.Workdir = e.env.MergeFrom
	initialActive := e.corpus.NumActive()
	sf, err := readShardFiles(&other, e.env.MyShardIndex)
	if err != nil {
		return err
	}
	merged := 0
	for _, data := range sf.inputs {
		vec, ok := sf.features[hash.Hash(data)]
		if !ok {
			continue
		}
		if !e.addLoadedRecord(data, vec) {
			continue
		}
		if err := corpusFile.Write(data); err != nil {
			return err
		}
		if err := featuresFile.Write(PackFeatures(data, vec)); err != nil {
			return err
		}
		merged++
	}
	log.Logf(0, "merged %v inputs from %v (%v active before)",
		merged, e.env.MergeFrom, initialActive)
	return nil
}

// distill dumps the active corpus to the distilled path and stops.
func (e *Engine) distill() error {
	w, err := blobfile.NewWriter(e.env.DistilledPath())
	if err != nil {
		return err
	}
	defer w.Close()
	for i := 0; i < e.corpus.NumActive(); i++ {
		if err := w.Write(e.corpus.Get(i)); err != nil {
			return err
		}
	}
	log.Logf(0, "distilled %v inputs to %v", e.corpus.NumActive(), e.env.DistilledPath())
	return nil
}

// pulse emits the periodic progress line and regenerates the corpus
// stats file.
func (e *Engine) pulse(batchIndex int) {
	maxSize, avgSize := e.corpus.MaxAndAvgSize()
	log.Logf(0, "pulse: batch %v, runs %v, corpus %v/%v, max/avg input %v/%v, features %v, frontier %v, elapsed %v",
		batchIndex, e.numRuns, e.corpus.NumActive(), e.corpus.NumTotal(),
		maxSize, avgSize, e.fs.Size(), e.frontier.NumFunctionsInFrontier(),
		time.Since(e.startTime).Round(time.Second))
	var buf bytes.Buffer
	if err := e.corpus.PrintStats(&buf, e.fs); err == nil {
		if err := osutil.WriteFile(e.env.CorpusStatsPath(), buf.Bytes()); err != nil {
			log.Logf(1, "failed to write corpus stats: %v", err)
		}
	}
}

// generateCoverageReport writes the symbolized covered-function report.
func (e *Engine) generateCoverageReport() {
	if len(e.pcTable) == 0 {
		return
	}
	f, err := os.Create(e.env.CoverageReportPath())
	if err != nil {
		log.Logf(0, "failed to create coverage report: %v", err)
		return
	}
	defer f.Close()
	if err := coverage.PrintReport(f, e.pcTable, e.symbols, e.fs.ToCoveragePCs()); err != nil {
		log.Logf(0, "failed to write coverage report: %v", err)
	}
}

// Corpus exposes the live corpus, for stats and tests.
func (e *Engine) Corpus() *corpus.Corpus { return e.corpus }

// FeatureSet exposes the shard's feature set.
func (e *Engine) FeatureSet() *feature.Set { return e.fs }

// NumRuns returns the number of target executions so far.
func (e *Engine) NumRuns() int { return e.numRuns }
