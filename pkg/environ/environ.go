// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package environ holds the per-process configuration of a fuzzing shard:
// command-line flags, an optional JSON config file, and the workdir path
// scheme shards use to find each other's append-only files.
package environ

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/centipede-fuzz/centipede/pkg/config"
	"github.com/centipede-fuzz/centipede/pkg/hash"
	"github.com/centipede-fuzz/centipede/pkg/osutil"
)

// Environment is the full configuration of one shard process.
// JSON field names double as flag names.
type Environment struct {
	Workdir       string   `json:"workdir"`
	Binary        string   `json:"binary"`
	ExtraBinaries []string `json:"extra_binaries"`

	Seed        uint64 `json:"seed"`
	NumRuns     int    `json:"num_runs"`
	BatchSize   int    `json:"batch_size"`
	TimeoutSecs int    `json:"timeout"`

	TotalShards  int `json:"total_shards"`
	MyShardIndex int `json:"shard"`

	ExitOnCrash      bool `json:"exit_on_crash"`
	FullSync         bool `json:"full_sync"`
	UseCorpusWeights bool `json:"use_corpus_weights"`
	Distill          bool `json:"distill"`

	PruneFrequency          int `json:"prune_frequency"`
	LoadOtherShardFrequency int `json:"load_other_shard_frequency"`
	MaxNumCrashReports      int `json:"max_num_crash_reports"`
	MaxCorpusSize           int `json:"max_corpus_size"`
	FrequencyThreshold      int `json:"frequency_threshold"`

	MergeFrom      string   `json:"merge_from"`
	CorpusDir      []string `json:"corpus_dir"`
	InputFilter    string   `json:"input_filter"`
	FunctionFilter string   `json:"function_filter"`
	KnobsFile      string   `json:"knobs_file"`

	HTTP string `json:"http"`
}

func Default() *Environment {
	return &Environment{
		NumRuns:                 100000,
		BatchSize:               1000,
		TimeoutSecs:             60,
		TotalShards:             1,
		UseCorpusWeights:        true,
		PruneFrequency:          100,
		LoadOtherShardFrequency: 10,
		MaxNumCrashReports:      5,
		MaxCorpusSize:           100000,
		FrequencyThreshold:      100,
	}
}

type stringList []string

func (l *stringList) String() string { return fmt.Sprint([]string(*l)) }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// ParseFlags builds the Environment from the command line. A -config
// JSON file, if given, supplies the base values; explicitly passed
// flags override it.
func ParseFlags(fs *flag.FlagSet, args []string) (*Environment, error) {
	env := Default()
	flagConfig := fs.String("config", "", "JSON configuration file")
	fs.StringVar(&env.Workdir, "workdir", env.Workdir, "shared working directory")
	fs.StringVar(&env.Binary, "binary", env.Binary, "path to the fuzz target binary")
	extra := stringList{}
	fs.Var(&extra, "extra_binaries", "additional target binary (can be passed multiple times)")
	fs.Uint64Var(&env.Seed, "seed", env.Seed, "RNG seed, 0 means time-based")
	fs.IntVar(&env.NumRuns, "num_runs", env.NumRuns, "total number of executions")
	fs.IntVar(&env.BatchSize, "batch_size", env.BatchSize, "number of inputs per batch")
	fs.IntVar(&env.TimeoutSecs, "timeout", env.TimeoutSecs, "per-batch execution timeout in seconds")
	fs.IntVar(&env.TotalShards, "total_shards", env.TotalShards, "number of cooperating shards")
	fs.IntVar(&env.MyShardIndex, "shard", env.MyShardIndex, "this process's shard index")
	fs.BoolVar(&env.ExitOnCrash, "exit_on_crash", env.ExitOnCrash, "stop fuzzing after the first crash")
	fs.BoolVar(&env.FullSync, "full_sync", env.FullSync, "load all shards on startup")
	fs.BoolVar(&env.UseCorpusWeights, "use_corpus_weights", env.UseCorpusWeights, "sample the corpus weighted by feature rarity")
	fs.BoolVar(&env.Distill, "distill", env.Distill, "dump the distilled corpus and exit before fuzzing")
	fs.IntVar(&env.PruneFrequency, "prune_frequency", env.PruneFrequency, "prune the corpus every that many additions")
	fs.IntVar(&env.LoadOtherShardFrequency, "load_other_shard_frequency", env.LoadOtherShardFrequency,
		"load a random other shard every that many batches")
	fs.IntVar(&env.MaxNumCrashReports, "max_num_crash_reports", env.MaxNumCrashReports, "max crash reports per shard")
	fs.IntVar(&env.MaxCorpusSize, "max_corpus_size", env.MaxCorpusSize, "max number of active corpus records")
	fs.IntVar(&env.FrequencyThreshold, "frequency_threshold", env.FrequencyThreshold,
		"feature frequency at which a feature becomes common")
	fs.StringVar(&env.MergeFrom, "merge_from", env.MergeFrom, "workdir of another run to merge inputs from")
	corpusDir := stringList{}
	fs.Var(&corpusDir, "corpus_dir", "local dir with seed inputs (can be passed multiple times)")
	fs.StringVar(&env.InputFilter, "input_filter", env.InputFilter, "binary that accepts an input file and exits 0 to keep it")
	fs.StringVar(&env.FunctionFilter, "function_filter", env.FunctionFilter, "comma-separated function names to focus on")
	fs.StringVar(&env.KnobsFile, "knobs_file", env.KnobsFile, "file with knob byte values")
	fs.StringVar(&env.HTTP, "http", env.HTTP, "address to serve stats on")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *flagConfig != "" {
		// The config file provides the base, explicit flags win.
		if err := config.LoadFile(*flagConfig, env); err != nil {
			return nil, err
		}
		fs.Visit(func(f *flag.Flag) {
			// List flags are applied from their own values below.
			if f.Name == "config" || f.Name == "extra_binaries" || f.Name == "corpus_dir" {
				return
			}
			if err := fs.Set(f.Name, f.Value.String()); err != nil {
				panic(fmt.Sprintf("failed to re-apply flag -%v: %v", f.Name, err))
			}
		})
	}
	if len(extra) != 0 {
		env.ExtraBinaries = extra
	}
	if len(corpusDir) != 0 {
		env.CorpusDir = corpusDir
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

func (env *Environment) Validate() error {
	if env.Workdir == "" {
		return fmt.Errorf("workdir is not set")
	}
	if env.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if env.TotalShards <= 0 {
		return fmt.Errorf("total_shards must be positive")
	}
	if env.MyShardIndex < 0 || env.MyShardIndex >= env.TotalShards {
		return fmt.Errorf("shard %v is outside [0, %v)", env.MyShardIndex, env.TotalShards)
	}
	if env.FrequencyThreshold < 2 || env.FrequencyThreshold > 255 {
		return fmt.Errorf("frequency_threshold %v is outside [2, 255]", env.FrequencyThreshold)
	}
	return nil
}

func (env *Environment) Timeout() time.Duration {
	return time.Duration(env.TimeoutSecs) * time.Second
}

// BinaryFingerprint identifies the instrumented binary. Feature files
// computed for one build must not be reused for another.
func (env *Environment) BinaryFingerprint() string {
	data, err := os.ReadFile(env.Binary)
	if err != nil {
		return "unknown"
	}
	return hash.String(data)[:8]
}

func (env *Environment) BinaryName() string {
	return filepath.Base(env.Binary)
}

// BinaryWorkdir is the feature-file subdirectory tied to the binary's
// identity.
func (env *Environment) BinaryWorkdir() string {
	return filepath.Join(env.Workdir, fmt.Sprintf("%v-%v", env.BinaryName(), env.BinaryFingerprint()))
}

func shardSuffix(shard int) string {
	return fmt.Sprintf("%06d", shard)
}

// CorpusPath returns the append-only corpus file of the shard.
func (env *Environment) CorpusPath(shard int) string {
	return filepath.Join(env.Workdir, "corpus."+shardSuffix(shard))
}

// FeaturesPath returns the append-only features file of the shard.
func (env *Environment) FeaturesPath(shard int) string {
	return filepath.Join(env.BinaryWorkdir(), "features."+shardSuffix(shard))
}

func (env *Environment) DistilledPath() string {
	return filepath.Join(env.Workdir,
		fmt.Sprintf("distilled-%v.%v", env.BinaryName(), shardSuffix(env.MyShardIndex)))
}

func (env *Environment) CoverageReportPath() string {
	return filepath.Join(env.Workdir,
		fmt.Sprintf("coverage-report-%v.%v.txt", env.BinaryName(), shardSuffix(env.MyShardIndex)))
}

func (env *Environment) CorpusStatsPath() string {
	return filepath.Join(env.Workdir,
		fmt.Sprintf("corpus-stats-%v.%v.json", env.BinaryName(), shardSuffix(env.MyShardIndex)))
}

func (env *Environment) CrashReproducerDir() string {
	return filepath.Join(env.Workdir, "crashes")
}

// MakeDirs creates the workdir layout.
func (env *Environment) MakeDirs() error {
	for _, dir := range []string{env.Workdir, env.BinaryWorkdir(), env.CrashReproducerDir()} {
		if err := osutil.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create workdir layout: %w", err)
		}
	}
	return nil
}
