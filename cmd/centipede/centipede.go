// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// centipede runs one fuzzing shard against an out-of-process target
// binary. Shards cooperate through the shared -workdir; run one process
// per shard index:
//
//	centipede -workdir /tmp/wd -binary ./target -shard 0 -total_shards 4
package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/centipede-fuzz/centipede/pkg/engine"
	"github.com/centipede-fuzz/centipede/pkg/environ"
	"github.com/centipede-fuzz/centipede/pkg/knobs"
	"github.com/centipede-fuzz/centipede/pkg/log"
	"github.com/centipede-fuzz/centipede/pkg/mutator"
	"github.com/centipede-fuzz/centipede/pkg/osutil"
	"github.com/centipede-fuzz/centipede/pkg/runner"
	"github.com/centipede-fuzz/centipede/pkg/tool"
)

func main() {
	var (
		flagSaveCorpusTo  = flag.String("save_corpus_to", "", "unpack all shard corpora into this dir and exit")
		flagCorpusArchive = flag.String("corpus_archive", "", "write all shard corpora as a .tar.xz archive and exit")
		flagCPUProfile    = flag.String("cpuprofile", "", "write cpu profile to this file")
		flagMemProfile    = flag.String("memprofile", "", "write memory profile to this file")
	)
	env, err := environ.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		tool.Fail(err)
	}
	log.EnableLogCaching(1000, 1<<20)
	if *flagSaveCorpusTo != "" {
		if err := engine.SaveCorpusToLocalDir(env, *flagSaveCorpusTo); err != nil {
			tool.Fail(err)
		}
		return
	}
	if *flagCorpusArchive != "" {
		if err := engine.ExportCorpusArchive(env, *flagCorpusArchive); err != nil {
			tool.Fail(err)
		}
		return
	}
	if env.HTTP != "" {
		go engine.ServeHTTP(env.HTTP)
	}
	if len(env.CorpusDir) != 0 && env.MyShardIndex == 0 {
		if err := engine.ExportCorpusFromLocalDir(env, env.CorpusDir); err != nil {
			tool.Fail(err)
		}
	}
	eng, err := engine.New(env, makeCallbacks(env))
	if err != nil {
		tool.Fail(err)
	}
	stopProfiling := tool.InstallProfiling(*flagCPUProfile, *flagMemProfile)
	code := eng.Run()
	stopProfiling()
	os.Exit(code)
}

func makeCallbacks(env *environ.Environment) runner.Callbacks {
	k := new(knobs.Knobs)
	if env.KnobsFile != "" {
		data, err := os.ReadFile(env.KnobsFile)
		if err != nil {
			tool.Fail(err)
		}
		k.Set(data)
	}
	m := mutator.New(env.Seed, k)
	cb := runner.Callbacks{
		Execute:          runner.NewCommandExecutor(env.Workdir),
		Mutate:           m.MutateBatch,
		AddCmpDictionary: m.AddCmpDictionary,
	}
	if env.InputFilter != "" {
		cb.InputFilter = inputFilter(env)
	}
	return cb
}

// inputFilter adapts the -input_filter binary: an input is kept when
// the binary, given the input file path, exits 0.
func inputFilter(env *environ.Environment) func(data []byte) bool {
	return func(data []byte) bool {
		dir, err := osutil.TempDir(env.Workdir, "input-filter")
		if err != nil {
			log.Logf(0, "input filter setup failed: %v", err)
			return true
		}
		defer os.RemoveAll(dir)
		file := filepath.Join(dir, "input")
		if err := osutil.WriteFile(file, data); err != nil {
			log.Logf(0, "input filter setup failed: %v", err)
			return true
		}
		_, err = osutil.RunCmd(env.Timeout(), dir, env.InputFilter, file)
		return err == nil
	}
}
