// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/centipede-fuzz/centipede/pkg/log"
	"github.com/centipede-fuzz/centipede/pkg/stat"
)

// ServeHTTP exposes the shard's counters on addr: a plain-text stats
// page at / and Prometheus metrics at /metrics. Runs until the process
// exits.
func ServeHTTP(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", httpStats)
	mux.Handle("/metrics", promhttp.Handler())
	log.Logf(0, "serving stats on http://%v", addr)
	err := http.ListenAndServe(addr, handlers.CombinedLoggingHandler(log.VerboseWriter(2), mux))
	log.Fatalf("failed to serve stats: %v", err)
}

func httpStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, v := range stat.Collect(stat.All) {
		fmt.Fprintf(w, "%-28v %v\n", v.Name, v.Value)
	}
}
