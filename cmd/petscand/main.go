// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brawer/petscan-go"
)

// main wires up the ambient stack (config, metrics, logging) around the
// petscan library and exposes it for health checks and scraping. It does
// not serve page-list queries itself; the HTTP request dispatcher and form
// parsing are out of scope.
func main() {
	var portFlag = flag.Int("port", 0, "port for serving /healthz and /metrics")
	var configFlag = flag.String("config", "./config.json", "path to the JSON configuration file")
	flag.Parse()

	port := *portFlag
	if port == 0 {
		port, _ = strconv.Atoi(os.Getenv("PORT"))
	}

	cfg, err := petscan.LoadConfig(*configFlag)
	if err != nil {
		log.Fatal(err)
		return
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())

	metrics, err := petscan.NewMetrics(registry)
	if err != nil {
		log.Fatal(err)
		return
	}

	bootstrap := petscan.NewStaticSiteMatrixBootstrap(nil)
	state := petscan.NewAppState(cfg, bootstrap, metrics, log.Default())

	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if state.IsShuttingDown() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		if _, err := state.GetToolDBConnection(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	go awaitShutdownSignal(state)

	log.Printf("petscand listening on :%d", port)
	if err := http.ListenAndServe(":"+strconv.Itoa(port), nil); err != nil {
		log.Fatal(err)
	}
}
