// SPDX-License-Identifier: MIT

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brawer/petscan-go"
)

// awaitShutdownSignal marks state as shutting down on SIGINT/SIGTERM, then
// polls until every in-flight Platform.Run has finished before exiting.
func awaitShutdownSignal(state *petscan.AppState) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Print("petscand: shutdown signal received, draining in-flight runs")
	for !state.TryShutdown() {
		time.Sleep(200 * time.Millisecond)
	}
	log.Print("petscand: drained, exiting")
	os.Exit(0)
}
