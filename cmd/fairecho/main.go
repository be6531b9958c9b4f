// Command fairecho runs the bounded fair request server (fairserver.Server)
// standalone: a single TCP listener speaking the 16-byte-header request/
// response protocol from original_source/examples/api_server.cpp and
// fair_server.cpp, round-robining among clients under the six resource
// caps instead of serving HTTP. Grounded on fair_server.cpp's FairServerApp
// main, rewired onto this module's reactor/transport/fairserver packages.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaykit/netcore/control"
	"github.com/relaykit/netcore/fairserver"
	"github.com/relaykit/netcore/netaddr"
	"github.com/relaykit/netcore/reactor"
)

// startupLogger covers the window before fairserver.New hands back the
// server's own logger (which tallies into its own metrics registry).
var startupLogger = control.NewLogger(control.NewMetricsRegistry())

func main() {
	addr := flag.String("addr", "0.0.0.0:7000", "listen address")
	numWorkers := flag.Int("workers", fairserver.DefaultConfig.NumWorkers, "worker goroutines")
	flag.Parse()

	loop, err := reactor.New()
	if err != nil {
		startupLogger.Error("reactor init failed", "error", err)
		os.Exit(1)
	}

	bind, err := netaddr.Parse(*addr)
	if err != nil {
		startupLogger.Error("parse addr failed", "addr", *addr, "error", err)
		os.Exit(1)
	}

	cfg := fairserver.DefaultConfig
	cfg.NumWorkers = *numWorkers

	srv, err := fairserver.New(loop, bind, cfg)
	if err != nil {
		startupLogger.Error("listen failed", "addr", bind, "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	logger := srv.Logger()

	laddr, _ := srv.LocalAddr()
	logger.Info("fairecho listening", "addr", laddr, "workers", cfg.NumWorkers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		loop.Cancel()
	}()

	if err := loop.Run(); err != nil {
		logger.Error("loop exited", "error", err)
		os.Exit(1)
	}
}
