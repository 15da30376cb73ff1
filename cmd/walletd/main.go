// Package main runs the wallet notification daemon: it tracks Stellar
// accounts, turns completed trades and co-signing requests into desktop
// notifications and serves a small HTTP control API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-notifier/internal/app"
	"wallet-notifier/internal/config"
)

// shutdownGrace bounds how long teardown may take after the first signal.
const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("WALLETD_CONFIG"), "path to walletd.yaml (optional)")
	envFile := flag.String("env-file", ".env", "dotenv file merged into the environment")
	flag.Parse()

	logger := log.New(os.Stdout, "[walletd] ", log.LstdFlags|log.Lshortfile)

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Fatalf("Failed to load %s: %v", *envFile, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go watchSignals(logger, cancel, finished)

	err = app.New(cfg, logger).Run(ctx)
	close(finished)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Daemon error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// watchSignals cancels the daemon on SIGINT or SIGTERM. A second signal, or
// a teardown slower than shutdownGrace, exits the process immediately.
func watchSignals(logger *log.Logger, cancel context.CancelFunc, finished <-chan struct{}) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Printf("Received %v, stopping", sig)
		cancel()
	case <-finished:
		return
	}

	select {
	case sig := <-sigCh:
		logger.Printf("Received %v again, exiting now", sig)
		os.Exit(1)
	case <-time.After(shutdownGrace):
		logger.Printf("Teardown exceeded %s, exiting now", shutdownGrace)
		os.Exit(1)
	case <-finished:
	}
}
