package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bbitmaster/peerpad/internal/app"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	config, err := app.ParseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "peerpad:", err)
		return 2
	}

	logger, closer, err := app.NewLogger(config, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "peerpad:", err)
		return 1
	}
	defer closer.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := app.New(version, config, logger, os.Stdout).Run(ctx); err != nil {
		logger.Error("PeerPad stopped", "error", err)
		fmt.Fprintln(os.Stderr, "peerpad:", err)
		return 1
	}
	return 0
}
