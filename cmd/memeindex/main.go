// Package main is the entry point for the memeindex CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/memeindex/memeindex/internal/cli"
)

// Set via -ldflags at release time.
//
//nolint:gochecknoglobals // build metadata stamped by the linker
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cli.SetBuildInfo(cli.BuildInfo{Version: version, Commit: commit, Date: date})

	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
