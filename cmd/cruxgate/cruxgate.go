package main

import (
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxgate/internal"
	"github.com/cruciblehq/cruxgate/internal/cli"
)

// The entry point for cruxgate.
//
// Initializes logging, displays startup information, and executes the root
// command. Errors exit with the status [cli.ExitCode] assigns to them.
func main() {
	slog.SetDefault(cli.Logger())

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("cruxgate is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(cli.ExitCode(err))
	}
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
