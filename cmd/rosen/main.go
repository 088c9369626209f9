// Package main provides the rosen CLI entrypoint.
//
// Session commands (run, shell, download) open the ground link; server
// answers it; everything else is read-only.
//
// Usage:
//
//	rosen [global options] <command> [subcommand] [options]
//
// Exit codes for session commands:
//   - 0: session completed or stopped by an interrupt
//   - 1: session failed (ack timeout, abort, bad input)
//   - 2: link lost or refused
//   - 3: download completed with a critical error register
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/cmd"
	"github.com/evidlo/rosen/runtime"
	"github.com/evidlo/rosen/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(runtime.ExitCodeFailure)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "rosen",
		Usage:          "Ground station tooling for the relay command link",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.ShellCommand(),
			cmd.DownloadCommand(),
			cmd.ServerCommand(),
			cmd.BuildCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(reportExit(err))
}

// reportExit prints err when it carries a real message and returns the
// process exit code.
func reportExit(err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is empty or "exit status N"
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		return code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return runtime.ExitCodeFailure
}
