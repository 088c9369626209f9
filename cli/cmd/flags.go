// Package cmd provides CLI commands for the rosen binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/link"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// GlobalFlags returns the link and config flags accepted before any
// subcommand. Flags override rosen.yaml.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "Ground link host",
			Value: "localhost",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "Ground link TCP port",
			Value: link.DefaultPort,
		},
		&cli.StringFlag{
			Name:  "serial",
			Usage: "Serial device path; selects the serial transport",
		},
		&cli.IntFlag{
			Name:  "baud",
			Usage: "Serial line rate",
			Value: link.DefaultBaud,
		},
		&cli.StringFlag{
			Name:  "station",
			Usage: "Station name recorded with every session",
			Value: "ground",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to config file (default: ./rosen.yaml if present)",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
}

// SessionFlags returns the flags shared by commands that open a session.
func SessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "ack-timeout",
			Usage: "Per-envelope acknowledgement deadline",
			Value: link.DefaultAckTimeout,
		},
		&cli.StringFlag{
			Name:  "retry",
			Usage: "Policy on ack timeout: resend or abort",
			Value: link.RetryResend.String(),
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Sends per envelope under resend (0 = unlimited)",
		},
		&cli.StringFlag{
			Name:  "observe-log",
			Usage: "Observation log path (empty disables)",
			Value: link.DefaultObservationLog,
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON session report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the session summary",
		},
	}
}
