package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/reader"
	"github.com/evidlo/rosen/cli/render"
	"github.com/evidlo/rosen/link"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are read-only diagnostic tools.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (decode, dump, ports)",
		Subcommands: []*cli.Command{
			debugDecodeCommand(),
			debugDumpCommand(),
			debugPortsCommand(),
		},
	}
}

func debugDecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode back-to-back raw envelopes (an observation log or spool file)",
		ArgsUsage: "[file|-]",
		Flags:     ReadOnlyFlags(),
		Action:    debugDecodeAction,
	}
}

func debugDecodeAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug decode", 1)
	}

	var data []byte
	var err error
	if path := c.Args().First(); path != "" && path != "-" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read envelopes: %w", err)
	}

	views, err := reader.DecodeEnvelopes(data)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(views)
}

func debugDumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Show a saved download dump or checkpoint",
		ArgsUsage: "<file>",
		Flags:     ReadOnlyFlags(),
		Action:    debugDumpAction,
	}
}

func debugDumpAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("dump file required", 1)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug dump", 1)
	}

	view, err := reader.InspectDump(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read dump: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(view)
}

// PortsResponse lists the serial devices present on the host.
type PortsResponse struct {
	Ports []string `json:"ports"`
}

func debugPortsCommand() *cli.Command {
	return &cli.Command{
		Name:   "ports",
		Usage:  "List serial devices usable with --serial",
		Flags:  ReadOnlyFlags(),
		Action: debugPortsAction,
	}
}

func debugPortsAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug ports", 1)
	}

	ports, err := link.SerialPorts()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(PortsResponse{Ports: ports})
}
