package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/reader"
	"github.com/evidlo/rosen/cli/render"
	"github.com/evidlo/rosen/cli/tui"
)

// InspectCommand returns the inspect command.
// Inspect shows a saved script entry by entry. It never opens the link.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect a saved script",
		ArgsUsage: "<script>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("script path required", 1)
	}

	view, err := reader.InspectScript(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectScript, view)
	}

	return r.Render(view)
}
