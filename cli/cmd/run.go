package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/config"
	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/runtime"
	"github.com/evidlo/rosen/script"
	"github.com/evidlo/rosen/spool"
	"github.com/evidlo/rosen/types"
)

// RunCommand returns the run command.
// Run replays a saved script (or drains a spool directory) over the ground
// link, one acknowledged envelope at a time.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Send a saved script over the ground link",
		ArgsUsage: "<script>",
		Flags: append(SessionFlags(),
			&cli.BoolFlag{
				Name:  "loop",
				Usage: "Replay the script in a fresh session until interrupted or a session fails",
			},
			&cli.BoolFlag{
				Name:  "pace",
				Usage: "Honour script entry offsets instead of sending back to back",
			},
			&cli.StringFlag{
				Name:  "spool",
				Usage: "Send envelope files dropped into this directory instead of a script",
			},
			&cli.DurationFlag{
				Name:  "loop-delay",
				Usage: "Pause between looped sessions",
				Value: time.Second,
			},
		),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	spoolDir := c.String("spool")
	if spoolDir == "" && c.NArg() < 1 {
		return cli.Exit("script path required (or --spool DIR)", runtime.ExitCodeFailure)
	}
	if spoolDir != "" && c.NArg() > 0 {
		return cli.Exit("--spool and a script path are mutually exclusive", runtime.ExitCodeFailure)
	}
	if spoolDir != "" && c.Bool("loop") {
		return cli.Exit("--loop is not supported with --spool", runtime.ExitCodeFailure)
	}

	var s *script.Script
	if spoolDir == "" {
		var err error
		s, err = script.LoadFile(c.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to load script: %v", err), runtime.ExitCodeFailure)
		}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	for {
		result, err := runOnce(ctx, c, cfg, s, spoolDir)
		if err != nil {
			return err
		}
		if !c.Bool("loop") || result.Status != types.StatusCompleted || ctx.Err() != nil {
			return finish(c, result)
		}
		if !c.Bool("quiet") {
			printSessionResult(result)
		}
		select {
		case <-ctx.Done():
			return cli.Exit("", runtime.ExitCodeSuccess)
		case <-time.After(c.Duration("loop-delay")):
		}
	}
}

func runOnce(ctx context.Context, c *cli.Context, cfg *config.Config, s *script.Script, spoolDir string) (*runtime.SessionResult, error) {
	setup, err := newSessionSetup(c, cfg, types.ModeRun)
	if err != nil {
		return nil, err
	}
	defer setup.Close()

	var src link.Source
	if spoolDir != "" {
		sp, err := spool.Open(spoolDir, setup.logger)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("failed to open spool: %v", err), runtime.ExitCodeFailure)
		}
		defer func() { _ = sp.Close() }()
		src = sp
		setup.logger.Info("draining spool", map[string]any{"dir": spoolDir})
	} else {
		src = link.NewScriptSource(s, c.Bool("pace"))
		setup.logger.Info("running script", map[string]any{
			"script":  s.Name,
			"entries": s.Len(),
			"paced":   c.Bool("pace"),
		})
	}

	return setup.session.Execute(ctx, func(ctx context.Context, client *link.Client) (*download.Result, error) {
		return nil, client.Run(ctx, src)
	}), nil
}
