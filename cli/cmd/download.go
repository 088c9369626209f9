package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/runtime"
	"github.com/evidlo/rosen/types"
)

// DownloadCommand returns the download command.
// Download probes a file on the relay, streams its chunks back, saves the
// ordered envelopes locally and classifies the payload error register.
// Exit code 3 reports a critical error register.
func DownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download a file from relay storage",
		ArgsUsage: "<file>",
		Flags: append(SessionFlags(),
			&cli.DurationFlag{
				Name:  "settle",
				Usage: "How long file-info replies are collected",
				Value: download.DefaultSettle,
			},
			&cli.DurationFlag{
				Name:  "poll",
				Usage: "Progress reporting period",
				Value: download.DefaultPollInterval,
			},
			&cli.DurationFlag{
				Name:  "disable-delay",
				Usage: "Pause between disable-storage and download-file",
				Value: download.DefaultDisableDelay,
			},
			&cli.DurationFlag{
				Name:  "checkpoint",
				Usage: "Persist partial transfers at this period (0 disables)",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Directory for the local dump file",
			},
			&cli.BoolFlag{
				Name:  "probe",
				Usage: "Only query the chunk count; do not download",
			},
		),
		Action: downloadAction,
	}
}

func downloadAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("file name required", runtime.ExitCodeFailure)
	}
	filename := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	setup, err := newSessionSetup(c, cfg, types.ModeDownload)
	if err != nil {
		return err
	}
	defer setup.Close()

	dc := download.Config{
		Settle:       durationOpt(c, "settle", cfg.Download.Settle),
		PollInterval: durationOpt(c, "poll", cfg.Download.PollInterval),
		DisableDelay: durationOpt(c, "disable-delay", cfg.Download.DisableDelay),
		Checkpoint:   durationOpt(c, "checkpoint", cfg.Download.Checkpoint),
		OutputDir:    stringOpt(c, "output-dir", cfg.Download.OutputDir),
		Logger:       setup.logger,
		Metrics:      setup.collector,
	}
	if setup.archive != nil {
		dc.Archive = setup.archive
	}
	if !c.Bool("quiet") {
		dc.OnProgress = func(p download.Progress) {
			fmt.Fprintf(os.Stderr, "\r%s", p)
		}
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	probeOnly := c.Bool("probe")
	result := setup.session.Execute(ctx, func(ctx context.Context, client *link.Client) (*download.Result, error) {
		m := download.NewManager(client, dc)
		if probeOnly {
			n, err := m.Probe(ctx, filename)
			if err == nil {
				fmt.Printf("%s: %d chunks\n", filename, n)
			}
			return nil, err
		}
		res, err := m.Download(ctx, filename)
		if !c.Bool("quiet") {
			fmt.Fprintln(os.Stderr)
		}
		return res, err
	})
	return finish(c, result)
}
