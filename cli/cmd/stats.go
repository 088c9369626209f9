package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/config"
	"github.com/evidlo/rosen/cli/reader"
	"github.com/evidlo/rosen/cli/render"
	"github.com/evidlo/rosen/cli/tui"
	"github.com/evidlo/rosen/lode"
)

// StatsCommand returns the stats command.
// Stats reads archived session metrics. Storage defaults come from the
// config file; flags override them.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show archived session metrics",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{Name: "storage-dataset", Usage: "Lode dataset ID", Value: lode.DefaultDataset},
			&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3"},
			&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
			&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend"},
			&cli.StringFlag{Name: "session", Usage: "Read metrics for a specific session ID"},
			&cli.StringFlag{Name: "filter-station", Usage: "Only sessions of this station"},
			&cli.BoolFlag{Name: "all", Usage: "List every archived session instead of the latest"},
		),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	storage := storageFrom(c, cfg.Storage)
	if storage.Backend == "" || storage.Path == "" {
		return cli.Exit("storage backend and path are required (flags or storage: in config)", 1)
	}

	ds, err := buildReadDataset(c.Context, storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage reader: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	filter := lode.Filter{Station: c.String("filter-station"), SessionID: c.String("session")}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("all") {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported with --all", 1)
		}
		records, err := lode.QueryRecords(ctx, ds, lode.RecordKindMetrics, filter)
		if errors.Is(err, lode.ErrNoRecordsFound) {
			return r.Render([]reader.SessionStats{})
		}
		if err != nil {
			return fmt.Errorf("failed to read metrics from Lode: %w", err)
		}
		rows := make([]reader.SessionStats, 0, len(records))
		for _, rec := range records {
			s, err := reader.ParseSessionStats(rec)
			if err != nil {
				return fmt.Errorf("failed to parse metrics record: %w", err)
			}
			rows = append(rows, *s)
		}
		return r.Render(rows)
	}

	record, err := lode.QueryLatestMetrics(ctx, ds, filter)
	if err != nil {
		return fmt.Errorf("failed to read metrics from Lode: %w", err)
	}
	stats, err := reader.ParseSessionStats(record)
	if err != nil {
		return fmt.Errorf("failed to parse metrics record: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsSession, stats)
	}
	return r.Render(stats)
}

// storageFrom overlays storage flags on the config section.
func storageFrom(c *cli.Context, sc config.StorageConfig) config.StorageConfig {
	sc.Dataset = stringOpt(c, "storage-dataset", sc.Dataset)
	sc.Backend = stringOpt(c, "storage-backend", sc.Backend)
	sc.Path = stringOpt(c, "storage-path", sc.Path)
	sc.Region = stringOpt(c, "storage-region", sc.Region)
	return sc
}

// buildReadDataset creates a Lode Dataset for reading.
func buildReadDataset(ctx context.Context, sc config.StorageConfig) (lodelibrary.Dataset, error) {
	switch sc.Backend {
	case "fs":
		return lode.NewReadDataset(sc.Dataset, lodelibrary.NewFSFactory(sc.Path))
	case "s3":
		bucket, prefix := lode.ParseS3Path(sc.Path)
		factory, err := lode.NewS3Factory(ctx, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       sc.Region,
			Endpoint:     sc.Endpoint,
			UsePathStyle: sc.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return lode.NewReadDataset(sc.Dataset, factory)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (must be fs or s3)", sc.Backend)
	}
}
