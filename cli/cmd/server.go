package cmd

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/iox"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/log"
	"github.com/evidlo/rosen/runtime"
	"github.com/evidlo/rosen/types"
)

// ServerCommand returns the server command.
// Server runs a loopback responder that acknowledges every envelope, for
// bench testing without a relay. It listens on --host:--port, or answers
// on the --serial device.
func ServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run a loopback responder that acknowledges every envelope",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "delay",
				Usage: "Delay before each acknowledgement",
				Value: link.DefaultResponderDelay,
			},
		},
		Action: serverAction,
	}
}

func serverAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	meta := types.NewSessionMeta(stringOpt(c, "station", cfg.Station), types.ModeServer)
	logger := log.NewLogger(meta)
	logger.SetDebug(c.Bool("debug"))
	defer iox.DiscardErr(logger.Sync)

	responder := &link.Responder{Delay: c.Duration("delay"), Logger: logger}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	ep := endpointFrom(c, cfg)
	if ep.Transport == link.TransportSerial {
		conn, err := link.DialStream(ctx, ep)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to open %s: %v", ep, err), runtime.ExitCodeLink)
		}
		defer iox.DiscardClose(conn)
		stop := context.AfterFunc(ctx, func() { iox.DiscardClose(conn) })
		defer stop()
		logger.Info("responder serving", map[string]any{"endpoint": ep.String()})
		if err := responder.Serve(ctx, conn); err != nil && ctx.Err() == nil {
			return cli.Exit(fmt.Sprintf("responder failed: %v", err), runtime.ExitCodeLink)
		}
		return nil
	}

	addr := net.JoinHostPort(stringOpt(c, "host", cfg.Link.Host), strconv.Itoa(intOpt(c, "port", cfg.Link.Port)))
	if err := responder.ListenAndServe(ctx, addr); err != nil {
		return cli.Exit(fmt.Sprintf("responder failed: %v", err), runtime.ExitCodeLink)
	}
	return nil
}
