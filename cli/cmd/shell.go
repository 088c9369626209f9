package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/evidlo/rosen/cli/shell"
	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/types"
)

const shellHelp = `commands:
  ! DEV NAME                 execute
  ? DEV TXID ITEM...         query
  > DEV KEY=VALUE...         set
  . DEV TXID KEY=VALUE...    statement
  storage list|clear|enable|disable
  storage rm|exec|down|info FILE
  time get|set TIME
  relay reset|addr IP
  abort
devices: payload-a payload-b payload-c controller ground relay
`

// ShellCommand returns the shell command.
// Shell reads command lines from stdin and sends each as an acknowledged
// envelope. A prompt is shown only when stdin is a terminal.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:   "shell",
		Usage:  "Send commands typed line by line",
		Flags:  SessionFlags(),
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	setup, err := newSessionSetup(c, cfg, types.ModeShell)
	if err != nil {
		return err
	}
	defer setup.Close()

	opts := []shell.Option{shell.WithOutput(os.Stderr)}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, shellHelp)
		opts = append(opts, shell.WithPrompt(shell.DefaultPrompt))
	}
	src := shell.NewLineSource(os.Stdin, opts...)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	result := setup.session.Execute(ctx, func(ctx context.Context, client *link.Client) (*download.Result, error) {
		return nil, client.Run(ctx, src)
	})
	return finish(c, result)
}
