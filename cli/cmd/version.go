package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/render"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/frame"
	"github.com/evidlo/rosen/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	RecordFormat string `json:"record_format"`
	EnvelopeSize int    `json:"envelope_size"`
	FrameSize    int    `json:"frame_size"`
}

// VersionCommand returns the version command.
// It reports the project version and wire sizes and never opens the link.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(newVersionResponse(commit))
	}
}

func newVersionResponse(commit string) VersionResponse {
	return VersionResponse{
		Version:      types.Version,
		Commit:       commit,
		RecordFormat: types.RecordFormat,
		EnvelopeSize: envelope.Size,
		FrameSize:    frame.Size,
	}
}
