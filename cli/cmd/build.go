package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/shell"
	"github.com/evidlo/rosen/script"
)

// BuildCommand returns the build command with subcommands.
// Build writes script files; it never opens the link.
func BuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build script files (script, upload, schedule)",
		Subcommands: []*cli.Command{
			buildScriptCommand(),
			buildUploadCommand(),
			buildScheduleCommand(),
		},
	}
}

var outFlag = &cli.StringFlag{
	Name:     "out",
	Aliases:  []string{"o"},
	Usage:    "Output script path",
	Required: true,
}

func buildScriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "script",
		Usage:     "Compile shell command lines into a saved script",
		ArgsUsage: "[file|-]",
		Flags: []cli.Flag{
			outFlag,
			&cli.StringFlag{Name: "name", Usage: "Script name (default: output file name)"},
			&cli.BoolFlag{Name: "frames", Usage: "Build a frame script for upload (device commands only)"},
			&cli.Float64Flag{Name: "increment", Usage: "Seconds between entries", Value: 1},
		},
		Action: buildScriptAction,
	}
}

func buildScriptAction(c *cli.Context) error {
	if c.Float64("increment") < 0 {
		return cli.Exit("--increment must be >= 0", 1)
	}

	in := io.Reader(os.Stdin)
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	out := c.String("out")
	s, err := compileLines(in, scriptName(c.String("name"), out), c.Bool("frames"), c.Float64("increment"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return saveScript(s, out)
}

func buildUploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Wrap a frame script into append-file chunks",
		ArgsUsage: "<frame-script>",
		Flags: []cli.Flag{
			outFlag,
			&cli.StringFlag{Name: "file", Usage: "Remote file name", Required: true},
			&cli.BoolFlag{Name: "exec", Usage: "Execute the file after the upload"},
		},
		Action: buildUploadAction,
	}
}

func buildUploadAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("frame script path required", 1)
	}
	fs, err := script.LoadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to load frame script: %w", err)
	}
	out := c.String("out")
	s, err := buildUpload(fs, scriptName("", out), c.String("file"), c.Bool("exec"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return saveScript(s, out)
}

func buildScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Upload a frame script under a name the relay runs at a given time",
		ArgsUsage: "<frame-script>",
		Flags: []cli.Flag{
			outFlag,
			&cli.StringFlag{Name: "at", Usage: "Run time (Unix seconds or a date)", Required: true},
			&cli.StringFlag{Name: "prefix", Usage: "Remote file name prefix"},
		},
		Action: buildScheduleAction,
	}
}

func buildScheduleAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("frame script path required", 1)
	}
	fs, err := script.LoadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to load frame script: %w", err)
	}
	out := c.String("out")
	s, err := buildSchedule(fs, scriptName("", out), c.String("at"), c.String("prefix"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return saveScript(s, out)
}

// compileLines parses one shell command per line. Blank and comment lines
// are skipped; the first bad line fails the build.
func compileLines(r io.Reader, name string, frames bool, increment float64) (*script.Script, error) {
	if increment < 0 {
		return nil, fmt.Errorf("%w: increment %.3f is negative", script.ErrOffsetOrder, increment)
	}
	opts := []script.Option{script.WithIncrement(increment)}
	if frames {
		opts = append(opts, script.WithMode(script.FrameMode))
	}
	b := script.NewBuilder(name, opts...)

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		env, err := shell.Parse(sc.Text())
		if errors.Is(err, shell.ErrBlank) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if err := b.Envelope(env); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if b.Len() == 0 {
		return nil, errors.New("no commands")
	}
	return b.Script(), nil
}

func buildUpload(fs *script.Script, name, remote string, exec bool) (*script.Script, error) {
	frames := fs.Frames()
	if len(frames) == 0 {
		return nil, errors.New("frame script has no frames")
	}
	b := script.NewBuilder(name)
	if err := b.UploadScript(remote, frames); err != nil {
		return nil, err
	}
	if exec {
		if err := b.ExecuteFile(remote); err != nil {
			return nil, err
		}
	}
	return b.Script(), nil
}

func buildSchedule(fs *script.Script, name, at, prefix string) (*script.Script, error) {
	frames := fs.Frames()
	if len(frames) == 0 {
		return nil, errors.New("frame script has no frames")
	}
	b := script.NewBuilder(name, script.WithSchedulePrefix(prefix))
	if err := b.ScheduleScript(at, frames); err != nil {
		return nil, err
	}
	return b.Script(), nil
}

// scriptName defaults to the output file name without its extension.
func scriptName(name, out string) string {
	if name != "" {
		return name
	}
	base := filepath.Base(out)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func saveScript(s *script.Script, out string) error {
	if err := s.SaveFile(out); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s: %d entries, %.1fs\n", out, s.Len(), s.Duration())
	return nil
}
