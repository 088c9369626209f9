package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/evidlo/rosen/cli/config"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/script"
	"github.com/evidlo/rosen/types"
)

func flagNames(flags []cli.Flag) map[string]bool {
	names := make(map[string]bool, len(flags))
	for _, f := range flags {
		names[f.Names()[0]] = true
	}
	return names
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	if !flagNames(ReadOnlyFlags())["tui"] {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestSessionFlags(t *testing.T) {
	names := flagNames(SessionFlags())
	for _, want := range []string{"ack-timeout", "retry", "max-attempts", "observe-log", "report", "quiet"} {
		if !names[want] {
			t.Errorf("SessionFlags missing --%s", want)
		}
	}
	if names["tui"] {
		t.Error("SessionFlags should not include --tui")
	}
}

// withContext runs fn inside a cli.Context built from the global flags
// and args.
func withContext(t *testing.T, args []string, fn func(c *cli.Context)) {
	t.Helper()
	app := &cli.App{
		Name:  "rosen",
		Flags: append(GlobalFlags(), SessionFlags()...),
		Action: func(c *cli.Context) error {
			fn(c)
			return nil
		},
	}
	if err := app.Run(append([]string{"rosen"}, args...)); err != nil {
		t.Fatalf("app.Run() error = %v", err)
	}
}

func TestEndpointFrom(t *testing.T) {
	tests := []struct {
		name string
		args []string
		cfg  config.Config
		want link.Endpoint
	}{
		{
			name: "defaults",
			want: link.Endpoint{Transport: link.TransportTCP, Address: "localhost:8080"},
		},
		{
			name: "config host",
			cfg:  config.Config{Link: config.LinkConfig{Host: "relay.local", Port: 9000}},
			want: link.Endpoint{Transport: link.TransportTCP, Address: "relay.local:9000"},
		},
		{
			name: "flag beats config",
			args: []string{"--host", "10.0.0.2"},
			cfg:  config.Config{Link: config.LinkConfig{Host: "relay.local"}},
			want: link.Endpoint{Transport: link.TransportTCP, Address: "10.0.0.2:8080"},
		},
		{
			name: "config serial",
			cfg: config.Config{Link: config.LinkConfig{
				Transport: link.TransportSerial, SerialPort: "/dev/ttyUSB0", Baud: 9600,
			}},
			want: link.Endpoint{Transport: link.TransportSerial, Address: "/dev/ttyUSB0", Baud: 9600},
		},
		{
			name: "serial flag",
			args: []string{"--serial", "/dev/ttyACM1"},
			want: link.Endpoint{Transport: link.TransportSerial, Address: "/dev/ttyACM1", Baud: link.DefaultBaud},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got link.Endpoint
			withContext(t, tt.args, func(c *cli.Context) {
				got = endpointFrom(c, &tt.cfg)
			})
			if got != tt.want {
				t.Errorf("endpointFrom() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLinkConfigFrom(t *testing.T) {
	cfg := &config.Config{Ack: config.AckConfig{Policy: "abort", MaxAttempts: 4, Command: "ok"}}

	var lc link.Config
	var err error
	withContext(t, []string{"--max-attempts", "2"}, func(c *cli.Context) {
		lc, err = linkConfigFrom(c, cfg)
	})
	if err != nil {
		t.Fatalf("linkConfigFrom() error = %v", err)
	}
	if lc.Retry != link.RetryAbort {
		t.Errorf("Retry = %v, want abort", lc.Retry)
	}
	if lc.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2 (flag wins)", lc.MaxAttempts)
	}
	if lc.AckCommand != envelope.OK {
		t.Errorf("AckCommand = %v, want %v", lc.AckCommand, envelope.OK)
	}
	if lc.AckTimeout != link.DefaultAckTimeout {
		t.Errorf("AckTimeout = %v, want %v", lc.AckTimeout, link.DefaultAckTimeout)
	}
}

func TestLinkConfigFrom_BadPolicy(t *testing.T) {
	var err error
	withContext(t, []string{"--retry", "sometimes"}, func(c *cli.Context) {
		_, err = linkConfigFrom(c, &config.Config{})
	})
	if err == nil {
		t.Fatal("linkConfigFrom() should reject an unknown retry policy")
	}
}

func TestStorageFrom(t *testing.T) {
	app := &cli.App{
		Name:  "rosen",
		Flags: StatsCommand().Flags,
	}
	var got config.StorageConfig
	app.Action = func(c *cli.Context) error {
		got = storageFrom(c, config.StorageConfig{Backend: "s3", Path: "bucket/prefix", Region: "us-east-1"})
		return nil
	}
	if err := app.Run([]string{"rosen", "--storage-backend", "fs", "--storage-path", "/tmp/archive"}); err != nil {
		t.Fatalf("app.Run() error = %v", err)
	}
	if got.Backend != "fs" || got.Path != "/tmp/archive" {
		t.Errorf("flags should override config, got %+v", got)
	}
	if got.Region != "us-east-1" {
		t.Errorf("Region = %q, want config value kept", got.Region)
	}
}

func TestScriptName(t *testing.T) {
	tests := []struct {
		name, out, want string
	}{
		{"", "scripts/pass-1.rsc", "pass-1"},
		{"", "plain", "plain"},
		{"given", "scripts/pass-1.rsc", "given"},
	}
	for _, tt := range tests {
		if got := scriptName(tt.name, tt.out); got != tt.want {
			t.Errorf("scriptName(%q, %q) = %q, want %q", tt.name, tt.out, got, tt.want)
		}
	}
}

func TestCompileLines(t *testing.T) {
	input := strings.Join([]string{
		"# morning pass",
		"time get",
		"",
		"! payload-a foo_command",
	}, "\n")

	s, err := compileLines(strings.NewReader(input), "pass", false, 2)
	if err != nil {
		t.Fatalf("compileLines() error = %v", err)
	}
	if s.Name != "pass" {
		t.Errorf("Name = %q, want pass", s.Name)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if s.Entries[0].Envelope == nil || s.Entries[0].Envelope.Command != envelope.GetTime {
		t.Errorf("entry 0 = %v, want get-time envelope", s.Entries[0])
	}
	if s.Entries[1].Offset != 2 {
		t.Errorf("entry 1 offset = %v, want 2", s.Entries[1].Offset)
	}
}

func TestCompileLines_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		frames    bool
		increment float64
		wantErr   string
		wantIs    error
	}{
		{name: "bad line", input: "time get\nlaunch\n", wantErr: "line 2"},
		{name: "empty", input: "# nothing\n\n", wantErr: "no commands"},
		{name: "transport in frame script", input: "storage list\n", frames: true, wantIs: script.ErrFrameMode},
		{name: "negative increment", input: "time get\n", increment: -1, wantIs: script.ErrOffsetOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := tt.increment
			if inc == 0 {
				inc = 1
			}
			_, err := compileLines(strings.NewReader(tt.input), "x", tt.frames, inc)
			if err == nil {
				t.Fatal("compileLines() should fail")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func frameScript(t *testing.T) *script.Script {
	t.Helper()
	s, err := compileLines(strings.NewReader("! payload-a foo_command\n? relay 7 temp\n"), "frames", true, 1)
	if err != nil {
		t.Fatalf("compileLines() error = %v", err)
	}
	return s
}

func TestCompileLines_FrameMode(t *testing.T) {
	s := frameScript(t)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	for i, e := range s.Entries {
		if e.Frame == nil || e.Envelope != nil {
			t.Errorf("entry %d should be a bare frame, got %v", i, e)
		}
	}
}

func TestBuildUpload(t *testing.T) {
	s, err := buildUpload(frameScript(t), "up", "run.rsc", true)
	if err != nil {
		t.Fatalf("buildUpload() error = %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 2 chunks + execute", s.Len())
	}
	for i := 0; i < 2; i++ {
		env := s.Entries[i].Envelope
		if env.Command != envelope.AppendFile || env.Filename != "run.rsc" {
			t.Errorf("chunk %d = %v, want append-file run.rsc", i, env)
		}
		if env.ChunkIndex != uint32(i) || env.ChunkTotal != 2 {
			t.Errorf("chunk %d index/total = %d/%d", i, env.ChunkIndex, env.ChunkTotal)
		}
	}
	if last := s.Entries[2].Envelope; last.Command != envelope.ExecuteFile {
		t.Errorf("last entry = %v, want execute-file", last)
	}
}

func TestBuildUpload_Errors(t *testing.T) {
	if _, err := buildUpload(&script.Script{Name: "empty"}, "up", "run.rsc", false); err == nil {
		t.Error("buildUpload() should reject a script without frames")
	}
	_, err := buildUpload(frameScript(t), "up", "much_too_long.rsc", false)
	if !errors.Is(err, script.ErrNameTooLong) {
		t.Errorf("buildUpload() error = %v, want ErrNameTooLong", err)
	}
}

func TestBuildSchedule(t *testing.T) {
	s, err := buildSchedule(frameScript(t), "sched", "1709294400", "s")
	if err != nil {
		t.Fatalf("buildSchedule() error = %v", err)
	}
	if got := s.Entries[0].Envelope.Filename; got != "s1709294400" {
		t.Errorf("Filename = %q, want s1709294400", got)
	}
}

func TestBuildAdapter(t *testing.T) {
	a, err := buildAdapter(config.AdapterConfig{})
	if err != nil || a != nil {
		t.Errorf("buildAdapter(empty) = %v, %v; want nil, nil", a, err)
	}
	if _, err := buildAdapter(config.AdapterConfig{Type: "carrier-pigeon", URL: "x"}); err == nil {
		t.Error("buildAdapter() should reject an unknown type")
	}
}

func TestBuildArchive(t *testing.T) {
	meta := types.NewSessionMeta("ground", types.ModeRun)

	a, err := buildArchive(t.Context(), config.StorageConfig{}, meta, nil)
	if err != nil || a != nil {
		t.Errorf("buildArchive(no backend) = %v, %v; want nil, nil", a, err)
	}

	if _, err := buildArchive(t.Context(), config.StorageConfig{Backend: "tape", Path: "x"}, meta, nil); err == nil {
		t.Error("buildArchive() should reject an unknown backend")
	}

	a, err = buildArchive(t.Context(), config.StorageConfig{Backend: "fs", Path: t.TempDir()}, meta, nil)
	if err != nil {
		t.Fatalf("buildArchive(fs) error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewVersionResponse(t *testing.T) {
	v := newVersionResponse("abc123")
	if v.Version != types.Version || v.Commit != "abc123" {
		t.Errorf("newVersionResponse() = %+v", v)
	}
	if v.EnvelopeSize != envelope.Size {
		t.Errorf("EnvelopeSize = %d, want %d", v.EnvelopeSize, envelope.Size)
	}
}
