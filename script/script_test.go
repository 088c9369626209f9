package script

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evidlo/rosen/command"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/frame"
)

func TestBuilder_OffsetsAdvance(t *testing.T) {
	b := NewBuilder("demo")
	for _, name := range []string{"a", "b", "c"} {
		if err := b.Execute(frame.PayloadA, name); err != nil {
			t.Fatalf("Execute(%s) failed: %v", name, err)
		}
	}

	s := b.Script()
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	for i, e := range s.Entries {
		if e.Offset != float64(i) {
			t.Errorf("entry %d offset = %v, want %d", i, e.Offset, i)
		}
		if e.Envelope == nil || e.Envelope.Command != envelope.ExecNow {
			t.Errorf("entry %d = %s, want exec-now envelope", i, e)
		}
	}
}

func TestBuilder_CustomOffsetAndIncrement(t *testing.T) {
	b := NewBuilder("", WithOffset(10), WithIncrement(0.5), WithMode(FrameMode), WithFrom(frame.Controller))
	if err := b.Query(frame.PayloadB, 3, "temp"); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if err := b.Set(frame.PayloadB, map[string]command.Value{"gain": command.Int(2)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s := b.Script()
	if got := []float64{s.Entries[0].Offset, s.Entries[1].Offset}; !cmp.Equal(got, []float64{10, 10.5}) {
		t.Errorf("offsets = %v, want [10 10.5]", got)
	}
	f := s.Entries[0].Frame
	if f == nil {
		t.Fatal("frame mode entry has no frame")
	}
	if f.From != frame.Controller || f.To != frame.PayloadB {
		t.Errorf("frame route = %s→%s, want controller→payload-b", f.From, f.To)
	}
	if b.Offset != 11 {
		t.Errorf("Offset = %v, want 11", b.Offset)
	}
}

func TestBuilder_RejectsDecreasingOffsets(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"negative increment", NewBuilder("s", WithIncrement(-1))},
		{"negative offset", NewBuilder("s", WithOffset(-2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			for _, name := range []string{"a", "b"} {
				if err = tt.b.Execute(frame.PayloadA, name); err != nil {
					break
				}
			}
			if !errors.Is(err, ErrOffsetOrder) {
				t.Errorf("Execute err = %v, want ErrOffsetOrder", err)
			}
			if err := tt.b.UploadScript("up", sampleFrames(1)); !errors.Is(err, ErrOffsetOrder) {
				t.Errorf("UploadScript err = %v, want ErrOffsetOrder", err)
			}
		})
	}

	b := NewBuilder("s")
	if err := b.Execute(frame.PayloadA, "a"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	b.Offset = 0.5
	if err := b.Execute(frame.PayloadA, "b"); err != nil {
		t.Fatalf("Execute at a later offset failed: %v", err)
	}
	b.Offset = 0.25
	if err := b.Execute(frame.PayloadA, "c"); !errors.Is(err, ErrOffsetOrder) {
		t.Errorf("Execute err = %v, want ErrOffsetOrder after rewinding Offset", err)
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (rejected entries are not appended)", b.Len())
	}
}

func TestSave_RejectsDecreasingOffsets(t *testing.T) {
	ok := &envelope.Envelope{Command: envelope.OK}
	s := &Script{Entries: []Entry{{Offset: 0, Envelope: ok}, {Offset: -1, Envelope: ok}}}
	var buf bytes.Buffer
	if err := s.Save(&buf); !errors.Is(err, ErrOffsetOrder) {
		t.Errorf("Save err = %v, want ErrOffsetOrder", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Save wrote %d bytes for a rejected script", buf.Len())
	}
}

func TestBuilder_FrameModeRejectsTransport(t *testing.T) {
	b := NewBuilder("", WithMode(FrameMode))
	if err := b.ListStorage(); !errors.Is(err, ErrFrameMode) {
		t.Errorf("ListStorage err = %v, want ErrFrameMode", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after rejected helper, want 0", b.Len())
	}
}

func TestBuilder_TransportHelpers(t *testing.T) {
	tests := []struct {
		name string
		call func(*Builder) error
		want envelope.Envelope
	}{
		{"abort", (*Builder).AbortScript, envelope.Envelope{Command: envelope.AbortScript}},
		{"remove", func(b *Builder) error { return b.RemoveFile("log.txt") }, envelope.Envelope{Command: envelope.RemoveFile, Filename: "log.txt"}},
		{"execute", func(b *Builder) error { return b.ExecuteFile("run") }, envelope.Envelope{Command: envelope.ExecuteFile, Filename: "run"}},
		{"download", func(b *Builder) error { return b.DownloadFile("dump") }, envelope.Envelope{Command: envelope.DownloadFile, Filename: "dump"}},
		{"file info", func(b *Builder) error { return b.FileInfo("dump") }, envelope.Envelope{Command: envelope.FileInfo, Filename: "dump"}},
		{"list", (*Builder).ListStorage, envelope.Envelope{Command: envelope.ListStorage}},
		{"clear", (*Builder).ClearStorage, envelope.Envelope{Command: envelope.ClearStorage}},
		{"disable", (*Builder).DisableStorage, envelope.Envelope{Command: envelope.DisableStorage}},
		{"enable", (*Builder).EnableStorage, envelope.Envelope{Command: envelope.EnableStorage}},
		{"get time", (*Builder).GetTime, envelope.Envelope{Command: envelope.GetTime}},
		{"reset", (*Builder).ResetRelay, envelope.Envelope{Command: envelope.ResetRelay}},
		{"ok", (*Builder).OK, envelope.Envelope{Command: envelope.OK}},
		{"nok", func(b *Builder) error { return b.NOK(7, "busy") }, envelope.Envelope{Command: envelope.NOK, ErrorCode: 7, ErrorString: "busy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("")
			if err := tt.call(b); err != nil {
				t.Fatalf("helper failed: %v", err)
			}
			s := b.Script()
			if s.Len() != 1 || s.Entries[0].Envelope == nil {
				t.Fatalf("script = %v, want one envelope entry", s.Entries)
			}
			if diff := cmp.Diff(tt.want, *s.Entries[0].Envelope); diff != "" {
				t.Errorf("envelope mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuilder_Envelope(t *testing.T) {
	f := frame.NewRoute(frame.Relay, command.NewExecute("reboot"))
	execNow := envelope.Envelope{Command: envelope.ExecNow, Frame: &f}
	list := envelope.Envelope{Command: envelope.ListStorage}

	b := NewBuilder("")
	for _, env := range []envelope.Envelope{execNow, list} {
		if err := b.Envelope(env); err != nil {
			t.Fatalf("Envelope(%v): %v", env.Command, err)
		}
	}
	if b.Len() != 2 || b.Script().Entries[1].Offset != 1 {
		t.Errorf("envelope mode: len=%d entries=%v", b.Len(), b.Script().Entries)
	}

	fb := NewBuilder("", WithMode(FrameMode))
	if err := fb.Envelope(execNow); err != nil {
		t.Fatalf("frame mode exec-now: %v", err)
	}
	if e := fb.Script().Entries[0]; e.Frame == nil || e.Envelope != nil {
		t.Errorf("frame mode entry = %+v, want bare frame", e)
	}
	if err := fb.Envelope(list); !errors.Is(err, ErrFrameMode) {
		t.Errorf("frame mode list-storage err = %v, want ErrFrameMode", err)
	}
}

func TestBuilder_ValidatesBeforeAppend(t *testing.T) {
	b := NewBuilder("")
	if err := b.RemoveFile("a-file-name-longer-than-16"); !errors.Is(err, envelope.ErrFieldTooLong) {
		t.Errorf("RemoveFile err = %v, want ErrFieldTooLong", err)
	}
	if err := b.SetAddress("not-an-ip"); !errors.Is(err, envelope.ErrInvalidField) {
		t.Errorf("SetAddress err = %v, want ErrInvalidField", err)
	}
	if err := b.Execute(frame.Device(42), "x"); !errors.Is(err, frame.ErrUnknownDevice) {
		t.Errorf("Execute err = %v, want ErrUnknownDevice", err)
	}
	if b.Len() != 0 || b.Offset != 0 {
		t.Errorf("builder advanced on failure: len=%d offset=%v", b.Len(), b.Offset)
	}
}

func sampleFrames(n int) []frame.Frame {
	frames := make([]frame.Frame, n)
	for i := range frames {
		frames[i] = frame.NewRoute(frame.PayloadA, command.NewExecute("step"))
		frames[i].Index = uint8(i)
		frames[i].Total = uint8(n)
	}
	return frames
}

func TestUploadScript_ChunkBookkeeping(t *testing.T) {
	for _, n := range []int{1, 2, 7} {
		b := NewBuilder("")
		if err := b.UploadScript("payload.scr", sampleFrames(n)); err != nil {
			t.Fatalf("UploadScript(%d) failed: %v", n, err)
		}
		entries := b.Script().Entries
		if len(entries) != n {
			t.Fatalf("len = %d, want %d", len(entries), n)
		}
		for i, e := range entries {
			env := e.Envelope
			if env.Command != envelope.AppendFile {
				t.Errorf("chunk %d command = %s", i, env.Command)
			}
			if env.ChunkIndex != uint32(i) {
				t.Errorf("chunk %d index = %d", i, env.ChunkIndex)
			}
			if env.ChunkTotal != uint32(n) {
				t.Errorf("chunk %d total = %d, want %d", i, env.ChunkTotal, n)
			}
			if env.ByteOffset != uint32(i*frame.Size) {
				t.Errorf("chunk %d byte offset = %d, want %d", i, env.ByteOffset, i*frame.Size)
			}
			if env.Filename != "payload.scr" {
				t.Errorf("chunk %d filename = %q", i, env.Filename)
			}
		}
	}
}

func TestUploadScript_NameTooLong(t *testing.T) {
	b := NewBuilder("")
	err := b.UploadScript("this-name-is-too-long-for-the-field", sampleFrames(2))
	if !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("err = %v, want ErrNameTooLong", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestScheduleScript(t *testing.T) {
	b := NewBuilder("", WithSchedulePrefix("s"))
	if err := b.ScheduleScript("2024-03-01 12:00:00", sampleFrames(2)); err != nil {
		t.Fatalf("ScheduleScript failed: %v", err)
	}
	want := "s1709294400"
	for _, e := range b.Script().Entries {
		if e.Envelope.Filename != want {
			t.Errorf("filename = %q, want %q", e.Envelope.Filename, want)
		}
	}

	long := NewBuilder("", WithSchedulePrefix("sched"))
	if err := long.ScheduleScript(1709294400, sampleFrames(1)); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("long prefix err = %v, want ErrNameTooLong", err)
	}
}

func TestNormalizeTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	est := time.FixedZone("EST", -5*3600)

	tests := []struct {
		name string
		in   any
		want time.Time
	}{
		{"rfc3339 zulu", "2024-03-01T12:00:00Z", want},
		{"rfc3339 offset", "2024-03-01T07:00:00-05:00", want},
		{"naive string is utc", "2024-03-01 12:00:00", want},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"unix string", "1709294400", want},
		{"int", 1709294400, want},
		{"int64", int64(1709294400), want},
		{"uint32", uint32(1709294400), want},
		{"time with zone", time.Date(2024, 3, 1, 7, 0, 0, 0, est), want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTime(tt.in)
			if err != nil {
				t.Fatalf("NormalizeTime failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NormalizeTime(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
		})
	}

	for _, bad := range []any{"next tuesday", []int{1}, nil} {
		if _, err := NormalizeTime(bad); !errors.Is(err, ErrUnsupportedTime) {
			t.Errorf("NormalizeTime(%v) err = %v, want ErrUnsupportedTime", bad, err)
		}
	}
	if _, err := UnixTime(-1); !errors.Is(err, ErrUnsupportedTime) {
		t.Errorf("UnixTime(-1) err = %v, want ErrUnsupportedTime", err)
	}
}

func buildMixed(t *testing.T) *Script {
	t.Helper()
	b := NewBuilder("mixed", WithIncrement(2))
	steps := []func() error{
		func() error { return b.Execute(frame.Relay, "boot") },
		func() error { return b.Statement(frame.PayloadC, 4, map[string]command.Value{"note": command.String("hi")}) },
		func() error { return b.SetAddress("10.1.2.3") },
		func() error { return b.SetTime(1700000000) },
		func() error { return b.NOK(3, "busy") },
		func() error { return b.UploadScript("up", sampleFrames(2)) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}
	return b.Script()
}

func TestSaveLoad(t *testing.T) {
	s := buildMixed(t)

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("reloaded script differs (-want +got):\n%s", diff)
	}
}

func TestSaveLoadFile_FrameScript(t *testing.T) {
	b := NewBuilder("onboard", WithMode(FrameMode))
	if err := b.Execute(frame.PayloadA, "measure"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := b.Query(frame.PayloadA, 1, "result"); err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "onboard.rsn")
	if err := b.Script().SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if got.Name != "onboard" || len(got.Frames()) != 2 {
		t.Errorf("loaded %q with %d frames, want onboard with 2", got.Name, len(got.Frames()))
	}
	if diff := cmp.Diff(b.Script(), got); diff != "" {
		t.Errorf("reloaded script differs (-want +got):\n%s", diff)
	}
}

func TestLoad_Rejects(t *testing.T) {
	if _, err := Load(bytes.NewReader([]byte{0xc1})); err == nil {
		t.Error("Load(garbage) succeeded, want error")
	}

	var buf bytes.Buffer
	s := &Script{Entries: []Entry{{Offset: 1, Envelope: &envelope.Envelope{Command: envelope.OK}}}}
	if err := s.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data := buf.Bytes()
	// Corrupt the command byte of the encoded envelope.
	idx := bytes.Index(data, []byte{byte(envelope.OK), 0, 0, 0})
	if idx < 0 {
		t.Fatal("encoded envelope not found")
	}
	data[idx] = 0xee
	if _, err := Load(bytes.NewReader(data)); !errors.Is(err, envelope.ErrUnknownCommand) {
		t.Errorf("Load err = %v, want ErrUnknownCommand", err)
	}
}

func TestScript_Envelopes(t *testing.T) {
	b := NewBuilder("", WithMode(FrameMode))
	if err := b.Execute(frame.Relay, "x"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	envs := b.Script().Envelopes()
	if len(envs) != 1 || envs[0].Command != envelope.ExecNow || envs[0].Frame == nil {
		t.Errorf("Envelopes() = %v, want one exec-now wrapping the frame", envs)
	}
}
