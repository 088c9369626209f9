package script

import (
	"fmt"
	"strconv"

	"github.com/evidlo/rosen/command"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/frame"
)

// Mode selects what a Builder appends for command helpers.
type Mode int

const (
	// EnvelopeMode wraps each frame in an exec-now envelope.
	EnvelopeMode Mode = iota
	// FrameMode appends bare routed frames. Transport helpers are rejected.
	FrameMode
)

// Option configures a Builder.
type Option func(*Builder)

// WithOffset sets the offset of the first entry.
func WithOffset(seconds float64) Option {
	return func(b *Builder) { b.Offset = seconds }
}

// WithIncrement sets how far the offset advances after each helper call.
// A negative increment makes every helper fail with ErrOffsetOrder.
func WithIncrement(seconds float64) Option {
	return func(b *Builder) { b.Increment = seconds }
}

// WithFrom sets the source device written into built frames.
func WithFrom(d frame.Device) Option {
	return func(b *Builder) { b.From = d }
}

// WithMode selects envelope or frame output.
func WithMode(m Mode) Option {
	return func(b *Builder) { b.mode = m }
}

// WithSchedulePrefix sets the file name prefix used by ScheduleScript.
func WithSchedulePrefix(prefix string) Option {
	return func(b *Builder) { b.prefix = prefix }
}

// Builder appends entries to a Script at a running offset.
type Builder struct {
	// Offset is the offset assigned to the next entry.
	Offset float64
	// Increment is added to Offset after each helper call.
	Increment float64
	// From is the source device of built frames.
	From frame.Device

	mode   Mode
	prefix string
	script Script
}

// NewBuilder creates a builder with offset 0, increment 1 and ground as the
// source device.
func NewBuilder(name string, opts ...Option) *Builder {
	b := &Builder{Increment: 1, From: frame.Ground, script: Script{Name: name}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Script returns the script built so far. The builder keeps appending to
// the same backing script.
func (b *Builder) Script() *Script { return &b.script }

// Len returns the number of entries appended so far.
func (b *Builder) Len() int { return len(b.script.Entries) }

// Execute appends an execute command for device to run name.
func (b *Builder) Execute(to frame.Device, name string) error {
	return b.Command(to, command.NewExecute(name))
}

// Query appends a query for items on device.
func (b *Builder) Query(to frame.Device, txid uint16, items ...string) error {
	return b.Command(to, command.NewQuery(txid, items...))
}

// Set appends a set command assigning fields on device.
func (b *Builder) Set(to frame.Device, fields map[string]command.Value) error {
	return b.Command(to, command.NewSet(fields))
}

// Statement appends a statement to device.
func (b *Builder) Statement(to frame.Device, txid uint16, fields map[string]command.Value) error {
	return b.Command(to, command.NewStatement(txid, fields))
}

// Command routes an arbitrary command to device.
func (b *Builder) Command(to frame.Device, cmd command.Command) error {
	f := frame.Frame{Kind: frame.Route, To: to, From: b.From, Payload: &cmd}
	if b.mode == FrameMode {
		return b.appendFrame(f)
	}
	return b.appendEnvelope(envelope.Envelope{Command: envelope.ExecNow, Frame: &f})
}

// ExecNow appends an exec-now envelope carrying f.
func (b *Builder) ExecNow(f frame.Frame) error {
	return b.transport(envelope.Envelope{Command: envelope.ExecNow, Frame: &f})
}

// Envelope appends a prebuilt envelope, such as one parsed from a shell
// line. In frame mode an exec-now envelope contributes its frame and any
// other command is rejected.
func (b *Builder) Envelope(env envelope.Envelope) error {
	if b.mode == FrameMode && env.Command == envelope.ExecNow && env.Frame != nil {
		return b.appendFrame(*env.Frame)
	}
	return b.transport(env)
}

// AbortScript appends an abort-script envelope.
func (b *Builder) AbortScript() error {
	return b.transport(envelope.Envelope{Command: envelope.AbortScript})
}

// AppendFile appends one chunk of a file upload.
func (b *Builder) AppendFile(name string, index, total, offset uint32, f frame.Frame) error {
	return b.transport(envelope.Envelope{
		Command:    envelope.AppendFile,
		Filename:   name,
		ChunkIndex: index,
		ChunkTotal: total,
		ByteOffset: offset,
		Frame:      &f,
	})
}

// RemoveFile asks the relay to delete name from storage.
func (b *Builder) RemoveFile(name string) error {
	return b.transport(envelope.Envelope{Command: envelope.RemoveFile, Filename: name})
}

// ExecuteFile runs a stored script on the relay.
func (b *Builder) ExecuteFile(name string) error {
	return b.transport(envelope.Envelope{Command: envelope.ExecuteFile, Filename: name})
}

// DownloadFile requests every chunk of name.
func (b *Builder) DownloadFile(name string) error {
	return b.transport(envelope.Envelope{Command: envelope.DownloadFile, Filename: name})
}

// FileInfo asks for the chunk count of name.
func (b *Builder) FileInfo(name string) error {
	return b.transport(envelope.Envelope{Command: envelope.FileInfo, Filename: name})
}

// ListStorage appends a list-storage envelope.
func (b *Builder) ListStorage() error {
	return b.transport(envelope.Envelope{Command: envelope.ListStorage})
}

// ClearStorage wipes relay storage.
func (b *Builder) ClearStorage() error {
	return b.transport(envelope.Envelope{Command: envelope.ClearStorage})
}

// DisableStorage stops relay storage writes.
func (b *Builder) DisableStorage() error {
	return b.transport(envelope.Envelope{Command: envelope.DisableStorage})
}

// EnableStorage resumes relay storage writes.
func (b *Builder) EnableStorage() error {
	return b.transport(envelope.Envelope{Command: envelope.EnableStorage})
}

// SetAddress appends a set-address envelope for a dotted-quad address.
func (b *Builder) SetAddress(addr string) error {
	a, err := envelope.ParseAddress(addr)
	if err != nil {
		return err
	}
	return b.transport(envelope.Envelope{Command: envelope.SetAddress, Address: a})
}

// GetTime asks the relay for its clock.
func (b *Builder) GetTime() error {
	return b.transport(envelope.Envelope{Command: envelope.GetTime})
}

// SetTime appends a set-time envelope. t is anything NormalizeTime accepts.
func (b *Builder) SetTime(t any) error {
	ts, err := UnixTime(t)
	if err != nil {
		return err
	}
	return b.transport(envelope.Envelope{Command: envelope.SetTime, Timestamp: ts})
}

// ResetRelay reboots the relay.
func (b *Builder) ResetRelay() error {
	return b.transport(envelope.Envelope{Command: envelope.ResetRelay})
}

// OK appends a bare acknowledgement.
func (b *Builder) OK() error {
	return b.transport(envelope.Envelope{Command: envelope.OK})
}

// NOK appends a negative acknowledgement with an error code and message.
func (b *Builder) NOK(code uint8, msg string) error {
	return b.transport(envelope.Envelope{Command: envelope.NOK, ErrorCode: code, ErrorString: msg})
}

// UploadScript appends one append-file envelope per frame. Chunks are
// numbered from 0 and ByteOffset is the chunk's position in the
// reassembled file. All chunks share the current offset.
func (b *Builder) UploadScript(name string, frames []frame.Frame) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q is %d bytes, limit %d", ErrNameTooLong, name, len(name), MaxNameLength)
	}
	if b.mode == FrameMode {
		return ErrFrameMode
	}
	if err := b.checkStep(); err != nil {
		return err
	}
	total := uint32(len(frames))
	chunks := make([]Entry, 0, len(frames))
	for i := range frames {
		f := frames[i]
		env := &envelope.Envelope{
			Command:    envelope.AppendFile,
			Filename:   name,
			ChunkIndex: uint32(i),
			ChunkTotal: total,
			ByteOffset: uint32(i) * frame.Size,
			Frame:      &f,
		}
		if _, err := envelope.Encode(*env); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks = append(chunks, Entry{Offset: b.Offset, Envelope: env})
	}
	b.script.Entries = append(b.script.Entries, chunks...)
	b.Offset += b.Increment
	return nil
}

// ScheduleScript uploads frames under a file name derived from t, which the
// relay interprets as the time to run the script.
func (b *Builder) ScheduleScript(t any, frames []frame.Frame) error {
	ts, err := UnixTime(t)
	if err != nil {
		return err
	}
	return b.UploadScript(b.prefix+strconv.FormatUint(uint64(ts), 10), frames)
}

func (b *Builder) transport(env envelope.Envelope) error {
	if b.mode == FrameMode {
		return fmt.Errorf("%w: %s", ErrFrameMode, env.Command)
	}
	return b.appendEnvelope(env)
}

// checkStep rejects offsets that would break the script's ordering.
func (b *Builder) checkStep() error {
	if b.Increment < 0 {
		return fmt.Errorf("%w: increment %.3f is negative", ErrOffsetOrder, b.Increment)
	}
	if b.Offset < 0 {
		return fmt.Errorf("%w: offset %.3f is negative", ErrOffsetOrder, b.Offset)
	}
	if n := len(b.script.Entries); n > 0 && b.Offset < b.script.Entries[n-1].Offset {
		return fmt.Errorf("%w: offset %.3f precedes %.3f", ErrOffsetOrder, b.Offset, b.script.Entries[n-1].Offset)
	}
	return nil
}

func (b *Builder) appendEnvelope(env envelope.Envelope) error {
	if err := b.checkStep(); err != nil {
		return err
	}
	if _, err := envelope.Encode(env); err != nil {
		return err
	}
	b.script.Entries = append(b.script.Entries, Entry{Offset: b.Offset, Envelope: &env})
	b.Offset += b.Increment
	return nil
}

func (b *Builder) appendFrame(f frame.Frame) error {
	if err := b.checkStep(); err != nil {
		return err
	}
	if _, err := frame.Encode(f); err != nil {
		return err
	}
	b.script.Entries = append(b.script.Entries, Entry{Offset: b.Offset, Frame: &f})
	b.Offset += b.Increment
	return nil
}
