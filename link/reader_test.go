package link

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/evidlo/rosen/envelope"
)

func encodeAll(t *testing.T, envs ...envelope.Envelope) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, env := range envs {
		raw, err := envelope.Encode(env)
		if err != nil {
			t.Fatalf("Encode(%v) error = %v", env, err)
		}
		buf.Write(raw)
	}
	return buf.Bytes()
}

func TestEnvelopeReader_Sequence(t *testing.T) {
	data := encodeAll(t,
		envelope.Envelope{Command: envelope.OK},
		envelope.Envelope{Command: envelope.FileInfo, Filename: "a.bin", ChunkTotal: 2},
	)
	rd := NewEnvelopeReader(bytes.NewReader(data))

	first, err := rd.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope() error = %v", err)
	}
	if env, err := envelope.Decode(first); err != nil || env.Command != envelope.OK {
		t.Errorf("first envelope = %v, %v, want ok", env.Command, err)
	}

	second, err := rd.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope() error = %v", err)
	}
	env, err := envelope.Decode(second)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if env.Filename != "a.bin" || env.ChunkTotal != 2 {
		t.Errorf("second envelope = %v", env)
	}

	if _, err := rd.ReadEnvelope(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadEnvelope() at end error = %v, want io.EOF", err)
	}
}

func TestEnvelopeReader_Partial(t *testing.T) {
	data := encodeAll(t, envelope.Envelope{Command: envelope.OK})
	rd := NewEnvelopeReader(bytes.NewReader(data[:envelope.Size-1]))

	_, err := rd.ReadEnvelope()
	if !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("ReadEnvelope() error = %v, want ErrIncompleteFrame", err)
	}
	var se *StreamError
	if !errors.As(err, &se) || se.Kind != StreamPartial {
		t.Errorf("error = %#v, want StreamPartial", err)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestEnvelopeReader_ReadFailure(t *testing.T) {
	cause := errors.New("wire cut")
	rd := NewEnvelopeReader(failingReader{err: cause})

	_, err := rd.ReadEnvelope()
	if !errors.Is(err, ErrConnectionReset) {
		t.Errorf("ReadEnvelope() error = %v, want ErrConnectionReset", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("ReadEnvelope() error = %v, want wrapped cause", err)
	}
}

func TestStreamError_IsFatal(t *testing.T) {
	tests := []struct {
		kind StreamErrorKind
		want bool
	}{
		{StreamPartial, true},
		{StreamReset, true},
		{StreamRefused, true},
		{StreamDecode, false},
	}
	for _, tt := range tests {
		err := &StreamError{Kind: tt.kind, Msg: "x"}
		if got := err.IsFatal(); got != tt.want {
			t.Errorf("StreamError{Kind: %d}.IsFatal() = %v, want %v", tt.kind, got, tt.want)
		}
	}
	if IsFatalStreamError(errors.New("plain")) {
		t.Error("IsFatalStreamError(plain) = true, want false")
	}
}

func TestDecodeMessage_Corrupt(t *testing.T) {
	raw := encodeAll(t, envelope.Envelope{Command: envelope.ListStorage})
	raw[0] = 0xEE

	msg := decodeMessage(raw)
	if msg.Err == nil {
		t.Fatal("decodeMessage() Err = nil, want decode error")
	}
	if IsFatalStreamError(msg.Err) {
		t.Error("decode error reported as fatal")
	}
	if msg.IsAck(envelope.OK) {
		t.Error("corrupt message reported as ack")
	}
}
