// Package frame implements the routed frame codec. A frame addresses one
// command between two devices, carries a CRC32 over its body, and is zero
// padded to Size bytes so every frame is the same length on the wire.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/evidlo/rosen/command"
)

const (
	// Size is the fixed encoded size of every frame, padding included.
	Size = 4092
	// LengthPrefixSize is the size of the big-endian body length.
	LengthPrefixSize = 2
	// HeaderSize covers kind, to, from, index and total.
	HeaderSize = 5
	// ChecksumSize is the size of the trailing CRC32.
	ChecksumSize = 4
	// MaxPayloadSize is the largest encoded command a frame can hold.
	MaxPayloadSize = Size - LengthPrefixSize - HeaderSize - ChecksumSize
)

var (
	// ErrUnknownDevice is returned for device bytes outside the device set.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrFrameSizeMismatch is returned when input is not exactly Size bytes.
	ErrFrameSizeMismatch = errors.New("frame size mismatch")
	// ErrChecksumMismatch is returned when the body does not match its CRC.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrUnknownKind is returned for an unmapped frame kind byte.
	ErrUnknownKind = errors.New("unknown frame kind")
	// ErrPayloadTooLarge is returned when a command does not fit in a frame.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Kind is the frame type.
type Kind uint8

const (
	Route Kind = 1
	Ack   Kind = 2
	Nack  Kind = 3
	Busy  Kind = 4

	// Cmd is the routing-table name for Route.
	Cmd = Route
)

func (k Kind) String() string {
	switch k {
	case Route:
		return "route"
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	case Busy:
		return "busy"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is a known frame kind.
func (k Kind) Valid() bool {
	return k >= Route && k <= Busy
}

// Frame is a decoded routed frame. Payload is nil for frames with an empty
// body, as sent with ack and nack.
type Frame struct {
	Kind    Kind
	To      Device
	From    Device
	Index   uint8
	Total   uint8
	Payload *command.Command
}

// NewRoute builds a single-part route frame carrying cmd from ground.
func NewRoute(to Device, cmd command.Command) Frame {
	return Frame{Kind: Route, To: to, From: Ground, Payload: &cmd}
}

func (f Frame) String() string {
	switch {
	case f.Kind == Ack || f.Kind == Nack || f.Kind == Busy:
		return fmt.Sprintf("%s→%s: %s", f.From, f.To, f.Kind)
	case f.Payload == nil:
		return fmt.Sprintf("%s→%s: %s()", f.From, f.To, f.Kind)
	}
	return fmt.Sprintf("%s→%s: %s", f.From, f.To, f.Payload)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f Frame) MarshalBinary() ([]byte, error) {
	return Encode(f)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *Frame) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// Encode serializes f into exactly Size bytes.
func Encode(f Frame) ([]byte, error) {
	if !f.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(f.Kind))
	}
	if !f.To.Valid() {
		return nil, fmt.Errorf("%w: to=%d", ErrUnknownDevice, uint8(f.To))
	}
	if !f.From.Valid() {
		return nil, fmt.Errorf("%w: from=%d", ErrUnknownDevice, uint8(f.From))
	}

	var payload []byte
	if f.Payload != nil {
		var err error
		payload, err = command.Encode(*f.Payload)
		if err != nil {
			return nil, err
		}
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	buf := make([]byte, Size)
	bodyLen := HeaderSize + len(payload)
	binary.BigEndian.PutUint16(buf, uint16(bodyLen+ChecksumSize))

	body := buf[LengthPrefixSize : LengthPrefixSize+bodyLen]
	body[0] = byte(f.Kind)
	body[1] = byte(f.To)
	body[2] = byte(f.From)
	body[3] = f.Index
	body[4] = f.Total
	copy(body[HeaderSize:], payload)

	binary.BigEndian.PutUint32(buf[LengthPrefixSize+bodyLen:], crc32.ChecksumIEEE(body))
	return buf, nil
}

// Decode parses a Size-byte frame. The checksum is verified before any
// field is interpreted.
func Decode(data []byte) (Frame, error) {
	if len(data) != Size {
		return Frame{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSizeMismatch, len(data), Size)
	}

	declared := int(binary.BigEndian.Uint16(data))
	if declared < HeaderSize+ChecksumSize || declared > Size-LengthPrefixSize {
		return Frame{}, fmt.Errorf("%w: corrupt length prefix %d", ErrChecksumMismatch, declared)
	}
	bodyEnd := LengthPrefixSize + declared - ChecksumSize
	body := data[LengthPrefixSize:bodyEnd]
	want := binary.BigEndian.Uint32(data[bodyEnd:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return Frame{}, fmt.Errorf("%w: computed %08x, frame carries %08x", ErrChecksumMismatch, got, want)
	}

	f := Frame{
		Kind:  Kind(body[0]),
		To:    Device(body[1]),
		From:  Device(body[2]),
		Index: body[3],
		Total: body[4],
	}
	if !f.To.Valid() {
		return Frame{}, fmt.Errorf("%w: to=%d", ErrUnknownDevice, body[1])
	}
	if !f.From.Valid() {
		return Frame{}, fmt.Errorf("%w: from=%d", ErrUnknownDevice, body[2])
	}
	if !f.Kind.Valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownKind, body[0])
	}

	if payload := body[HeaderSize:]; len(payload) > 0 {
		cmd, err := command.Decode(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = &cmd
	}
	return f, nil
}
