// Package envelope implements the transport envelope exchanged over the
// ground link. Every envelope is Size bytes: a fixed header followed by a
// frame region that holds one routed frame for exec-now and append-file.
package envelope

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/evidlo/rosen/frame"
)

// Field widths and offsets of the header.
const (
	FilenameSize    = 16
	ErrorStringSize = 32

	offCommand     = 0
	offFilename    = 1
	offChunkIndex  = offFilename + FilenameSize
	offChunkTotal  = offChunkIndex + 4
	offByteOffset  = offChunkTotal + 4
	offAddress     = offByteOffset + 4
	offTimestamp   = offAddress + 4
	offErrorCode   = offTimestamp + 4
	offErrorString = offErrorCode + 1

	// HeaderSize is the size of everything before the frame region.
	HeaderSize = offErrorString + ErrorStringSize
	// Size is the fixed encoded size of every envelope.
	Size = HeaderSize + frame.Size
)

var (
	// ErrFieldTooLong is returned when a string exceeds its field width.
	ErrFieldTooLong = errors.New("field too long")
	// ErrInvalidField is returned for non-ASCII strings or bad addresses.
	ErrInvalidField = errors.New("invalid field")
	// ErrUnknownCommand is returned for a command byte outside 1..17.
	ErrUnknownCommand = errors.New("unknown envelope command")
	// ErrMissingFrame is returned when exec-now or append-file has no frame.
	ErrMissingFrame = errors.New("missing frame")
	// ErrEnvelopeSizeMismatch is returned when input is not exactly Size bytes.
	ErrEnvelopeSizeMismatch = errors.New("envelope size mismatch")
)

// Address is an IPv4 address as carried on the wire.
type Address [4]byte

// ParseAddress parses a dotted-quad IPv4 address. The empty string is
// 0.0.0.0.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, nil
	}
	ip, err := netip.ParseAddr(s)
	if err != nil || !ip.Is4() {
		return Address{}, fmt.Errorf("%w: address %q is not dotted-quad IPv4", ErrInvalidField, s)
	}
	return Address(ip.As4()), nil
}

func (a Address) String() string {
	return netip.AddrFrom4(a).String()
}

// IsZero reports whether a is 0.0.0.0.
func (a Address) IsZero() bool { return a == Address{} }

// Envelope is a decoded transport envelope.
type Envelope struct {
	Command     Command
	Filename    string
	ChunkIndex  uint32
	ChunkTotal  uint32
	ByteOffset  uint32
	Address     Address
	Timestamp   uint32
	ErrorCode   uint8
	ErrorString string
	// Frame is set only for commands that carry one.
	Frame *frame.Frame
}

func (e Envelope) String() string {
	var b bytes.Buffer
	b.WriteString(e.Command.String())
	if e.Filename != "" {
		fmt.Fprintf(&b, " file=%s", e.Filename)
	}
	if e.ChunkTotal > 0 {
		fmt.Fprintf(&b, " chunk=%d/%d offset=%d", e.ChunkIndex, e.ChunkTotal, e.ByteOffset)
	}
	if !e.Address.IsZero() {
		fmt.Fprintf(&b, " addr=%s", e.Address)
	}
	if e.Timestamp != 0 {
		fmt.Fprintf(&b, " time=%d", e.Timestamp)
	}
	if e.ErrorCode != 0 || e.ErrorString != "" {
		fmt.Fprintf(&b, " err=%d %q", e.ErrorCode, e.ErrorString)
	}
	if e.Frame != nil {
		fmt.Fprintf(&b, " [%s]", e.Frame)
	}
	return b.String()
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e Envelope) MarshalBinary() ([]byte, error) {
	return Encode(e)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}

// Encode serializes e into exactly Size bytes. Input is validated before
// anything is written; strings are never truncated.
func Encode(e Envelope) ([]byte, error) {
	if !e.Command.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, uint8(e.Command))
	}
	if err := checkString("filename", e.Filename, FilenameSize); err != nil {
		return nil, err
	}
	if err := checkString("error string", e.ErrorString, ErrorStringSize); err != nil {
		return nil, err
	}

	var frameBytes []byte
	if e.Command.CarriesFrame() {
		if e.Frame == nil {
			return nil, fmt.Errorf("%w: %s requires a frame", ErrMissingFrame, e.Command)
		}
		var err error
		frameBytes, err = frame.Encode(*e.Frame)
		if err != nil {
			return nil, fmt.Errorf("encode frame: %w", err)
		}
	}

	buf := make([]byte, Size)
	buf[offCommand] = byte(e.Command)
	copy(buf[offFilename:offFilename+FilenameSize], e.Filename)
	binary.BigEndian.PutUint32(buf[offChunkIndex:], e.ChunkIndex)
	binary.BigEndian.PutUint32(buf[offChunkTotal:], e.ChunkTotal)
	binary.BigEndian.PutUint32(buf[offByteOffset:], e.ByteOffset)
	copy(buf[offAddress:offAddress+4], e.Address[:])
	binary.BigEndian.PutUint32(buf[offTimestamp:], e.Timestamp)
	buf[offErrorCode] = e.ErrorCode
	copy(buf[offErrorString:offErrorString+ErrorStringSize], e.ErrorString)
	copy(buf[HeaderSize:], frameBytes)
	return buf, nil
}

// Decode parses a Size-byte envelope, including the embedded frame for
// commands that carry one.
func Decode(data []byte) (Envelope, error) {
	e, err := DecodeHeader(data)
	if err != nil {
		return Envelope{}, err
	}
	if e.Command.CarriesFrame() {
		f, err := frame.Decode(data[HeaderSize:])
		if err != nil {
			return Envelope{}, fmt.Errorf("%s frame: %w", e.Command, err)
		}
		e.Frame = &f
	}
	return e, nil
}

// DecodeHeader parses every field except the frame region. It lets callers
// classify envelopes whose embedded frame is damaged.
func DecodeHeader(data []byte) (Envelope, error) {
	if len(data) != Size {
		return Envelope{}, fmt.Errorf("%w: got %d bytes, want %d", ErrEnvelopeSizeMismatch, len(data), Size)
	}
	e := Envelope{
		Command:     Command(data[offCommand]),
		Filename:    trimField(data[offFilename : offFilename+FilenameSize]),
		ChunkIndex:  binary.BigEndian.Uint32(data[offChunkIndex:]),
		ChunkTotal:  binary.BigEndian.Uint32(data[offChunkTotal:]),
		ByteOffset:  binary.BigEndian.Uint32(data[offByteOffset:]),
		Timestamp:   binary.BigEndian.Uint32(data[offTimestamp:]),
		ErrorCode:   data[offErrorCode],
		ErrorString: trimField(data[offErrorString : offErrorString+ErrorStringSize]),
	}
	copy(e.Address[:], data[offAddress:offAddress+4])
	if !e.Command.Valid() {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnknownCommand, data[offCommand])
	}
	return e, nil
}

func checkString(field, s string, width int) error {
	if len(s) > width {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFieldTooLong, field, len(s), width)
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] > 0x7f {
			return fmt.Errorf("%w: %s contains non-ASCII byte %#02x", ErrInvalidField, field, s[i])
		}
	}
	// Decode strips space padding, so a trailing space could not round-trip.
	if strings.HasSuffix(s, " ") {
		return fmt.Errorf("%w: %s %q ends in a space", ErrInvalidField, field, s)
	}
	return nil
}

func trimField(b []byte) string {
	return string(bytes.TrimRight(b, "\x00 "))
}
