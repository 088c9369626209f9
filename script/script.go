// Package script builds and persists ordered command sequences. Each entry
// pairs a time offset with either a transport envelope (ground scripts) or a
// bare routed frame (scripts to be uploaded and run on board).
package script

import (
	"errors"
	"fmt"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/frame"
)

// MaxNameLength bounds uploaded file names below the envelope field width.
const MaxNameLength = 12

var (
	// ErrNameTooLong is returned when an upload file name exceeds MaxNameLength.
	ErrNameTooLong = errors.New("script name too long")
	// ErrFrameMode is returned when a transport helper is used on a frame script.
	ErrFrameMode = errors.New("transport command in frame script")
	// ErrOffsetOrder is returned when entry offsets would decrease or go
	// negative.
	ErrOffsetOrder = errors.New("script offsets out of order")
)

// Entry is one scheduled item. Exactly one of Envelope and Frame is set.
type Entry struct {
	Offset   float64
	Envelope *envelope.Envelope
	Frame    *frame.Frame
}

// Kind names the item type held by the entry.
func (e Entry) Kind() string {
	if e.Envelope != nil {
		return kindEnvelope
	}
	return kindFrame
}

// Bytes encodes the entry's item.
func (e Entry) Bytes() ([]byte, error) {
	switch {
	case e.Envelope != nil:
		return envelope.Encode(*e.Envelope)
	case e.Frame != nil:
		return frame.Encode(*e.Frame)
	}
	return nil, fmt.Errorf("entry at %.3fs is empty", e.Offset)
}

// Item returns the entry as an envelope, wrapping a bare frame in exec-now.
func (e Entry) Item() envelope.Envelope {
	if e.Envelope != nil {
		return *e.Envelope
	}
	return envelope.Envelope{Command: envelope.ExecNow, Frame: e.Frame}
}

func (e Entry) String() string {
	if e.Envelope != nil {
		return fmt.Sprintf("%8.3f  %s", e.Offset, e.Envelope)
	}
	return fmt.Sprintf("%8.3f  %s", e.Offset, e.Frame)
}

// Script is a named, offset-ordered sequence of entries.
type Script struct {
	Name    string
	Entries []Entry
}

// Len returns the number of entries.
func (s *Script) Len() int { return len(s.Entries) }

// Frames returns the routed frames of the script in order. Envelope entries
// contribute their embedded frame, if any.
func (s *Script) Frames() []frame.Frame {
	out := make([]frame.Frame, 0, len(s.Entries))
	for _, e := range s.Entries {
		switch {
		case e.Frame != nil:
			out = append(out, *e.Frame)
		case e.Envelope != nil && e.Envelope.Frame != nil:
			out = append(out, *e.Envelope.Frame)
		}
	}
	return out
}

// Envelopes returns every entry as a transport envelope.
func (s *Script) Envelopes() []envelope.Envelope {
	out := make([]envelope.Envelope, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Item()
	}
	return out
}

// checkOffsets verifies offsets are non-negative and non-decreasing.
func (s *Script) checkOffsets() error {
	for i, e := range s.Entries {
		if e.Offset < 0 {
			return fmt.Errorf("%w: entry %d offset %.3f is negative", ErrOffsetOrder, i, e.Offset)
		}
		if i > 0 && e.Offset < s.Entries[i-1].Offset {
			return fmt.Errorf("%w: entry %d offset %.3f precedes %.3f", ErrOffsetOrder, i, e.Offset, s.Entries[i-1].Offset)
		}
	}
	return nil
}

// Duration returns the offset of the last entry.
func (s *Script) Duration() float64 {
	if len(s.Entries) == 0 {
		return 0
	}
	return s.Entries[len(s.Entries)-1].Offset
}
