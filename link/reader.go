package link

import (
	"errors"
	"fmt"
	"io"

	"github.com/evidlo/rosen/envelope"
)

// EnvelopeReader reads fixed-size envelopes from a stream.
type EnvelopeReader struct {
	reader io.Reader
}

// NewEnvelopeReader creates a new envelope reader.
func NewEnvelopeReader(r io.Reader) *EnvelopeReader {
	return &EnvelopeReader{reader: r}
}

// ReadEnvelope reads exactly envelope.Size bytes.
//
// Errors:
//   - io.EOF: stream ended cleanly between envelopes
//   - *StreamError with Kind=StreamPartial: stream ended mid-envelope
//   - *StreamError with Kind=StreamReset: any other read failure
func (d *EnvelopeReader) ReadEnvelope() ([]byte, error) {
	buf := make([]byte, envelope.Size)
	n, err := io.ReadFull(d.reader, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF) && n == 0:
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, &StreamError{
			Kind: StreamPartial,
			Msg:  fmt.Sprintf("stream closed after %d of %d bytes", n, envelope.Size),
			Err:  err,
		}
	}
	return nil, &StreamError{Kind: StreamReset, Msg: "read failed", Err: err}
}
