package link

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionRefused is returned when the stream cannot be opened.
	ErrConnectionRefused = errors.New("connection refused")
	// ErrConnectionReset is returned when the peer resets or closes the stream.
	ErrConnectionReset = errors.New("connection reset")
	// ErrAckTimeout is returned when no acknowledgement arrives in time.
	ErrAckTimeout = errors.New("acknowledgement timeout")
	// ErrIncompleteFrame is returned when the stream ends mid-envelope.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrStopped is returned when the session's stop flag was raised.
	ErrStopped = errors.New("session stopped")
	// ErrNotConnected is returned when an operation needs a connected client.
	ErrNotConnected = errors.New("not connected")
)

// StreamErrorKind classifies stream-level failures.
type StreamErrorKind int

const (
	// StreamPartial indicates the stream ended inside an envelope.
	StreamPartial StreamErrorKind = iota
	// StreamReset indicates the stream was reset or closed by the peer.
	StreamReset
	// StreamRefused indicates the stream could not be opened.
	StreamRefused
	// StreamDecode indicates an inbound envelope failed to decode.
	StreamDecode
)

func (k StreamErrorKind) sentinel() error {
	switch k {
	case StreamPartial:
		return ErrIncompleteFrame
	case StreamReset:
		return ErrConnectionReset
	case StreamRefused:
		return ErrConnectionRefused
	}
	return nil
}

// StreamError represents a failure on the underlying byte stream.
// It matches the corresponding sentinel with errors.Is.
type StreamError struct {
	Kind StreamErrorKind
	Msg  string
	Err  error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *StreamError) Unwrap() []error {
	var errs []error
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsFatal returns true if this error ends the session.
// Decode errors are not fatal: the envelope is logged and skipped.
func (e *StreamError) IsFatal() bool {
	return e.Kind != StreamDecode
}

// IsFatalStreamError returns true if err is a fatal stream error.
func IsFatalStreamError(err error) bool {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.IsFatal()
	}
	return false
}
