package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/evidlo/rosen/envelope"
)

// DefaultPrompt is printed before each line in interactive mode.
const DefaultPrompt = "rosen> "

type line struct {
	text string
	err  error
}

// LineSource reads command lines and yields their envelopes. It implements
// link.Source. Lines that fail to parse are reported to the output writer
// and skipped; end of input yields io.EOF.
type LineSource struct {
	lines  chan line
	out    io.Writer
	prompt string
	more   chan struct{}
}

// Option configures a LineSource.
type Option func(*LineSource)

// WithPrompt prints prompt before each line is read.
func WithPrompt(prompt string) Option {
	return func(s *LineSource) { s.prompt = prompt }
}

// WithOutput sets where prompts and parse errors are written.
func WithOutput(w io.Writer) Option {
	return func(s *LineSource) { s.out = w }
}

// NewLineSource starts reading lines from r. Reading happens on its own
// goroutine so Next can honour ctx while r blocks.
func NewLineSource(r io.Reader, opts ...Option) *LineSource {
	s := &LineSource{
		lines: make(chan line),
		out:   io.Discard,
		more:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.scan(r)
	return s
}

func (s *LineSource) scan(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	for {
		// Read only once a line has been asked for, so the prompt appears
		// after the previous envelope was acknowledged.
		<-s.more
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				s.lines <- line{err: err}
			}
			return
		}
		s.lines <- line{text: sc.Text()}
	}
}

// Next implements link.Source.
func (s *LineSource) Next(ctx context.Context) (envelope.Envelope, error) {
	for {
		if s.prompt != "" {
			fmt.Fprint(s.out, s.prompt)
		}
		select {
		case s.more <- struct{}{}:
		default:
		}

		var l line
		var ok bool
		select {
		case <-ctx.Done():
			return envelope.Envelope{}, ctx.Err()
		case l, ok = <-s.lines:
		}
		if !ok {
			return envelope.Envelope{}, io.EOF
		}
		if l.err != nil {
			return envelope.Envelope{}, l.err
		}

		env, err := Parse(l.text)
		if errors.Is(err, ErrBlank) {
			continue
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			continue
		}
		return env, nil
	}
}
