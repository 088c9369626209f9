package link

import (
	"context"
	"io"
	"time"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/script"
)

// Source yields envelopes one at a time. Next returns io.EOF once the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (envelope.Envelope, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (envelope.Envelope, error)

// Next calls f.
func (f SourceFunc) Next(ctx context.Context) (envelope.Envelope, error) {
	return f(ctx)
}

// SliceSource yields a fixed list of envelopes.
func SliceSource(envs ...envelope.Envelope) Source {
	i := 0
	return SourceFunc(func(ctx context.Context) (envelope.Envelope, error) {
		if err := ctx.Err(); err != nil {
			return envelope.Envelope{}, err
		}
		if i >= len(envs) {
			return envelope.Envelope{}, io.EOF
		}
		i++
		return envs[i-1], nil
	})
}

// ScriptSource replays a script's entries in order. Frame entries are
// wrapped in exec-now envelopes.
type ScriptSource struct {
	entries []script.Entry
	pos     int
	pace    bool
	start   time.Time
}

// NewScriptSource creates a source over s. With pace set, each entry is
// held back until its offset has elapsed since the first entry was sent.
func NewScriptSource(s *script.Script, pace bool) *ScriptSource {
	return &ScriptSource{entries: s.Entries, pace: pace}
}

// Remaining returns how many entries have not been yielded yet.
func (s *ScriptSource) Remaining() int {
	return len(s.entries) - s.pos
}

// Next returns the next entry as an envelope.
func (s *ScriptSource) Next(ctx context.Context) (envelope.Envelope, error) {
	if s.pos >= len(s.entries) {
		return envelope.Envelope{}, io.EOF
	}
	e := s.entries[s.pos]

	if s.pace {
		if s.pos == 0 {
			s.start = time.Now()
		}
		delay := time.Until(s.start.Add(offsetDuration(e.Offset - s.entries[0].Offset)))
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return envelope.Envelope{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	s.pos++
	return e.Item(), nil
}

func offsetDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
