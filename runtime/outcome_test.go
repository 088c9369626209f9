package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/types"
)

func TestDetermineStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.SessionStatus
	}{
		{"nil", nil, types.StatusCompleted},
		{"eof", io.EOF, types.StatusCompleted},
		{"stopped", link.ErrStopped, types.StatusStopped},
		{"canceled", fmt.Errorf("next envelope: %w", context.Canceled), types.StatusStopped},
		{"ack timeout", fmt.Errorf("%w after 3 attempt(s)", link.ErrAckTimeout), types.StatusFailed},
		{"refused", &link.StreamError{Kind: link.StreamRefused, Msg: "dial"}, types.StatusDisconnected},
		{"reset", &link.StreamError{Kind: link.StreamReset, Msg: "stream closed"}, types.StatusDisconnected},
		{"peer closed", &link.StreamError{Kind: link.StreamReset, Msg: "peer closed the stream"}, types.StatusDisconnected},
		{"reset wrapping eof", &link.StreamError{Kind: link.StreamReset, Msg: "peer closed the stream", Err: io.EOF}, types.StatusDisconnected},
		{"partial wrapping eof", fmt.Errorf("download: %w", &link.StreamError{Kind: link.StreamPartial, Msg: "read", Err: io.ErrUnexpectedEOF}), types.StatusDisconnected},
		{"partial", &link.StreamError{Kind: link.StreamPartial, Msg: "read"}, types.StatusDisconnected},
		{"not connected", link.ErrNotConnected, types.StatusDisconnected},
		{"other", errors.New("boom"), types.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineStatus(tt.err); got != tt.want {
				t.Errorf("DetermineStatus(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		status types.SessionStatus
		class  types.ErrorClass
		want   int
	}{
		{types.StatusCompleted, types.ErrorClassClean, ExitCodeSuccess},
		{types.StatusCompleted, types.ErrorClassNonCritical, ExitCodeSuccess},
		{types.StatusCompleted, types.ErrorClassCritical, ExitCodeCritical},
		{types.StatusStopped, types.ErrorClassClean, ExitCodeSuccess},
		{types.StatusStopped, types.ErrorClassCritical, ExitCodeSuccess},
		{types.StatusFailed, types.ErrorClassClean, ExitCodeFailure},
		{types.StatusDisconnected, types.ErrorClassClean, ExitCodeLink},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.class), func(t *testing.T) {
			if got := ExitCode(tt.status, tt.class); got != tt.want {
				t.Errorf("ExitCode(%q, %q) = %d, want %d", tt.status, tt.class, got, tt.want)
			}
		})
	}
}
