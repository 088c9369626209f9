package runtime

import (
	"context"
	"errors"
	"io"

	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/types"
)

// Process exit codes.
const (
	ExitCodeSuccess  = 0 // completed, stopped or interrupted
	ExitCodeFailure  = 1 // acknowledgement never arrived, or any other failure
	ExitCodeLink     = 2 // stream refused, reset or closed
	ExitCodeCritical = 3 // download reported a critical error register
)

// DetermineStatus maps the error a session task returned to its terminal
// status. A nil error or io.EOF means the packet source was exhausted.
// Stream failures are checked first so a wrapped io.EOF from a closed peer
// never reads as completion.
func DetermineStatus(err error) types.SessionStatus {
	switch {
	case err == nil:
		return types.StatusCompleted
	case errors.Is(err, link.ErrConnectionRefused),
		errors.Is(err, link.ErrConnectionReset),
		errors.Is(err, link.ErrIncompleteFrame),
		errors.Is(err, link.ErrNotConnected):
		return types.StatusDisconnected
	case errors.Is(err, io.EOF):
		return types.StatusCompleted
	case errors.Is(err, link.ErrStopped),
		errors.Is(err, context.Canceled):
		return types.StatusStopped
	case errors.Is(err, link.ErrAckTimeout):
		return types.StatusFailed
	}
	return types.StatusFailed
}

// ExitCode maps a terminal status and the error class of an optional
// download to the process exit code.
//
//   - completed: 0, or 3 when the download error register is critical
//   - stopped:   0 (interrupts exit cleanly)
//   - failed:    1
//   - disconnected: 2
func ExitCode(status types.SessionStatus, class types.ErrorClass) int {
	switch status {
	case types.StatusCompleted:
		if class == types.ErrorClassCritical {
			return ExitCodeCritical
		}
		return ExitCodeSuccess
	case types.StatusStopped:
		return ExitCodeSuccess
	case types.StatusDisconnected:
		return ExitCodeLink
	}
	return ExitCodeFailure
}
