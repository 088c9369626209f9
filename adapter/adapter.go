// Package adapter defines the notification boundary for finished sessions.
//
// Adapters publish a SessionCompletedEvent to a downstream system once a
// run or download session ends. The CLI owns adapter lifecycle; users
// provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

// EventType is the event_type of every SessionCompletedEvent.
const EventType = "session_completed"

// SessionCompletedEvent is the payload published when a session finishes.
type SessionCompletedEvent struct {
	EventType  string `json:"event_type"`
	SessionID  string `json:"session_id"`
	Station    string `json:"station"`
	Mode       string `json:"mode"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"` // RFC 3339
	DurationMs int64  `json:"duration_ms"`

	EnvelopesSent int64 `json:"envelopes_sent"`
	AcksReceived  int64 `json:"acks_received"`
	Retransmits   int64 `json:"retransmits"`
	Observed      int64 `json:"observed"`

	// Download fields are set only for download sessions.
	DownloadFile     string `json:"download_file,omitempty"`
	DownloadReceived int    `json:"download_received,omitempty"`
	DownloadExpected int    `json:"download_expected,omitempty"`
	ErrorRegister    int64  `json:"error_reg,omitempty"`
	ErrorClass       string `json:"error_class,omitempty"`

	StoragePath string `json:"storage_path,omitempty"`
}

// NewSessionCompletedEvent assembles the event for a finished session. res
// may be nil.
func NewSessionCompletedEvent(meta *types.SessionMeta, status types.SessionStatus, snap metrics.Snapshot, res *download.Result, completedAt time.Time) *SessionCompletedEvent {
	ev := &SessionCompletedEvent{
		EventType:     EventType,
		SessionID:     meta.SessionID,
		Station:       meta.Station,
		Mode:          string(meta.Mode),
		Status:        string(status),
		Timestamp:     completedAt.UTC().Format(time.RFC3339),
		DurationMs:    completedAt.Sub(meta.StartedAt).Milliseconds(),
		EnvelopesSent: snap.EnvelopesSent,
		AcksReceived:  snap.AcksReceived,
		Retransmits:   snap.Retransmits,
		Observed:      snap.Observed,
	}
	if res != nil {
		ev.DownloadFile = res.Filename
		ev.DownloadReceived = res.Received
		ev.DownloadExpected = res.Expected
		ev.ErrorRegister = res.ErrorMax
		ev.ErrorClass = string(res.Class)
		ev.StoragePath = res.Path
	}
	return ev
}

// Adapter publishes session completion events to a downstream system.
type Adapter interface {
	// Publish sends the event. Must respect context cancellation and
	// deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the wait before retry attempt i (1-based).
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Wait sleeps for the backoff of attempt i or until ctx is done.
func Wait(ctx context.Context, i int) error {
	t := time.NewTimer(Backoff(i))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
