package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

func TestNewSessionCompletedEvent(t *testing.T) {
	start := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	meta := &types.SessionMeta{SessionID: "s-1", Station: "gs-1", Mode: types.ModeDownload, StartedAt: start}
	snap := metrics.Snapshot{EnvelopesSent: 4, AcksReceived: 4, Retransmits: 1}

	ev := NewSessionCompletedEvent(meta, types.StatusCompleted, snap, nil, start.Add(2*time.Second))
	if ev.EventType != EventType || ev.Mode != "download" || ev.Status != "completed" {
		t.Errorf("event = %+v", ev)
	}
	if ev.DurationMs != 2000 {
		t.Errorf("DurationMs = %d, want 2000", ev.DurationMs)
	}
	if ev.Timestamp != "2026-10-17T12:00:02Z" {
		t.Errorf("Timestamp = %q", ev.Timestamp)
	}
	if ev.DownloadFile != "" {
		t.Errorf("DownloadFile = %q without a result", ev.DownloadFile)
	}

	res := &download.Result{Filename: "log.bin", Received: 3, Expected: 3, ErrorMax: 310, Class: types.ErrorClassCritical}
	ev = NewSessionCompletedEvent(meta, types.StatusCompleted, snap, res, start)
	if ev.DownloadFile != "log.bin" || ev.ErrorRegister != 310 || ev.ErrorClass != "critical" {
		t.Errorf("download fields = %+v", ev)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWait_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := Wait(ctx, 3); err == nil {
		t.Error("Wait on canceled context returned nil")
	}
}
