package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	lodestore "github.com/justapithecus/lode/lode"

	"github.com/evidlo/rosen/adapter"
	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/iox"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/lode"
	"github.com/evidlo/rosen/log"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

// recordingAdapter captures published events.
type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.SessionCompletedEvent
}

func (a *recordingAdapter) Publish(_ context.Context, ev *adapter.SessionCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func (a *recordingAdapter) Close() error { return nil }

// pipeDial returns a DialFunc handing out the local end of a net.Pipe and
// serves the remote end with serve.
func pipeDial(t *testing.T, serve func(conn net.Conn)) DialFunc {
	t.Helper()
	return func(context.Context, link.Endpoint) (io.ReadWriteCloser, error) {
		local, remote := net.Pipe()
		t.Cleanup(iox.CloseFunc(remote))
		go serve(remote)
		return local, nil
	}
}

// silentPeer reads and discards everything without acknowledging.
func silentPeer(conn net.Conn) {
	_, _ = io.Copy(io.Discard, conn)
}

func newTestSession(t *testing.T, cfg *SessionConfig) *Session {
	t.Helper()
	if cfg.Meta == nil {
		cfg.Meta = &types.SessionMeta{
			SessionID: "sess-001",
			Station:   "gs-1",
			Mode:      types.ModeRun,
			StartedAt: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func runSource(envs ...envelope.Envelope) Task {
	return func(ctx context.Context, c *link.Client) (*download.Result, error) {
		return nil, c.Run(ctx, link.SliceSource(envs...))
	}
}

func TestNewSession_InvalidMeta(t *testing.T) {
	for _, meta := range []*types.SessionMeta{nil, {Station: "gs-1"}} {
		if _, err := NewSession(&SessionConfig{Meta: meta}); err == nil {
			t.Errorf("NewSession(%v) error = nil, want error", meta)
		}
	}
}

func TestSession_Completed(t *testing.T) {
	dir := t.TempDir()
	obsPath := filepath.Join(dir, link.DefaultObservationLog)

	collector := metrics.NewCollector("gs-1", "pipe", "sess-001")
	archive, err := lode.NewArchive(lode.Config{
		Dataset:   lode.DefaultDataset,
		Station:   "gs-1",
		Day:       "2026-10-17",
		SessionID: "sess-001",
	}, dir, lode.WithMetrics(collector))
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	notifier := &recordingAdapter{}

	responder := &link.Responder{
		Handle: func(env envelope.Envelope) []envelope.Envelope {
			if env.Command == envelope.GetTime {
				return []envelope.Envelope{{Command: envelope.SetTime, Timestamp: 1_700_000_000}}
			}
			return nil
		},
	}
	s := newTestSession(t, &SessionConfig{
		Link:           link.Config{AckTimeout: time.Second},
		ObservationLog: obsPath,
		Archive:        archive,
		Adapter:        notifier,
		Collector:      collector,
		Dial: pipeDial(t, func(conn net.Conn) {
			_ = responder.Serve(context.Background(), conn)
		}),
	})

	res := s.Execute(t.Context(), runSource(
		envelope.Envelope{Command: envelope.ListStorage},
		envelope.Envelope{Command: envelope.GetTime},
	))

	if res.Status != types.StatusCompleted || res.ExitCode != ExitCodeSuccess {
		t.Fatalf("Status = %q, ExitCode = %d, Err = %v", res.Status, res.ExitCode, res.Err)
	}
	if res.Observed != 1 {
		t.Errorf("Observed = %d, want 1", res.Observed)
	}
	if res.Metrics.EnvelopesSent != 2 || res.Metrics.AcksReceived != 2 {
		t.Errorf("sent = %d, acks = %d, want 2, 2", res.Metrics.EnvelopesSent, res.Metrics.AcksReceived)
	}

	data, err := os.ReadFile(obsPath)
	if err != nil {
		t.Fatalf("read observation log: %v", err)
	}
	if len(data) != envelope.Size {
		t.Errorf("observation log = %d bytes, want %d", len(data), envelope.Size)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("published %d events, want 1", len(notifier.events))
	}
	ev := notifier.events[0]
	if ev.Status != string(types.StatusCompleted) || ev.EnvelopesSent != 2 {
		t.Errorf("event = %+v", ev)
	}
	if ev.StoragePath != archive.FilePath("") {
		t.Errorf("StoragePath = %q, want %q", ev.StoragePath, archive.FilePath(""))
	}

	ds, err := lode.NewReadDataset(lode.DefaultDataset, lodestore.NewFSFactory(dir))
	if err != nil {
		t.Fatalf("NewReadDataset: %v", err)
	}
	rec, err := lode.QueryLatestMetrics(t.Context(), ds, lode.Filter{SessionID: "sess-001"})
	if err != nil {
		t.Fatalf("QueryLatestMetrics: %v", err)
	}
	if rec["status"] != string(types.StatusCompleted) {
		t.Errorf("archived status = %v, want completed", rec["status"])
	}
	obs, err := lode.QueryRecords(t.Context(), ds, lode.RecordKindObservation, lode.Filter{})
	if err != nil {
		t.Fatalf("QueryRecords(observation): %v", err)
	}
	if len(obs) != 1 || obs[0]["command"] != envelope.SetTime.String() {
		t.Errorf("observations = %v", obs)
	}
}

func TestSession_DialRefused(t *testing.T) {
	notifier := &recordingAdapter{}
	s := newTestSession(t, &SessionConfig{
		Adapter: notifier,
		Dial: func(context.Context, link.Endpoint) (io.ReadWriteCloser, error) {
			return nil, &link.StreamError{Kind: link.StreamRefused, Msg: "dial tcp", Err: fmt.Errorf("connect: connection refused")}
		},
	})

	called := false
	res := s.Execute(t.Context(), func(context.Context, *link.Client) (*download.Result, error) {
		called = true
		return nil, nil
	})
	if called {
		t.Error("task ran after dial failure")
	}
	if res.Status != types.StatusDisconnected || res.ExitCode != ExitCodeLink {
		t.Errorf("Status = %q, ExitCode = %d, want disconnected, %d", res.Status, res.ExitCode, ExitCodeLink)
	}
	if len(notifier.events) != 1 || notifier.events[0].Status != string(types.StatusDisconnected) {
		t.Errorf("events = %v", notifier.events)
	}
}

func TestSession_AckTimeoutFails(t *testing.T) {
	collector := metrics.NewCollector("gs-1", "pipe", "sess-001")
	s := newTestSession(t, &SessionConfig{
		Link:      link.Config{AckTimeout: 20 * time.Millisecond, Retry: link.RetryAbort},
		Collector: collector,
		Dial:      pipeDial(t, silentPeer),
	})

	res := s.Execute(t.Context(), runSource(envelope.Envelope{Command: envelope.ListStorage}))
	if res.Status != types.StatusFailed || res.ExitCode != ExitCodeFailure {
		t.Errorf("Status = %q, ExitCode = %d, want failed, %d", res.Status, res.ExitCode, ExitCodeFailure)
	}
	if res.Metrics.SessionsFailed != 1 || res.Metrics.AckTimeouts != 1 {
		t.Errorf("failed = %d, timeouts = %d, want 1, 1", res.Metrics.SessionsFailed, res.Metrics.AckTimeouts)
	}
}

func TestSession_CancelStopsCleanly(t *testing.T) {
	s := newTestSession(t, &SessionConfig{
		Link: link.Config{AckTimeout: 10 * time.Second},
		Dial: pipeDial(t, silentPeer),
	})

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res := s.Execute(ctx, runSource(envelope.Envelope{Command: envelope.ListStorage}))
	if time.Since(start) > 5*time.Second {
		t.Fatal("Execute did not return promptly after cancel")
	}
	if res.Status != types.StatusStopped || res.ExitCode != ExitCodeSuccess {
		t.Errorf("Status = %q, ExitCode = %d, want stopped, 0", res.Status, res.ExitCode)
	}
}

func TestSession_CriticalDownloadExitCode(t *testing.T) {
	s := newTestSession(t, &SessionConfig{Dial: pipeDial(t, silentPeer)})

	res := s.Execute(t.Context(), func(context.Context, *link.Client) (*download.Result, error) {
		return &download.Result{Filename: "img.jpg", ErrorMax: 310, Class: types.ErrorClassCritical}, nil
	})
	if res.Status != types.StatusCompleted || res.ExitCode != ExitCodeCritical {
		t.Errorf("Status = %q, ExitCode = %d, want completed, %d", res.Status, res.ExitCode, ExitCodeCritical)
	}
	if res.Download == nil || res.Download.Filename != "img.jpg" {
		t.Errorf("Download = %+v", res.Download)
	}
}

func TestSession_PeerClosedIsDisconnected(t *testing.T) {
	notifier := &recordingAdapter{}
	s := newTestSession(t, &SessionConfig{
		Link:    link.Config{AckTimeout: 5 * time.Second},
		Adapter: notifier,
		Dial: pipeDial(t, func(conn net.Conn) {
			buf := make([]byte, envelope.Size)
			_, _ = io.ReadFull(conn, buf)
			_ = conn.Close()
		}),
	})

	res := s.Execute(t.Context(), runSource(
		envelope.Envelope{Command: envelope.ListStorage},
		envelope.Envelope{Command: envelope.GetTime},
	))
	if res.Status != types.StatusDisconnected || res.ExitCode != ExitCodeLink {
		t.Fatalf("Status = %q, ExitCode = %d, Err = %v; want disconnected, %d", res.Status, res.ExitCode, res.Err, ExitCodeLink)
	}
	if errors.Is(res.Err, io.EOF) {
		t.Errorf("Err = %v, should not match io.EOF", res.Err)
	}
	if len(notifier.events) != 1 || notifier.events[0].Status != string(types.StatusDisconnected) {
		t.Errorf("events = %v", notifier.events)
	}
}
