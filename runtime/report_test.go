package runtime

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

func newTestResult() *SessionResult {
	return &SessionResult{
		Meta: &types.SessionMeta{
			SessionID: "sess-001",
			Station:   "gs-1",
			Mode:      types.ModeDownload,
		},
		Status:   types.StatusCompleted,
		ExitCode: ExitCodeSuccess,
		Duration: 5 * time.Second,
		Observed: 3,
		Metrics: metrics.Snapshot{
			EnvelopesSent:  4,
			DownloadFrames: 12,
			Station:        "gs-1",
			Transport:      "tcp",
			SessionID:      "sess-001",
		},
		Download: &download.Result{
			Filename: "img.jpg",
			Probed:   12,
			Expected: 12,
			Received: 12,
			ErrorMax: 210,
			Class:    types.ErrorClassNonCritical,
			Path:     "20261017T120000_img.jpg.msgpack",
		},
	}
}

func TestBuildSessionReport(t *testing.T) {
	report := BuildSessionReport(newTestResult())

	if report.SessionID != "sess-001" || report.Mode != types.ModeDownload {
		t.Errorf("identity = %q/%q", report.SessionID, report.Mode)
	}
	if report.DurationMs != 5000 {
		t.Errorf("DurationMs = %d, want 5000", report.DurationMs)
	}
	if report.Download == nil {
		t.Fatal("Download is nil")
	}
	if report.Download.ErrorClass != types.ErrorClassNonCritical || report.Download.Received != 12 {
		t.Errorf("Download = %+v", report.Download)
	}
	if report.Metrics.DownloadFrames != 12 {
		t.Errorf("Metrics.DownloadFrames = %d, want 12", report.Metrics.DownloadFrames)
	}
	if report.Message != "" {
		t.Errorf("Message = %q, want empty", report.Message)
	}
}

func TestBuildSessionReport_ErrorNoDownload(t *testing.T) {
	result := newTestResult()
	result.Download = nil
	result.Status = types.StatusFailed
	result.Err = link.ErrAckTimeout

	report := BuildSessionReport(result)
	if report.Download != nil {
		t.Errorf("Download = %+v, want nil", report.Download)
	}
	if report.Message != link.ErrAckTimeout.Error() {
		t.Errorf("Message = %q", report.Message)
	}
}

func TestWriteSessionReport(t *testing.T) {
	report := BuildSessionReport(newTestResult())

	var buf bytes.Buffer
	if err := writeSessionReportTo(report, &buf); err != nil {
		t.Fatalf("writeSessionReportTo: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"session_id", "status", "exit_code", "metrics", "download"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteSessionReport(report, path); err != nil {
		t.Fatalf("WriteSessionReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Error("file report differs from writer report")
	}

	if err := WriteSessionReport(report, ""); err == nil {
		t.Error("WriteSessionReport(\"\") error = nil, want error")
	}
}
