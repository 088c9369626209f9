package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("gs-1", "tcp", "sess-001")

	c.IncSessionStarted()
	c.RecordSend(4162, false)
	c.RecordSend(4162, true)
	c.RecordSend(4162, true)
	c.RecordReceive(100)
	c.RecordReceive(62)
	c.IncAck()
	c.IncAckTimeout()
	c.IncAckTimeout()
	c.IncObserved()
	c.IncDecodeErrors()
	c.IncDownloadFrame()
	c.IncDownloadFrame()
	c.SetDownloadExpected(9)
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.IncSessionFailed()

	s := c.Snapshot()

	checks := []struct {
		name      string
		got, want int64
	}{
		{"SessionsStarted", s.SessionsStarted, 1},
		{"SessionsFailed", s.SessionsFailed, 1},
		{"EnvelopesSent", s.EnvelopesSent, 3},
		{"Retransmits", s.Retransmits, 2},
		{"BytesSent", s.BytesSent, 3 * 4162},
		{"BytesReceived", s.BytesReceived, 162},
		{"AcksReceived", s.AcksReceived, 1},
		{"AckTimeouts", s.AckTimeouts, 2},
		{"Observed", s.Observed, 1},
		{"DecodeErrors", s.DecodeErrors, 1},
		{"DownloadFrames", s.DownloadFrames, 2},
		{"DownloadExpected", s.DownloadExpected, 9},
		{"ArchiveWriteSuccess", s.ArchiveWriteSuccess, 1},
		{"ArchiveWriteFailure", s.ArchiveWriteFailure, 1},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			t.Errorf("%s = %d, want %d", chk.name, chk.got, chk.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("gs-2", "serial", "sess-42")
	s := c.Snapshot()

	if s.Station != "gs-2" {
		t.Errorf("Station = %q, want %q", s.Station, "gs-2")
	}
	if s.Transport != "serial" {
		t.Errorf("Transport = %q, want %q", s.Transport, "serial")
	}
	if s.SessionID != "sess-42" {
		t.Errorf("SessionID = %q, want %q", s.SessionID, "sess-42")
	}
	if s.Elapsed < 0 {
		t.Errorf("Elapsed = %v, want >= 0", s.Elapsed)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncSessionStarted()
	c.IncSessionFailed()
	c.RecordSend(1, true)
	c.RecordReceive(1)
	c.IncAck()
	c.IncAckTimeout()
	c.IncObserved()
	c.IncDecodeErrors()
	c.IncDownloadFrame()
	c.SetDownloadExpected(1)
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil Snapshot = %+v, want zero", s)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector("gs", "tcp", "sess")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordSend(10, j%2 == 0)
				c.IncDownloadFrame()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.EnvelopesSent != 5000 {
		t.Errorf("EnvelopesSent = %d, want 5000", s.EnvelopesSent)
	}
	if s.Retransmits != 2500 {
		t.Errorf("Retransmits = %d, want 2500", s.Retransmits)
	}
	if s.DownloadFrames != 5000 {
		t.Errorf("DownloadFrames = %d, want 5000", s.DownloadFrames)
	}
}
