// Package metrics provides per-session link and download counters.
//
// The Collector accumulates counters during a single session. It is a leaf
// package with no internal dependencies.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Link
	EnvelopesSent   int64 `json:"envelopes_sent"`
	Retransmits     int64 `json:"retransmits"`
	AcksReceived    int64 `json:"acks_received"`
	AckTimeouts     int64 `json:"ack_timeouts"`
	Observed        int64 `json:"observed"`
	DecodeErrors    int64 `json:"decode_errors"`
	BytesSent       int64 `json:"bytes_sent"`
	BytesReceived   int64 `json:"bytes_received"`
	SessionsStarted int64 `json:"sessions_started"`
	SessionsFailed  int64 `json:"sessions_failed"`

	// Download
	DownloadFrames   int64 `json:"download_frames"`
	DownloadExpected int64 `json:"download_expected"`

	// Archive
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`

	// Dimensions (informational, set at construction)
	Station   string `json:"station"`
	Transport string `json:"transport"`
	SessionID string `json:"session_id"`

	// Elapsed is the time since the collector was created.
	Elapsed time.Duration `json:"elapsed"`
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	envelopesSent   int64
	retransmits     int64
	acksReceived    int64
	ackTimeouts     int64
	observed        int64
	decodeErrors    int64
	bytesSent       int64
	bytesReceived   int64
	sessionsStarted int64
	sessionsFailed  int64

	downloadFrames   int64
	downloadExpected int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	station   string
	transport string
	sessionID string
	started   time.Time
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(station, transport, sessionID string) *Collector {
	return &Collector{
		station:   station,
		transport: transport,
		sessionID: sessionID,
		started:   time.Now(),
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Link ---

// IncSessionStarted records a connected session.
func (c *Collector) IncSessionStarted() {
	if c == nil {
		return
	}
	c.add(&c.sessionsStarted, 1)
}

// IncSessionFailed records a session that ended in failure or disconnect.
func (c *Collector) IncSessionFailed() {
	if c == nil {
		return
	}
	c.add(&c.sessionsFailed, 1)
}

// RecordSend records one envelope write of n bytes. Retransmissions count
// toward both sends and retransmits.
func (c *Collector) RecordSend(n int, retransmit bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.envelopesSent++
	c.bytesSent += int64(n)
	if retransmit {
		c.retransmits++
	}
	c.mu.Unlock()
}

// RecordReceive records n inbound bytes.
func (c *Collector) RecordReceive(n int) {
	if c == nil {
		return
	}
	c.add(&c.bytesReceived, int64(n))
}

// IncAck records an acknowledgement.
func (c *Collector) IncAck() {
	if c == nil {
		return
	}
	c.add(&c.acksReceived, 1)
}

// IncAckTimeout records an acknowledgement deadline that elapsed.
func (c *Collector) IncAckTimeout() {
	if c == nil {
		return
	}
	c.add(&c.ackTimeouts, 1)
}

// IncObserved records an inbound envelope that was not an acknowledgement.
func (c *Collector) IncObserved() {
	if c == nil {
		return
	}
	c.add(&c.observed, 1)
}

// IncDecodeErrors records inbound data that failed to decode.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.add(&c.decodeErrors, 1)
}

// --- Download ---

// IncDownloadFrame records one received data frame.
func (c *Collector) IncDownloadFrame() {
	if c == nil {
		return
	}
	c.add(&c.downloadFrames, 1)
}

// SetDownloadExpected records the announced chunk total.
func (c *Collector) SetDownloadExpected(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.downloadExpected = n
	c.mu.Unlock()
}

// --- Archive ---
// Archive counters are per-call, not per-record.

// IncArchiveWriteSuccess records a successful archive write.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteSuccess, 1)
}

// IncArchiveWriteFailure records a failed archive write.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		EnvelopesSent:   c.envelopesSent,
		Retransmits:     c.retransmits,
		AcksReceived:    c.acksReceived,
		AckTimeouts:     c.ackTimeouts,
		Observed:        c.observed,
		DecodeErrors:    c.decodeErrors,
		BytesSent:       c.bytesSent,
		BytesReceived:   c.bytesReceived,
		SessionsStarted: c.sessionsStarted,
		SessionsFailed:  c.sessionsFailed,

		DownloadFrames:   c.downloadFrames,
		DownloadExpected: c.downloadExpected,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		Station:   c.station,
		Transport: c.transport,
		SessionID: c.sessionID,
		Elapsed:   time.Since(c.started),
	}
}
