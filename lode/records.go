package lode

import (
	"time"

	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

// Record kinds. The record_kind field is also the last partition key.
const (
	RecordKindObservation   = "observation"
	RecordKindDownloadFrame = "download_frame"
	RecordKindDownload      = "download"
	RecordKindMetrics       = "metrics"
)

// partitionKeys is the Hive layout of the archive dataset.
var partitionKeys = []string{"station", "day", "session_id", "record_kind"}

// Records are map[string]any because the Hive layout reads partition
// values from record fields.

func (a *Archive) base(kind string) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"station":     a.config.Station,
		"day":         a.config.Day,
		"session_id":  a.config.SessionID,
	}
}

func envelopeFields(m map[string]any, env envelope.Envelope) {
	m["command"] = env.Command.String()
	if env.Filename != "" {
		m["filename"] = env.Filename
	}
	if env.ChunkTotal > 0 {
		m["chunk_index"] = env.ChunkIndex
		m["chunk_total"] = env.ChunkTotal
		m["byte_offset"] = env.ByteOffset
	}
	if !env.Address.IsZero() {
		m["address"] = env.Address.String()
	}
	if env.Timestamp != 0 {
		m["timestamp"] = env.Timestamp
	}
	if env.ErrorCode != 0 || env.ErrorString != "" {
		m["error_code"] = env.ErrorCode
		m["error_string"] = env.ErrorString
	}
	if env.Frame != nil {
		m["frame"] = env.Frame.String()
		m["from"] = env.Frame.From.String()
		m["to"] = env.Frame.To.String()
		if env.Frame.Payload != nil {
			m["payload"] = env.Frame.Payload.Payload.Any()
		}
	}
}

func (a *Archive) observationRecord(msg link.Message) map[string]any {
	m := a.base(RecordKindObservation)
	m["received_at"] = msg.Received.UTC().Format(time.RFC3339Nano)
	m["raw"] = msg.Raw
	if msg.Err != nil {
		m["decode_error"] = msg.Err.Error()
	}
	if msg.Envelope.Command.Valid() {
		envelopeFields(m, msg.Envelope)
	}
	return m
}

func (a *Archive) downloadFrameRecord(res *download.Result, seq int, env envelope.Envelope) map[string]any {
	m := a.base(RecordKindDownloadFrame)
	m["download"] = res.Filename
	m["seq"] = seq
	envelopeFields(m, env)
	return m
}

func (a *Archive) downloadRecord(res *download.Result) map[string]any {
	m := a.base(RecordKindDownload)
	m["filename"] = res.Filename
	m["probed"] = res.Probed
	m["expected"] = res.Expected
	m["received"] = res.Received
	m["error_reg"] = res.ErrorMax
	m["class"] = string(res.Class)
	m["started_at"] = res.Started.UTC().Format(time.RFC3339Nano)
	m["finished_at"] = res.Finished.UTC().Format(time.RFC3339Nano)
	if res.Path != "" {
		m["local_path"] = res.Path
	}
	return m
}

func (a *Archive) metricsRecord(snap metrics.Snapshot, status types.SessionStatus, completedAt time.Time) map[string]any {
	m := a.base(RecordKindMetrics)
	m["status"] = string(status)
	m["completed_at"] = completedAt.UTC().Format(time.RFC3339Nano)
	m["transport"] = snap.Transport
	m["elapsed_ms"] = snap.Elapsed.Milliseconds()
	m["envelopes_sent"] = snap.EnvelopesSent
	m["retransmits"] = snap.Retransmits
	m["acks_received"] = snap.AcksReceived
	m["ack_timeouts"] = snap.AckTimeouts
	m["observed"] = snap.Observed
	m["decode_errors"] = snap.DecodeErrors
	m["bytes_sent"] = snap.BytesSent
	m["bytes_received"] = snap.BytesReceived
	m["sessions_started"] = snap.SessionsStarted
	m["sessions_failed"] = snap.SessionsFailed
	m["download_frames"] = snap.DownloadFrames
	m["download_expected"] = snap.DownloadExpected
	m["archive_write_success"] = snap.ArchiveWriteSuccess
	m["archive_write_failure"] = snap.ArchiveWriteFailure
	return m
}
