package reader

import "errors"

// ParseSessionStats converts an archived metrics record to SessionStats.
// Numbers may arrive as int64 (direct writes) or float64 (JSON reads).
func ParseSessionStats(record map[string]any) (*SessionStats, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	s := &SessionStats{
		SessionID:   toString(record["session_id"]),
		Station:     toString(record["station"]),
		Day:         toString(record["day"]),
		Status:      toString(record["status"]),
		CompletedAt: toString(record["completed_at"]),
		Transport:   toString(record["transport"]),
		ElapsedMs:   toInt64(record["elapsed_ms"]),

		EnvelopesSent: toInt64(record["envelopes_sent"]),
		Retransmits:   toInt64(record["retransmits"]),
		AcksReceived:  toInt64(record["acks_received"]),
		AckTimeouts:   toInt64(record["ack_timeouts"]),
		Observed:      toInt64(record["observed"]),
		DecodeErrors:  toInt64(record["decode_errors"]),
		BytesSent:     toInt64(record["bytes_sent"]),
		BytesReceived: toInt64(record["bytes_received"]),

		DownloadFrames:   toInt64(record["download_frames"]),
		DownloadExpected: toInt64(record["download_expected"]),

		ArchiveWriteSuccess: toInt64(record["archive_write_success"]),
		ArchiveWriteFailure: toInt64(record["archive_write_failure"]),
	}

	// The write path always sets these.
	if s.SessionID == "" {
		return nil, errors.New("metrics record missing required field: session_id")
	}
	if s.Status == "" {
		return nil, errors.New("metrics record missing required field: status")
	}
	return s, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	default:
		return 0
	}
}
