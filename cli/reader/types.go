// Package reader provides the read-side data access layer for the rosen
// CLI: saved scripts, raw envelope dumps and archived session metrics.
//
// Every value returned here is a plain view struct shared by the table,
// json, yaml and TUI renderers.
package reader

// ScriptView summarizes a saved script.
type ScriptView struct {
	Name      string      `json:"name"`
	Entries   int         `json:"entries"`
	Envelopes int         `json:"envelopes"`
	Frames    int         `json:"frames"`
	Duration  float64     `json:"duration_s"`
	Uploads   []string    `json:"uploads"`
	Items     []EntryView `json:"items"`
}

// EntryView is one script entry.
type EntryView struct {
	Index   int     `json:"index"`
	Offset  float64 `json:"offset"`
	Kind    string  `json:"kind"`
	Command string  `json:"command"`
	Detail  string  `json:"detail"`
}

// EnvelopeView is one decoded envelope from a raw dump.
type EnvelopeView struct {
	Index     int    `json:"index"`
	Command   string `json:"command"`
	Filename  string `json:"filename"`
	Chunk     string `json:"chunk"`
	Address   string `json:"address"`
	Timestamp uint32 `json:"timestamp"`
	Frame     string `json:"frame"`
	Error     string `json:"error"`
}

// DumpView summarizes a saved download.
type DumpView struct {
	Filename   string         `json:"filename"`
	Probed     int            `json:"probed"`
	Expected   int            `json:"expected"`
	Received   int            `json:"received"`
	ErrorReg   int64          `json:"error_reg"`
	ErrorClass string         `json:"error_class"`
	Started    string         `json:"started"`
	Finished   string         `json:"finished"`
	Envelopes  []EnvelopeView `json:"envelopes"`
}

// SessionStats is an archived metrics record.
type SessionStats struct {
	SessionID   string `json:"session_id"`
	Station     string `json:"station"`
	Day         string `json:"day"`
	Status      string `json:"status"`
	CompletedAt string `json:"completed_at"`
	Transport   string `json:"transport"`
	ElapsedMs   int64  `json:"elapsed_ms"`

	EnvelopesSent int64 `json:"envelopes_sent"`
	Retransmits   int64 `json:"retransmits"`
	AcksReceived  int64 `json:"acks_received"`
	AckTimeouts   int64 `json:"ack_timeouts"`
	Observed      int64 `json:"observed"`
	DecodeErrors  int64 `json:"decode_errors"`
	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`

	DownloadFrames   int64 `json:"download_frames"`
	DownloadExpected int64 `json:"download_expected"`

	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`
}
