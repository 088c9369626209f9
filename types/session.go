// Package types defines identity and outcome types shared by the rosen
// link, download and archive layers.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"time"

	"github.com/google/uuid"
)

// SessionMode names what a session was opened for.
type SessionMode string

const (
	ModeRun      SessionMode = "run"
	ModeShell    SessionMode = "shell"
	ModeDownload SessionMode = "download"
	ModeServer   SessionMode = "server"
)

// SessionMeta identifies one connection to the ground link. Every log entry
// and archived record of the session carries it.
type SessionMeta struct {
	SessionID string      `json:"session_id" msgpack:"session_id"`
	Station   string      `json:"station" msgpack:"station"`
	Mode      SessionMode `json:"mode" msgpack:"mode"`
	StartedAt time.Time   `json:"started_at" msgpack:"started_at"`
}

// NewSessionMeta creates metadata with a fresh random session id.
func NewSessionMeta(station string, mode SessionMode) *SessionMeta {
	return &SessionMeta{
		SessionID: uuid.NewString(),
		Station:   station,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
}

// SessionStatus is the terminal status of a session.
type SessionStatus string

const (
	// StatusCompleted means the packet source was exhausted.
	StatusCompleted SessionStatus = "completed"
	// StatusStopped means the session was stopped or interrupted.
	StatusStopped SessionStatus = "stopped"
	// StatusFailed means an acknowledgement never arrived.
	StatusFailed SessionStatus = "failed"
	// StatusDisconnected means the stream was refused, reset or closed.
	StatusDisconnected SessionStatus = "disconnected"
)

// ErrorClass classifies the largest error register value reported by the
// payload in a download.
type ErrorClass string

const (
	ErrorClassClean       ErrorClass = "clean"
	ErrorClassNonCritical ErrorClass = "non_critical"
	ErrorClassCritical    ErrorClass = "critical"
)

// Error register thresholds.
const (
	NonCriticalErrorThreshold = 200
	CriticalErrorThreshold    = 300
)

// ClassifyErrorRegister maps an error register value to its class.
func ClassifyErrorRegister(v int64) ErrorClass {
	switch {
	case v >= CriticalErrorThreshold:
		return ErrorClassCritical
	case v >= NonCriticalErrorThreshold:
		return ErrorClassNonCritical
	}
	return ErrorClassClean
}
