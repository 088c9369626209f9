// Package runtime orchestrates one ground-link session: it dials the
// endpoint, wires observers, metrics and the archive into a link client,
// runs a task over it and finalizes the session on every exit path.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/evidlo/rosen/adapter"
	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/lode"
	"github.com/evidlo/rosen/log"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

// finalizeTimeout bounds archive and notifier writes after the task ends.
const finalizeTimeout = 30 * time.Second

// DialFunc opens the byte stream for a session. Used for test injection.
type DialFunc func(ctx context.Context, ep link.Endpoint) (io.ReadWriteCloser, error)

// Task is the work done over a connected client. Download tasks return
// their result; other tasks return nil.
type Task func(ctx context.Context, c *link.Client) (*download.Result, error)

// SessionConfig configures a single session.
type SessionConfig struct {
	// Meta is the session identity.
	Meta *types.SessionMeta
	// Endpoint is the ground link to dial.
	Endpoint link.Endpoint
	// Link holds acknowledgement settings. Observer, Logger and Metrics are
	// filled in by the session.
	Link link.Config
	// ObservationLog is the path of the raw observation log ("" = none).
	ObservationLog string
	// Archive optionally receives observations, metrics and the
	// observation log.
	Archive *lode.Archive
	// Adapter optionally publishes a completion event.
	Adapter adapter.Adapter
	// Collector receives session counters (nil-safe).
	Collector *metrics.Collector
	// Logger receives session logs. If nil, a logger is derived from Meta.
	Logger *log.Logger
	// Dial overrides stream creation (for testing).
	// If nil, uses link.DialStream.
	Dial DialFunc
}

// SessionResult is the outcome of a session.
type SessionResult struct {
	Meta     *types.SessionMeta
	Status   types.SessionStatus
	Err      error
	ExitCode int
	Duration time.Duration
	Metrics  metrics.Snapshot
	Download *download.Result
	// Observed is the number of envelopes written to the observation log.
	Observed int
}

// Session orchestrates a single session.
type Session struct {
	config    *SessionConfig
	logger    *log.Logger
	startTime time.Time
}

// NewSession creates a session orchestrator.
func NewSession(config *SessionConfig) (*Session, error) {
	if config.Meta == nil || config.Meta.SessionID == "" {
		return nil, errors.New("invalid session metadata: session id is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.Meta)
	}
	return &Session{config: config, logger: logger}, nil
}

// Execute runs task over a fresh connection and finalizes the session.
// Task errors are reported in the result, not returned.
//
// Execution flow:
//  1. Dial the endpoint
//  2. Open the observation log and compose observers
//  3. Run the task; context cancellation raises the client's stop flag
//  4. Close the stream and flush the observation log
//  5. Archive metrics and the log, publish the completion event
func (s *Session) Execute(ctx context.Context, task Task) *SessionResult {
	s.startTime = time.Now()
	cfg := s.config

	s.logger.Info("starting session", map[string]any{
		"endpoint": cfg.Endpoint.String(),
	})

	dial := cfg.Dial
	if dial == nil {
		dial = link.DialStream
	}
	conn, err := dial(ctx, cfg.Endpoint)
	if err != nil {
		cfg.Collector.IncSessionFailed()
		s.logger.Error("dial failed", map[string]any{"error": err.Error()})
		return s.finalize(ctx, nil, 0, err)
	}

	var observers link.MultiObserver
	var obsLog *link.FileObserver
	if cfg.ObservationLog != "" {
		obsLog, err = link.OpenObservationLog(cfg.ObservationLog)
		if err != nil {
			_ = conn.Close()
			return s.finalize(ctx, nil, 0, fmt.Errorf("open observation log: %w", err))
		}
		observers = append(observers, obsLog)
	}
	if cfg.Archive != nil {
		observers = append(observers, cfg.Archive)
	}

	linkCfg := cfg.Link
	linkCfg.Logger = s.logger
	linkCfg.Metrics = cfg.Collector
	if len(observers) > 0 {
		linkCfg.Observer = observers
	}
	client := link.NewClient(conn, linkCfg)
	s.logger.Info("connected", map[string]any{"endpoint": cfg.Endpoint.String()})

	stop := context.AfterFunc(ctx, client.Stop)
	res, taskErr := task(ctx, client)
	stop()

	if err := client.Close(); err != nil {
		s.logger.Debug("close stream", map[string]any{"error": err.Error()})
	}
	observed := 0
	if obsLog != nil {
		observed = obsLog.Count()
		if err := obsLog.Close(); err != nil {
			s.logger.Warn("observation log close failed", map[string]any{"error": err.Error()})
		}
	}
	if taskErr != nil && DetermineStatus(taskErr) != types.StatusStopped {
		cfg.Collector.IncSessionFailed()
	}
	return s.finalize(ctx, res, observed, taskErr)
}

// finalize writes the archive and notifier records. Failures there are
// logged and never change the session status.
func (s *Session) finalize(ctx context.Context, res *download.Result, observed int, taskErr error) *SessionResult {
	cfg := s.config
	completedAt := time.Now()
	status := DetermineStatus(taskErr)
	class := types.ErrorClassClean
	if res != nil {
		class = res.Class
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if cfg.Archive != nil {
		if err := cfg.Archive.Flush(fctx); err != nil {
			s.logger.Warn("archive flush failed", map[string]any{"error": err.Error()})
		}
		if observed > 0 {
			s.archiveObservationLog(fctx)
		}
	}

	// Snapshot after archive writes so their counters are included.
	snap := cfg.Collector.Snapshot()
	if cfg.Archive != nil {
		if err := cfg.Archive.WriteMetrics(fctx, snap, status, completedAt); err != nil {
			s.logger.Warn("archive metrics write failed", map[string]any{"error": err.Error()})
		}
	}

	if cfg.Adapter != nil {
		event := adapter.NewSessionCompletedEvent(cfg.Meta, status, snap, res, completedAt)
		if cfg.Archive != nil && event.StoragePath == "" {
			event.StoragePath = cfg.Archive.FilePath("")
		}
		if err := cfg.Adapter.Publish(fctx, event); err != nil {
			s.logger.Warn("completion event publish failed", map[string]any{"error": err.Error()})
		}
	}

	result := &SessionResult{
		Meta:     cfg.Meta,
		Status:   status,
		Err:      taskErr,
		ExitCode: ExitCode(status, class),
		Duration: time.Since(s.startTime),
		Metrics:  snap,
		Download: res,
		Observed: observed,
	}

	fields := map[string]any{
		"status":    string(status),
		"exit_code": result.ExitCode,
		"duration":  result.Duration.String(),
		"sent":      snap.EnvelopesSent,
		"observed":  observed,
	}
	if taskErr != nil && status != types.StatusStopped {
		fields["error"] = taskErr.Error()
		s.logger.Error("session ended", fields)
	} else {
		s.logger.Info("session ended", fields)
	}
	return result
}

func (s *Session) archiveObservationLog(ctx context.Context) {
	path := s.config.ObservationLog
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("read observation log failed", map[string]any{"error": err.Error()})
		return
	}
	if err := s.config.Archive.PutFile(ctx, filepath.Base(path), data); err != nil {
		s.logger.Warn("archive observation log failed", map[string]any{"error": err.Error()})
	}
}
