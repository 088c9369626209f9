// Package download retrieves a stored file from the relay as a stream of
// append-file envelopes.
//
// A download runs in stages:
//   - probe: post file-info and collect replies for a settle window
//   - prepare: post disable-storage and wait briefly
//   - transfer: post download-file, then receive until every chunk arrived
//   - persist: write the ordered envelopes and scan them for error_reg
//
// During transfer a receiver, a progress poller and an optional checkpoint
// writer run under one errgroup. There is no idle timeout once the transfer
// has started; cancel ctx to give up.
package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/log"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

// Defaults for Config fields.
const (
	DefaultSettle       = 3 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultDisableDelay = 200 * time.Millisecond
)

// ErrorRegisterKey is the payload field holding the payload's error register.
const ErrorRegisterKey = "error_reg"

// Link is the part of a link client a download needs. *link.Client
// satisfies it.
type Link interface {
	Post(env envelope.Envelope) error
	Receive(ctx context.Context) (link.Message, error)
}

// Archiver stores a finished download somewhere durable.
type Archiver interface {
	ArchiveDownload(ctx context.Context, res *Result) error
}

// Progress is a point-in-time view of a transfer.
type Progress struct {
	Received int
	Expected int
	Elapsed  time.Duration
}

// Rate returns frames per second since the transfer started.
func (p Progress) Rate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Received) / p.Elapsed.Seconds()
}

func (p Progress) String() string {
	return fmt.Sprintf("Got %d of %d packets at %.3f packets/s", p.Received, p.Expected, p.Rate())
}

// Config holds download settings.
type Config struct {
	// Settle is how long file-info replies are collected.
	Settle time.Duration
	// PollInterval is the progress reporting period.
	PollInterval time.Duration
	// DisableDelay is the pause between disable-storage and download-file.
	// Negative disables the pause.
	DisableDelay time.Duration
	// Checkpoint, when positive, persists partial state at this period.
	Checkpoint time.Duration
	// OutputDir is where the dump file is written ("" = current directory).
	OutputDir string
	// OnProgress is called from the poller on every tick and once at the end.
	OnProgress func(Progress)
	// Archive optionally receives the finished result.
	Archive Archiver
	// Logger receives download logs (nil = discard).
	Logger *log.Logger
	// Metrics receives frame counters (nil-safe).
	Metrics *metrics.Collector
}

func (c Config) withDefaults() Config {
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DisableDelay == 0 {
		c.DisableDelay = DefaultDisableDelay
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return c
}

// Result is a completed download.
type Result struct {
	Filename string
	// Probed is the largest chunk total seen in file-info replies.
	Probed int
	// Expected is the chunk total announced by the first data envelope.
	Expected int
	// Received counts append-file envelopes.
	Received int
	// Envelopes holds every inbound envelope of the transfer in arrival order.
	Envelopes []envelope.Envelope
	Started   time.Time
	Finished  time.Time
	// ErrorMax is the largest error_reg value found in any payload.
	ErrorMax int64
	Class    types.ErrorClass
	// Path is the local dump file.
	Path string
}

// Manager runs downloads over one link.
type Manager struct {
	conn Link
	cfg  Config

	mu       sync.Mutex
	buf      []envelope.Envelope
	received int
	expected int
	started  time.Time
}

// NewManager creates a download manager.
func NewManager(conn Link, cfg Config) *Manager {
	return &Manager{conn: conn, cfg: cfg.withDefaults()}
}

// Probe posts a file-info query and returns the largest chunk total among
// the replies that arrive within the settle window.
func (m *Manager) Probe(ctx context.Context, filename string) (int, error) {
	if err := m.conn.Post(envelope.Envelope{Command: envelope.FileInfo, Filename: filename}); err != nil {
		return 0, fmt.Errorf("post file-info: %w", err)
	}

	settleCtx, cancel := context.WithTimeout(ctx, m.cfg.Settle)
	defer cancel()

	total, replies := 0, 0
	for {
		msg, err := m.conn.Receive(settleCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return 0, err
		}
		if msg.Err != nil {
			m.cfg.Logger.Warn("corrupt file-info reply", map[string]any{"error": msg.Err.Error()})
			continue
		}
		replies++
		m.cfg.Logger.Info("file-info reply", map[string]any{"envelope": msg.Envelope.String()})
		if n := int(msg.Envelope.ChunkTotal); n > total {
			total = n
		}
	}

	if replies == 0 {
		m.cfg.Logger.Warn("no file-info reply within settle window", map[string]any{
			"file":   filename,
			"settle": m.cfg.Settle.String(),
		})
	}
	return total, nil
}

// Download fetches filename and persists it.
func (m *Manager) Download(ctx context.Context, filename string) (*Result, error) {
	probed, err := m.Probe(ctx, filename)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.buf = nil
	m.received = 0
	m.expected = probed
	m.started = time.Now()
	m.mu.Unlock()
	m.cfg.Metrics.SetDownloadExpected(int64(probed))

	if err := m.conn.Post(envelope.Envelope{Command: envelope.DisableStorage}); err != nil {
		return nil, fmt.Errorf("post disable-storage: %w", err)
	}
	if err := sleep(ctx, m.cfg.DisableDelay); err != nil {
		return nil, err
	}
	if err := m.conn.Post(envelope.Envelope{Command: envelope.DownloadFile, Filename: filename}); err != nil {
		return nil, fmt.Errorf("post download-file: %w", err)
	}
	m.cfg.Logger.Info("download started", map[string]any{"file": filename, "expected": probed})

	if err := m.transfer(ctx, filename); err != nil {
		return nil, err
	}

	res := m.result(filename, probed)
	res.ErrorMax, _ = ScanErrorRegister(res.Envelopes)
	res.Class = types.ClassifyErrorRegister(res.ErrorMax)

	path, err := WriteDump(m.cfg.OutputDir, res)
	if err != nil {
		return res, fmt.Errorf("write dump: %w", err)
	}
	res.Path = path
	removeCheckpoint(m.cfg.OutputDir, filename)

	if m.cfg.Archive != nil {
		if err := m.cfg.Archive.ArchiveDownload(ctx, res); err != nil {
			// The local dump already holds the data.
			m.cfg.Logger.Warn("archive download failed", map[string]any{"error": err.Error()})
		}
	}

	m.cfg.Logger.Info("download finished", map[string]any{
		"file":      filename,
		"received":  res.Received,
		"expected":  res.Expected,
		"error_reg": res.ErrorMax,
		"class":     string(res.Class),
		"path":      res.Path,
	})
	return res, nil
}

func (m *Manager) transfer(ctx context.Context, filename string) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return m.receive(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				m.report()
				return nil
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				m.report()
			}
		}
	})

	if m.cfg.Checkpoint > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(m.cfg.Checkpoint)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					res := m.result(filename, 0)
					if err := writeCheckpoint(m.cfg.OutputDir, res); err != nil {
						m.cfg.Logger.Warn("checkpoint failed", map[string]any{"error": err.Error()})
					}
				}
			}
		})
	}

	return g.Wait()
}

// receive appends inbound envelopes until every expected chunk arrived.
func (m *Manager) receive(ctx context.Context) error {
	for {
		msg, err := m.conn.Receive(ctx)
		if err != nil {
			return err
		}
		if msg.Err != nil {
			m.cfg.Metrics.IncDecodeErrors()
			m.cfg.Logger.Warn("corrupt download envelope", map[string]any{"error": msg.Err.Error()})
			continue
		}

		env := msg.Envelope
		m.mu.Lock()
		m.buf = append(m.buf, env)
		if env.Command == envelope.AppendFile {
			if m.received == 0 {
				m.expected = int(env.ChunkTotal)
				m.cfg.Metrics.SetDownloadExpected(int64(env.ChunkTotal))
			}
			m.received++
			m.cfg.Metrics.IncDownloadFrame()
		}
		complete := m.received > 0 && m.received >= m.expected
		m.mu.Unlock()

		if complete {
			return nil
		}
	}
}

// Snapshot returns the current transfer progress.
func (m *Manager) Snapshot() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Progress{Received: m.received, Expected: m.expected, Elapsed: time.Since(m.started)}
}

func (m *Manager) report() {
	if m.cfg.OnProgress != nil {
		m.cfg.OnProgress(m.Snapshot())
	}
}

func (m *Manager) result(filename string, probed int) *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	envs := make([]envelope.Envelope, len(m.buf))
	copy(envs, m.buf)
	return &Result{
		Filename:  filename,
		Probed:    probed,
		Expected:  m.expected,
		Received:  m.received,
		Envelopes: envs,
		Started:   m.started,
		Finished:  time.Now(),
	}
}

// ScanErrorRegister returns the largest error_reg value carried by any
// envelope's frame payload, and whether one was found.
func ScanErrorRegister(envs []envelope.Envelope) (int64, bool) {
	var maxVal int64
	found := false
	for _, env := range envs {
		if env.Frame == nil || env.Frame.Payload == nil {
			continue
		}
		v, ok := env.Frame.Payload.Payload.Lookup(ErrorRegisterKey)
		if !ok {
			continue
		}
		n, ok := v.AsInt()
		if !ok {
			continue
		}
		if !found || n > maxVal {
			maxVal = n
			found = true
		}
	}
	return maxVal, found
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
