// Package lode archives session data in a Lode dataset.
//
// Records are JSONL, partitioned by station, day, session and record kind:
//
//	datasets/rosen/partitions/station=<s>/day=<d>/session_id=<id>/record_kind=<k>/...
//
// Observations are buffered and written in batches; downloads and metrics
// are written as one batch each. Raw files (download dumps, observation
// logs) land beside the partitions under files/.
package lode

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/link"
	"github.com/evidlo/rosen/metrics"
	"github.com/evidlo/rosen/types"
)

// DefaultDataset is the dataset ID used by the CLI.
const DefaultDataset = "rosen"

// DefaultBatchSize is how many observations are buffered before a write.
const DefaultBatchSize = 64

// DefaultWriteTimeout bounds one background observation write.
const DefaultWriteTimeout = 30 * time.Second

// DeriveDay returns the partition day (YYYY-MM-DD, UTC) for a session start.
func DeriveDay(start time.Time) string {
	return start.UTC().Format("2006-01-02")
}

// Config identifies the session being archived. All fields are required.
type Config struct {
	Dataset   string
	Station   string
	Day       string
	SessionID string
}

// ConfigFor builds a Config from session metadata.
func ConfigFor(meta *types.SessionMeta) Config {
	return Config{
		Dataset:   DefaultDataset,
		Station:   meta.Station,
		Day:       DeriveDay(meta.StartedAt),
		SessionID: meta.SessionID,
	}
}

// Validate checks that every partition value is set.
func (c Config) Validate() error {
	for name, v := range map[string]string{
		"dataset":    c.Dataset,
		"station":    c.Station,
		"day":        c.Day,
		"session_id": c.SessionID,
	} {
		if v == "" {
			return fmt.Errorf("archive config: %s is required", name)
		}
	}
	return nil
}

// Archive writes one session's records.
type Archive struct {
	dataset   lode.Dataset
	config    Config
	batchSize int
	collector *metrics.Collector

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error

	writeTimeout time.Duration

	mu      sync.Mutex
	pending []any
	// inflight closes when the newest background batch write returns.
	inflight chan struct{}
}

// Option configures an Archive.
type Option func(*Archive)

// WithBatchSize sets how many observations are buffered per write.
func WithBatchSize(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithWriteTimeout bounds each background observation write.
func WithWriteTimeout(d time.Duration) Option {
	return func(a *Archive) {
		if d > 0 {
			a.writeTimeout = d
		}
	}
}

// WithMetrics counts archive writes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Archive) { a.collector = c }
}

// NewArchive creates an archive rooted at a local directory.
func NewArchive(cfg Config, root string, opts ...Option) (*Archive, error) {
	return NewArchiveWithFactory(cfg, lode.NewFSFactory(root), opts...)
}

// NewArchiveWithFactory creates an archive over any Lode store. Use
// lode.NewMemoryFactory() in tests.
func NewArchiveWithFactory(cfg Config, factory lode.StoreFactory, opts ...Option) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	a := &Archive{
		dataset:      ds,
		config:       cfg,
		batchSize:    DefaultBatchSize,
		writeTimeout: DefaultWriteTimeout,
		storeFactory: factory,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NewReadDataset opens the archive dataset with the layout and codec used
// for writing.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Observe implements link.Observer. Observations are buffered; a full
// batch is written in the background so the caller's ack wait never blocks
// on the store. Batches are written in order. A failed batch is requeued
// for the next Flush. Call Flush or Close at session end.
func (a *Archive) Observe(msg link.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, a.observationRecord(msg))
	if len(a.pending) < a.batchSize {
		return nil
	}
	batch := a.pending
	a.pending = nil
	prev := a.inflight
	done := make(chan struct{})
	a.inflight = done
	go a.writeBehind(prev, done, batch)
	return nil
}

func (a *Archive) writeBehind(prev <-chan struct{}, done chan<- struct{}, batch []any) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()
	if err := a.write(ctx, batch); err != nil {
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		a.mu.Unlock()
	}
}

// Flush waits for background batch writes, then writes whatever is still
// buffered, including batches that failed in the background.
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	inflight := a.inflight
	a.mu.Unlock()
	if inflight != nil {
		select {
		case <-inflight:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) == 0 {
		return nil
	}
	if err := a.write(ctx, a.pending); err != nil {
		return err
	}
	a.pending = nil
	return nil
}

// ArchiveDownload implements download.Archiver. It writes one record per
// received envelope, a summary record, and the raw envelopes as a file.
func (a *Archive) ArchiveDownload(ctx context.Context, res *download.Result) error {
	records := make([]any, 0, len(res.Envelopes)+1)
	for i, env := range res.Envelopes {
		records = append(records, a.downloadFrameRecord(res, i, env))
	}
	records = append(records, a.downloadRecord(res))
	if err := a.write(ctx, records); err != nil {
		return err
	}

	var raw bytes.Buffer
	for i, env := range res.Envelopes {
		data, err := env.MarshalBinary()
		if err != nil {
			return fmt.Errorf("envelope %d: %w", i, err)
		}
		raw.Write(data)
	}
	return a.PutFile(ctx, strings.ReplaceAll(res.Filename, ".", "_")+".bin", raw.Bytes())
}

// WriteMetrics writes the session's final counters and status.
func (a *Archive) WriteMetrics(ctx context.Context, snap metrics.Snapshot, status types.SessionStatus, completedAt time.Time) error {
	return a.write(ctx, []any{a.metricsRecord(snap, status, completedAt)})
}

// PutFile stores a raw file under the session's files/ prefix. filename
// must be a bare name.
func (a *Archive) PutFile(ctx context.Context, filename string, data []byte) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid archive file name %q", filename)
	}
	store, err := a.getOrCreateStore()
	if err != nil {
		a.collector.IncArchiveWriteFailure()
		return WrapInitError(err, a.config.Dataset)
	}
	path := a.FilePath(filename)
	if err := store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		a.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, path)
	}
	a.collector.IncArchiveWriteSuccess()
	return nil
}

// FilePath returns the store path PutFile uses for filename.
func (a *Archive) FilePath(filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/station=%s/day=%s/session_id=%s/files/%s",
		a.config.Dataset, a.config.Station, a.config.Day, a.config.SessionID, filename)
}

// Close flushes buffered observations.
func (a *Archive) Close() error {
	return a.Flush(context.Background())
}

func (a *Archive) write(ctx context.Context, records []any) error {
	if _, err := a.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		a.collector.IncArchiveWriteFailure()
		return WrapWriteError(err, "datasets/"+a.config.Dataset)
	}
	a.collector.IncArchiveWriteSuccess()
	return nil
}

func (a *Archive) getOrCreateStore() (lode.Store, error) {
	a.storeOnce.Do(func() {
		a.store, a.storeErr = a.storeFactory()
	})
	return a.store, a.storeErr
}

var (
	_ link.Observer     = (*Archive)(nil)
	_ download.Archiver = (*Archive)(nil)
)
