// Package spool feeds envelopes from files dropped into a directory.
//
// Each regular file in the spool directory is either a concatenation of
// encoded envelopes or a saved script. Files are consumed in name order,
// existing files first, then new ones as fsnotify reports them. Once every
// envelope of a file has been delivered the file moves to the sent/
// subdirectory. Names starting with a dot are ignored, so writers should
// write to a dot-file and rename it into place.
package spool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/log"
	"github.com/evidlo/rosen/script"
)

// SentDir is the subdirectory consumed files are moved to.
const SentDir = "sent"

// rejectedSuffix marks files that could not be parsed.
const rejectedSuffix = ".rejected"

// Spool is a link.Source backed by a watched directory. Next blocks until
// a file is available; after Close it returns io.EOF.
type Spool struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu     sync.Mutex
	queue  []string
	seen   map[string]bool
	notify chan struct{}

	pending []envelope.Envelope
	current string

	done      chan struct{}
	closeOnce sync.Once
	watchDone chan struct{}
}

// Open starts watching dir. Existing files are queued immediately.
func Open(dir string, logger *log.Logger) (*Spool, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(dir, SentDir), 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	s := &Spool{
		dir:       dir,
		watcher:   watcher,
		logger:    logger,
		seen:      make(map[string]bool),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		watchDone: make(chan struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.enqueue(filepath.Join(dir, name))
	}

	go s.watch()
	logger.Info("watching spool directory", map[string]any{"dir": dir, "queued": len(s.queue)})
	return s, nil
}

func (s *Spool) watch() {
	defer close(s.watchDone)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				s.enqueue(event.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("spool watcher error", map[string]any{"error": err.Error()})
		}
	}
}

// enqueue adds path once, skipping dot-files, rejected files and anything
// that is not a regular file.
func (s *Spool) enqueue(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, rejectedSuffix) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	s.mu.Lock()
	if s.seen[path] {
		s.mu.Unlock()
		return
	}
	s.seen[path] = true
	s.queue = append(s.queue, path)
	s.mu.Unlock()

	s.logger.Debug("spool file queued", map[string]any{"file": path})
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Queued returns how many files are waiting.
func (s *Spool) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next implements link.Source.
func (s *Spool) Next(ctx context.Context) (envelope.Envelope, error) {
	for {
		if len(s.pending) > 0 {
			env := s.pending[0]
			s.pending = s.pending[1:]
			return env, nil
		}
		if s.current != "" {
			s.finish(s.current, SentDir, "")
			s.current = ""
		}

		path, err := s.take(ctx)
		if err != nil {
			return envelope.Envelope{}, err
		}
		envs, err := ReadFile(path)
		if err != nil {
			s.logger.Warn("rejecting spool file", map[string]any{"file": path, "error": err.Error()})
			s.finish(path, "", rejectedSuffix)
			continue
		}
		s.logger.Info("spool file loaded", map[string]any{"file": path, "envelopes": len(envs)})
		s.pending = envs
		s.current = path
	}
}

func (s *Spool) take(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			path := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return path, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.done:
			return "", io.EOF
		case <-s.notify:
		}
	}
}

// finish moves a consumed file into subdir (or renames it with suffix) and
// forgets it so a new file of the same name is picked up again.
func (s *Spool) finish(path, subdir, suffix string) {
	target := filepath.Join(s.dir, subdir, filepath.Base(path)+suffix)
	if err := os.Rename(path, target); err != nil {
		s.logger.Warn("spool file move failed", map[string]any{"file": path, "error": err.Error()})
	}
	s.mu.Lock()
	delete(s.seen, path)
	s.mu.Unlock()
}

// Close stops the watcher. Pending and subsequent Next calls return io.EOF
// once the current file is exhausted.
func (s *Spool) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		<-s.watchDone
	})
	return err
}

// ReadFile parses a spool file. A file whose size is a non-zero multiple of
// envelope.Size is read as raw envelopes; anything else must be a saved
// script.
func ReadFile(path string) ([]envelope.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 && len(data)%envelope.Size == 0 {
		envs := make([]envelope.Envelope, 0, len(data)/envelope.Size)
		for off := 0; off < len(data); off += envelope.Size {
			env, err := envelope.Decode(data[off : off+envelope.Size])
			if err != nil {
				return nil, fmt.Errorf("envelope %d: %w", off/envelope.Size, err)
			}
			envs = append(envs, env)
		}
		return envs, nil
	}

	sc, err := script.Load(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return sc.Envelopes(), nil
}
