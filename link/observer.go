package link

import (
	"bufio"
	"os"
	"sync"

	"github.com/evidlo/rosen/iox"
)

// DefaultObservationLog is the observation log file name used by the CLI.
const DefaultObservationLog = "gcomm.log"

// Observer receives inbound envelopes that were not acknowledgements.
type Observer interface {
	Observe(msg Message) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(msg Message) error

// Observe calls f.
func (f ObserverFunc) Observe(msg Message) error { return f(msg) }

// MultiObserver fans a message out to several observers. Every observer is
// called; the first error is returned.
type MultiObserver []Observer

// Observe implements Observer.
func (m MultiObserver) Observe(msg Message) error {
	var first error
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.Observe(msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FileObserver appends the raw bytes of each observed envelope to a file.
// The file is a plain concatenation of fixed-size envelopes and can be
// re-read with EnvelopeReader.
type FileObserver struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
	n  int
}

// OpenObservationLog creates (or truncates) the log at path.
func OpenObservationLog(path string) (*FileObserver, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileObserver{f: f, w: bufio.NewWriter(f)}, nil
}

// Observe implements Observer.
func (o *FileObserver) Observe(msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(msg.Raw); err != nil {
		return err
	}
	o.n++
	return nil
}

// Count returns the number of envelopes written.
func (o *FileObserver) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

// Flush writes buffered envelopes to the file.
func (o *FileObserver) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Flush()
}

// Close flushes and closes the file.
func (o *FileObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return iox.FlushClose(o.w, o.f)
}
