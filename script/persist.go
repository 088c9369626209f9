package script

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/frame"
	"github.com/evidlo/rosen/iox"
)

// FormatVersion is written into every saved script.
const FormatVersion = 1

const (
	kindEnvelope = "envelope"
	kindFrame    = "frame"
)

type document struct {
	Version int      `msgpack:"version"`
	Name    string   `msgpack:"name"`
	Entries []record `msgpack:"entries"`
}

type record struct {
	Offset float64 `msgpack:"offset"`
	Kind   string  `msgpack:"kind"`
	Data   []byte  `msgpack:"data"`
}

// Save writes s to w as a msgpack document holding each entry's encoded
// bytes.
func (s *Script) Save(w io.Writer) error {
	if err := s.checkOffsets(); err != nil {
		return err
	}
	doc := document{Version: FormatVersion, Name: s.Name, Entries: make([]record, len(s.Entries))}
	for i, e := range s.Entries {
		data, err := e.Bytes()
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		doc.Entries[i] = record{Offset: e.Offset, Kind: e.Kind(), Data: data}
	}
	return msgpack.NewEncoder(w).Encode(&doc)
}

// Load reads a script written by Save.
func Load(r io.Reader) (*Script, error) {
	var doc document
	if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported script format version %d", doc.Version)
	}

	s := &Script{Name: doc.Name, Entries: make([]Entry, len(doc.Entries))}
	for i, rec := range doc.Entries {
		e := Entry{Offset: rec.Offset}
		switch rec.Kind {
		case kindEnvelope:
			env, err := envelope.Decode(rec.Data)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			e.Envelope = &env
		case kindFrame:
			f, err := frame.Decode(rec.Data)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			e.Frame = &f
		default:
			return nil, fmt.Errorf("entry %d: unknown kind %q", i, rec.Kind)
		}
		s.Entries[i] = e
	}
	if err := s.checkOffsets(); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveFile writes s to path, replacing any existing file.
func (s *Script) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := s.Save(w); err != nil {
		iox.DiscardClose(f)
		return err
	}
	return iox.FlushClose(w, f)
}

// LoadFile reads a script saved with SaveFile.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)
	return Load(bufio.NewReader(f))
}
