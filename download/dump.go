package download

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/iox"
	"github.com/evidlo/rosen/types"
)

// DumpVersion is written into every dump file.
const DumpVersion = 1

const checkpointSuffix = ".partial"

type dump struct {
	Version   int      `msgpack:"version"`
	Filename  string   `msgpack:"filename"`
	Probed    int      `msgpack:"probed"`
	Expected  int      `msgpack:"expected"`
	Received  int      `msgpack:"received"`
	Started   int64    `msgpack:"started"`
	Finished  int64    `msgpack:"finished"`
	ErrorMax  int64    `msgpack:"error_reg"`
	Class     string   `msgpack:"class"`
	Envelopes [][]byte `msgpack:"envelopes"`
}

// DumpName returns the dump file name for a download of filename finished
// at t: "<unix seconds>-<filename with dots replaced>.msgpack".
func DumpName(t time.Time, filename string) string {
	return strconv.FormatInt(t.Unix(), 10) + "-" + strings.ReplaceAll(filename, ".", "_") + ".msgpack"
}

// WriteDump writes res into dir and returns the file path.
func WriteDump(dir string, res *Result) (string, error) {
	path := filepath.Join(dir, DumpName(res.Finished, res.Filename))
	if err := writeDumpFile(path, res); err != nil {
		return "", err
	}
	return path, nil
}

func checkpointPath(dir, filename string) string {
	return filepath.Join(dir, strings.ReplaceAll(filename, ".", "_")+checkpointSuffix)
}

func writeCheckpoint(dir string, res *Result) error {
	return writeDumpFile(checkpointPath(dir, res.Filename), res)
}

func removeCheckpoint(dir, filename string) {
	_ = os.Remove(checkpointPath(dir, filename))
}

func writeDumpFile(path string, res *Result) error {
	d := dump{
		Version:   DumpVersion,
		Filename:  res.Filename,
		Probed:    res.Probed,
		Expected:  res.Expected,
		Received:  res.Received,
		Started:   res.Started.UnixMilli(),
		Finished:  res.Finished.UnixMilli(),
		ErrorMax:  res.ErrorMax,
		Class:     string(res.Class),
		Envelopes: make([][]byte, len(res.Envelopes)),
	}
	for i, env := range res.Envelopes {
		raw, err := envelope.Encode(env)
		if err != nil {
			return fmt.Errorf("envelope %d: %w", i, err)
		}
		d.Envelopes[i] = raw
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := msgpack.NewEncoder(w).Encode(&d); err != nil {
		iox.DiscardClose(f)
		return err
	}
	return iox.FlushClose(w, f)
}

// ReadDump loads a dump or checkpoint file.
func ReadDump(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)

	var d dump
	if err := msgpack.NewDecoder(bufio.NewReader(f)).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode dump: %w", err)
	}
	if d.Version != DumpVersion {
		return nil, fmt.Errorf("unsupported dump version %d", d.Version)
	}

	res := &Result{
		Filename:  d.Filename,
		Probed:    d.Probed,
		Expected:  d.Expected,
		Received:  d.Received,
		Started:   time.UnixMilli(d.Started),
		Finished:  time.UnixMilli(d.Finished),
		ErrorMax:  d.ErrorMax,
		Class:     types.ErrorClass(d.Class),
		Envelopes: make([]envelope.Envelope, len(d.Envelopes)),
		Path:      path,
	}
	for i, raw := range d.Envelopes {
		env, err := envelope.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("envelope %d: %w", i, err)
		}
		res.Envelopes[i] = env
	}
	return res, nil
}
