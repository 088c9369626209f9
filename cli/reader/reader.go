package reader

import (
	"fmt"
	"time"

	"github.com/evidlo/rosen/download"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/script"
)

// InspectScript loads a saved script file.
func InspectScript(path string) (*ScriptView, error) {
	s, err := script.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewScriptView(s), nil
}

// NewScriptView summarizes s.
func NewScriptView(s *script.Script) *ScriptView {
	v := &ScriptView{
		Name:     s.Name,
		Entries:  s.Len(),
		Duration: s.Duration(),
		Uploads:  []string{},
		Items:    make([]EntryView, 0, s.Len()),
	}
	seen := map[string]bool{}
	for i, e := range s.Entries {
		item := EntryView{Index: i, Offset: e.Offset, Kind: e.Kind()}
		switch {
		case e.Envelope != nil:
			v.Envelopes++
			item.Command = e.Envelope.Command.String()
			item.Detail = e.Envelope.String()
			if e.Envelope.Command == envelope.AppendFile && !seen[e.Envelope.Filename] {
				seen[e.Envelope.Filename] = true
				v.Uploads = append(v.Uploads, e.Envelope.Filename)
			}
		case e.Frame != nil:
			v.Frames++
			item.Command = e.Frame.Kind.String()
			item.Detail = e.Frame.String()
		}
		v.Items = append(v.Items, item)
	}
	return v
}

// DecodeEnvelopes decodes a raw dump of back-to-back envelopes. Envelopes
// that fail to decode are kept with Error set and whatever header fields
// could be read.
func DecodeEnvelopes(data []byte) ([]EnvelopeView, error) {
	if len(data)%envelope.Size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d",
			envelope.ErrEnvelopeSizeMismatch, len(data), envelope.Size)
	}
	out := make([]EnvelopeView, 0, len(data)/envelope.Size)
	for off := 0; off < len(data); off += envelope.Size {
		raw := data[off : off+envelope.Size]
		env, err := envelope.Decode(raw)
		view := EnvelopeView{Index: off / envelope.Size}
		if err != nil {
			view.Error = err.Error()
			if env, err = envelope.DecodeHeader(raw); err != nil {
				out = append(out, view)
				continue
			}
		}
		fillEnvelope(&view, env)
		out = append(out, view)
	}
	return out, nil
}

// InspectDump loads a download dump or checkpoint file.
func InspectDump(path string) (*DumpView, error) {
	res, err := download.ReadDump(path)
	if err != nil {
		return nil, err
	}
	return NewDumpView(res), nil
}

// NewDumpView summarizes a download result.
func NewDumpView(res *download.Result) *DumpView {
	v := &DumpView{
		Filename:   res.Filename,
		Probed:     res.Probed,
		Expected:   res.Expected,
		Received:   res.Received,
		ErrorReg:   res.ErrorMax,
		ErrorClass: string(res.Class),
		Started:    res.Started.UTC().Format(time.RFC3339),
		Finished:   res.Finished.UTC().Format(time.RFC3339),
		Envelopes:  make([]EnvelopeView, len(res.Envelopes)),
	}
	for i, env := range res.Envelopes {
		v.Envelopes[i].Index = i
		fillEnvelope(&v.Envelopes[i], env)
	}
	return v
}

func fillEnvelope(v *EnvelopeView, env envelope.Envelope) {
	v.Command = env.Command.String()
	v.Filename = env.Filename
	if env.ChunkTotal > 0 {
		v.Chunk = fmt.Sprintf("%d/%d@%d", env.ChunkIndex, env.ChunkTotal, env.ByteOffset)
	}
	if !env.Address.IsZero() {
		v.Address = env.Address.String()
	}
	v.Timestamp = env.Timestamp
	if v.Error == "" && (env.ErrorCode != 0 || env.ErrorString != "") {
		v.Error = fmt.Sprintf("%d %s", env.ErrorCode, env.ErrorString)
	}
	if env.Frame != nil {
		v.Frame = env.Frame.String()
	}
}
