package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoRecordsFound is returned when no record matches a query.
var ErrNoRecordsFound = errors.New("no matching records found")

// Filter narrows a query. Empty fields match anything.
type Filter struct {
	Station   string
	SessionID string
}

func (f Filter) matchesRecord(rec map[string]any) bool {
	if f.Station != "" && toString(rec["station"]) != f.Station {
		return false
	}
	if f.SessionID != "" && toString(rec["session_id"]) != f.SessionID {
		return false
	}
	return true
}

// matchesSnapshot is a coarse pre-filter on manifest paths; record fields
// are authoritative.
func (f Filter) matchesSnapshot(snap *lode.Snapshot, kind string) bool {
	return snapshotHas(snap, "record_kind", kind) &&
		snapshotHas(snap, "station", f.Station) &&
		snapshotHas(snap, "session_id", f.SessionID)
}

// QueryLatestMetrics returns the most recent metrics record.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, f Filter) (map[string]any, error) {
	recs, err := query(ctx, ds, RecordKindMetrics, f, 1)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// QueryRecords returns every record of kind, newest snapshot first.
func QueryRecords(ctx context.Context, ds lode.Dataset, kind string, f Filter) ([]map[string]any, error) {
	return query(ctx, ds, kind, f, 0)
}

func query(ctx context.Context, ds lode.Dataset, kind string, f Filter, limit int) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "rosen/snapshots")
	}

	var out []map[string]any
	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !f.matchesSnapshot(snap, kind) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("rosen/snapshot/%s", snap.ID))
		}
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["record_kind"] != kind || !f.matchesRecord(rec) {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecordsFound
	}
	return out, nil
}

func snapshotHas(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, file := range snap.Manifest.Files {
		if hasPartition(file.Path, key, value) {
			return true
		}
	}
	return false
}

// hasPartition matches a whole key=value path segment so station=a does not
// match station=ab.
func hasPartition(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
