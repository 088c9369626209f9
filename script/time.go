package script

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedTime is returned for values NormalizeTime cannot interpret.
var ErrUnsupportedTime = errors.New("unsupported time value")

// Layouts tried in order for string input. Layouts without a zone are
// parsed as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"Jan 2 2006 15:04:05",
	"Jan 2 2006",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006",
}

// NormalizeTime coerces t to a UTC time.Time. Accepted inputs are strings in
// common date layouts or holding Unix seconds, integer Unix seconds, and
// time.Time values.
func NormalizeTime(t any) (time.Time, error) {
	switch v := t.(type) {
	case time.Time:
		return v.UTC(), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: nil *time.Time", ErrUnsupportedTime)
		}
		return v.UTC(), nil
	case string:
		return parseTime(v)
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case int32:
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case uint32:
		return time.Unix(int64(v), 0).UTC(), nil
	case uint64:
		if v > math.MaxInt64 {
			return time.Time{}, fmt.Errorf("%w: %d out of range", ErrUnsupportedTime, v)
		}
		return time.Unix(int64(v), 0).UTC(), nil
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %T", ErrUnsupportedTime, t)
}

// UnixTime normalizes t and returns it as wire-format Unix seconds.
func UnixTime(t any) (uint32, error) {
	tm, err := NormalizeTime(t)
	if err != nil {
		return 0, err
	}
	sec := tm.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s does not fit in 32-bit Unix seconds", ErrUnsupportedTime, tm.Format(time.RFC3339))
	}
	return uint32(sec), nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if tm, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return tm.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", ErrUnsupportedTime, s)
}
