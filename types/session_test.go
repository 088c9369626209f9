package types //nolint:revive // types is a valid package name

import (
	"testing"

	"github.com/google/uuid"
)

func TestClassifyErrorRegister(t *testing.T) {
	tests := []struct {
		value int64
		want  ErrorClass
	}{
		{0, ErrorClassClean},
		{199, ErrorClassClean},
		{200, ErrorClassNonCritical},
		{299, ErrorClassNonCritical},
		{300, ErrorClassCritical},
		{4096, ErrorClassCritical},
		{-5, ErrorClassClean},
	}
	for _, tt := range tests {
		if got := ClassifyErrorRegister(tt.value); got != tt.want {
			t.Errorf("ClassifyErrorRegister(%d) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestNewSessionMeta(t *testing.T) {
	a := NewSessionMeta("gs-1", ModeRun)
	b := NewSessionMeta("gs-1", ModeRun)
	if a.SessionID == b.SessionID {
		t.Errorf("session ids collide: %s", a.SessionID)
	}
	if _, err := uuid.Parse(a.SessionID); err != nil {
		t.Errorf("SessionID %q is not a uuid: %v", a.SessionID, err)
	}
	if a.Station != "gs-1" || a.Mode != ModeRun {
		t.Errorf("meta = %+v", a)
	}
	if a.StartedAt.Location().String() != "UTC" {
		t.Errorf("StartedAt location = %v, want UTC", a.StartedAt.Location())
	}
}
