package lode

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"context deadline", errors.New("context deadline exceeded"), ErrTimeout},
		{"timed out", errors.New("operation timed out"), ErrTimeout},
		{"AccessDenied", errors.New("AccessDenied: you do not have access"), ErrAccessDenied},
		{"HTTP 403", errors.New("received status 403"), ErrAccessDenied},
		{"permission message", errors.New("permission denied for /data/archive"), ErrPermissionDenied},
		{"fs permission", fmt.Errorf("open: %w", fs.ErrPermission), ErrPermissionDenied},
		{"fs not exist", fmt.Errorf("stat: %w", fs.ErrNotExist), ErrNotFound},
		{"NoSuchKey", errors.New("NoSuchKey: the key does not exist"), ErrNotFound},
		{"disk full", errors.New("write: no space left on device"), ErrDiskFull},
		{"SlowDown", errors.New("SlowDown: please reduce your request rate"), ErrThrottled},
		{"credentials", errors.New("NoCredentialProviders: no valid providers"), ErrAuth},
		{"refused", errors.New("connection refused"), ErrNetwork},
		{"other", errors.New("something odd"), ErrUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.wantKind {
				t.Errorf("classifyError(%q) = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}
}

func TestStorageError_Chain(t *testing.T) {
	cause := errors.New("permission denied")
	err := WrapWriteError(cause, "datasets/rosen/x")

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("errors.Is(err, ErrPermissionDenied) = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatal("errors.As(*StorageError) = false")
	}
	if se.Op != "write" || se.Path != "datasets/rosen/x" {
		t.Errorf("StorageError = %+v", se)
	}
	if want := "write datasets/rosen/x: permission denied: permission denied"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap_Nil(t *testing.T) {
	if WrapWriteError(nil, "p") != nil || WrapReadError(nil, "p") != nil || WrapInitError(nil, "d") != nil {
		t.Error("wrapping nil returned non-nil")
	}
}
