package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestNew_UsesDefaultHint(t *testing.T) {
	err := New(IndexNotFound, "index missing at %s", "/tmp/x")
	if err.Hint == "" {
		t.Error("Hint is empty, want default hint")
	}
	if err.Message != "index missing at /tmp/x" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	inner := New(PathTraversal, "bad path")
	wrapped := fmt.Errorf("importing: %w", inner)

	if got := CodeOf(wrapped); got != PathTraversal {
		t.Errorf("CodeOf() = %q, want %q", got, PathTraversal)
	}
	if !Is(wrapped, PathTraversal) {
		t.Error("Is(PathTraversal) = false")
	}
	if Is(nil, PathTraversal) {
		t.Error("Is(nil) = true")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf(plain error) should be empty")
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := os.ErrPermission
	err := Wrap(FileError, cause, "writing package")
	if !errors.Is(err, os.ErrPermission) {
		t.Error("errors.Is(err, ErrPermission) = false")
	}
	if err.Details != cause.Error() {
		t.Errorf("Details = %q, want %q", err.Details, cause.Error())
	}
}

func TestIsSecurity(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{PathTraversal, true},
		{PackageTooLarge, true},
		{InvalidPackage, false},
		{FileError, false},
	}
	for _, tt := range tests {
		if got := IsSecurity(New(tt.code, "x")); got != tt.want {
			t.Errorf("IsSecurity(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestFailure(t *testing.T) {
	env := Failure(New(PaperNotFound, "paper %s not found", "2401.12345"))
	if env.Success {
		t.Error("Success = true")
	}
	if env.Error.Code != PaperNotFound {
		t.Errorf("Code = %q", env.Error.Code)
	}

	_, statErr := os.Stat("/nonexistent/definitely/missing")
	env = Failure(statErr)
	if env.Error.Code != FileError {
		t.Errorf("Code for PathError = %q, want %q", env.Error.Code, FileError)
	}

	env = Failure(errors.New("something"))
	if env.Error.Code != InvalidArgument {
		t.Errorf("Code for plain error = %q, want %q", env.Error.Code, InvalidArgument)
	}
}
