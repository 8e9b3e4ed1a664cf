package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(ErrCodeNoMatch, "no region scored above threshold")

	if err.Code != ErrCodeNoMatch {
		t.Errorf("expected code %s, got %s", ErrCodeNoMatch, err.Code)
	}
	if !strings.Contains(err.Error(), "NO_MATCH") {
		t.Errorf("expected error string to contain code, got %q", err.Error())
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack frames to be captured")
	}
}

func TestWrap(t *testing.T) {
	underlying := stderrors.New("disk full")
	err := Wrap(underlying, ErrCodeStorageWrite, "failed to persist transcript")

	if !stderrors.Is(err, underlying) {
		t.Error("expected wrapped error to unwrap to underlying")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected error string to include underlying, got %q", err.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "nothing"); err != nil {
		t.Errorf("expected nil when wrapping nil, got %v", err)
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeAmbiguousMatch, "search text matched multiple regions").
		WithContext("occurrences", 3).
		WithContext("path", "src/main.ts")

	msg := err.Error()
	if !strings.Contains(msg, "occurrences") {
		t.Errorf("expected context in error string, got %q", msg)
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeConsentDenied, "user declined")

	if !IsCode(err, ErrCodeConsentDenied) {
		t.Error("expected IsCode to match")
	}
	if IsCode(err, ErrCodeNoMatch) {
		t.Error("expected IsCode not to match a different code")
	}
	if IsCode(nil, ErrCodeNoMatch) {
		t.Error("expected IsCode(nil) to be false")
	}
	if IsCode(stderrors.New("plain"), ErrCodeNoMatch) {
		t.Error("expected plain errors not to match")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeNoOpBlock, "identical")); got != ErrCodeNoOpBlock {
		t.Errorf("expected NO_OP_BLOCK, got %s", got)
	}
	if got := GetCode(stderrors.New("plain")); got != ErrCodeInternal {
		t.Errorf("expected INTERNAL for plain error, got %s", got)
	}
	if got := GetCode(nil); got != "" {
		t.Errorf("expected empty code for nil, got %s", got)
	}
}

func TestRetryable(t *testing.T) {
	err := New(ErrCodeSideEffect, "deploy failed").WithRetryable(true)

	if !IsRetryable(err) {
		t.Error("expected retryable")
	}
	if IsRetryable(New(ErrCodeNoMatch, "nope")) {
		t.Error("expected not retryable by default")
	}
}
