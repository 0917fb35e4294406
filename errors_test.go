package xous

import (
	"errors"
	"testing"

	"github.com/betrusted-io/xous-kernel-ipc/internal/queue"
	"github.com/betrusted-io/xous-kernel-ipc/internal/registry"
)

func TestStructuredError(t *testing.T) {
	err := NewError("Send", ErrCodeServerNotFound, "no such server")

	if err.Op != "Send" {
		t.Errorf("Expected Op=Send, got %s", err.Op)
	}
	if err.Code != ErrCodeServerNotFound {
		t.Errorf("Expected Code=ErrCodeServerNotFound, got %s", err.Code)
	}

	expected := "xous: no such server (op=Send)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestServerError(t *testing.T) {
	sid := registry.NewServerID()
	err := NewServerError("DestroyServer", sid, ErrCodeServerNotFound, "gone")

	if err.Server != sid {
		t.Error("Expected Server to be set")
	}
	if err.Slot != -1 {
		t.Errorf("Expected Slot=-1 when not applicable, got %d", err.Slot)
	}
}

func TestProcessError(t *testing.T) {
	err := NewProcessError("TerminateProcess", 7, ErrCodeProcessNotFound, "unknown pid")

	if err.PID != 7 {
		t.Errorf("Expected PID=7, got %d", err.PID)
	}

	expected := "xous: unknown pid (op=TerminateProcess, pid=7)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapErrorPreservesInnerCode(t *testing.T) {
	inner := NewServerError("Send", registry.ServerID{}, ErrCodeServerNotFound, "gone")
	wrapped := WrapError("Receive", inner)

	if wrapped.Code != ErrCodeServerNotFound {
		t.Errorf("Expected wrapped Code=ErrCodeServerNotFound, got %s", wrapped.Code)
	}
	if wrapped.Op != "Receive" {
		t.Errorf("Expected Op=Receive, got %s", wrapped.Op)
	}
}

func TestWrapErrorMapsInternalErrors(t *testing.T) {
	testCases := []struct {
		inner    error
		expected ErrorCode
	}{
		{registry.ErrTableFull, ErrCodeServerQueueFull},
		{registry.ErrNotFound, ErrCodeServerNotFound},
		{registry.ErrAlreadyRegistered, ErrCodeMemoryInUse},
		{queue.ErrQueueFull, ErrCodeServerQueueFull},
		{queue.ErrBadAddress, ErrCodeBadAddress},
		{queue.ErrNotWaiting, ErrCodeBadAddress},
		{errors.New("boom"), ErrCodeInternalError},
	}

	for _, tc := range testCases {
		wrapped := WrapError("CreateServer", tc.inner)
		if wrapped.Code != tc.expected {
			t.Errorf("WrapError(%v) code = %s, want %s", tc.inner, wrapped.Code, tc.expected)
		}
		if !errors.Is(wrapped, tc.inner) && !errors.Is(wrapped.Unwrap(), tc.inner) {
			// WrapError always sets Inner to the original error.
			if wrapped.Inner != tc.inner {
				t.Errorf("WrapError(%v) did not preserve the inner error", tc.inner)
			}
		}
	}
}

func TestWrapErrorNil(t *testing.T) {
	if WrapError("Send", nil) != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("Send", ErrCodeBadAddress, "mismatch")

	if !IsCode(err, ErrCodeBadAddress) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeInternalError) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeBadAddress) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := NewError("Send", ErrCodeServerNotFound, "first")
	b := NewError("Receive", ErrCodeServerNotFound, "second")
	c := NewError("Send", ErrCodeBadAddress, "first")

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match via errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match via errors.Is")
	}
}
