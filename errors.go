package xous

import (
	"errors"
	"fmt"
	"strings"

	"github.com/betrusted-io/xous-kernel-ipc/internal/queue"
	"github.com/betrusted-io/xous-kernel-ipc/internal/registry"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// Error represents a structured kernel IPC error: an operation name plus
// whichever of server/process/slot identifiers are relevant context for it.
type Error struct {
	Op     string    // operation that failed, e.g. "CreateServer", "Send"
	Server ServerID  // server involved, zero value if not applicable
	PID    wire.PID  // process involved, 0 if not applicable
	Slot   int32     // queue slot involved, -1 if not applicable
	Code   ErrorCode // high-level error category
	Msg    string    // human-readable message
	Inner  error     // wrapped error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}
	if e.Slot >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.Slot))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("xous: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("xous: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode enumerates the kernel's error categories.
type ErrorCode string

const (
	ErrCodeServerQueueFull ErrorCode = "server queue full"
	ErrCodeServerNotFound  ErrorCode = "server not found"
	ErrCodeProcessNotFound ErrorCode = "process not found"
	ErrCodeBadAddress      ErrorCode = "bad address"
	ErrCodeUseBeforeInit   ErrorCode = "use before init"
	ErrCodeShareViolation  ErrorCode = "share violation"
	ErrCodeMemoryInUse     ErrorCode = "memory in use"
	ErrCodeAccessDenied    ErrorCode = "access denied"
	ErrCodeInternalError   ErrorCode = "internal error"
)

// NewError creates a structured error with no server/process/slot context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg, Slot: -1}
}

// NewServerError creates a structured error scoped to a server.
func NewServerError(op string, sid ServerID, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Server: sid, Code: code, Msg: msg, Slot: -1}
}

// NewProcessError creates a structured error scoped to a process.
func NewProcessError(op string, pid wire.PID, code ErrorCode, msg string) *Error {
	return &Error{Op: op, PID: pid, Code: code, Msg: msg, Slot: -1}
}

// WrapError wraps an existing error with kernel context, preserving an
// inner *Error's code if present.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if xe, ok := inner.(*Error); ok {
		return &Error{Op: op, Server: xe.Server, PID: xe.PID, Slot: xe.Slot, Code: xe.Code, Msg: xe.Msg, Inner: xe.Inner}
	}

	code := ErrCodeInternalError
	switch {
	case errors.Is(inner, queue.ErrQueueFull), errors.Is(inner, registry.ErrTableFull):
		code = ErrCodeServerQueueFull
	case errors.Is(inner, queue.ErrBadAddress), errors.Is(inner, queue.ErrNotWaiting):
		code = ErrCodeBadAddress
	case errors.Is(inner, registry.ErrNotFound):
		code = ErrCodeServerNotFound
	case errors.Is(inner, registry.ErrAlreadyRegistered):
		code = ErrCodeMemoryInUse
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner, Slot: -1}
}

// IsCode reports whether err is a *Error carrying code.
func IsCode(err error, code ErrorCode) bool {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Code == code
	}
	return false
}
