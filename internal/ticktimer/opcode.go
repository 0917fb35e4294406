// Package ticktimer implements the sync primitives layer: Mutex and Condvar
// built as ordinary client/server IPC against a well-known "ticktimer"
// server, plus the server-side sleep/wake logic that backs them. Opcodes are
// a plain enumerated message ID, the same way a wire protocol's fixed
// command-code blocks are laid out.
package ticktimer

import "errors"

// Opcode identifies which ticktimer operation a message carries: the id
// field of a Scalar or BlockingScalar message sent to the built-in server,
// routed through DispatchBlocking/DispatchScalar.
type Opcode uint32

const (
	OpElapsedMs Opcode = iota
	OpSleepMs
	OpLockMutex
	OpUnlockMutex
	OpWaitForCondition
	OpNotifyCondition
	OpPingWatchdog
	OpGetVersion
	// OpRecalculateSleep forces the pop-and-rearm pass over the sleep queue
	// that deadline expiry normally performs (Service.RecalculateSleep). The
	// built-in server ignores it unless the sender is the ticktimer process
	// itself, so other processes cannot force-expire sleeps.
	OpRecalculateSleep
)

// ErrUnknownOpcode is returned by DispatchBlocking/DispatchScalar for an
// opcode outside the wire contract, or one whose blocking class doesn't
// match the message kind it arrived in.
var ErrUnknownOpcode = errors.New("ticktimer: unknown opcode")

// ProtocolVersion is returned by OpGetVersion.
const ProtocolVersion = 1
