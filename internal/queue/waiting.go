package queue

import "github.com/betrusted-io/xous-kernel-ipc/internal/wire"

// WaitingKind discriminates the result of TakeWaiting: which kind of reply
// obligation was just discharged.
type WaitingKind int

const (
	WaitingNone WaitingKind = iota
	WaitingBorrowedMemory
	WaitingMovedMemory
	WaitingScalarMessage
	WaitingForgetMemory
)

// WaitingMessage is what a completed return hands back to the kernel so it
// can resume the original blocked sender (or discard, if Terminated).
type WaitingMessage struct {
	Kind       WaitingKind
	PID        wire.PID
	TID        wire.TID
	ServerAddr uint32
	ClientAddr uint32
	Len        uint32
}
