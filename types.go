package xous

import (
	"github.com/betrusted-io/xous-kernel-ipc/internal/queue"
	"github.com/betrusted-io/xous-kernel-ipc/internal/registry"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// PID, TID and ServerID re-export the internal identifier types a caller of
// the public API needs to name.
type PID = wire.PID
type TID = wire.TID
type ServerID = registry.ServerID

// SenderHandle is the opaque token a receiver uses to reply to or return
// memory to a blocked sender.
type SenderHandle = registry.SenderHandle

// MemoryRange names a byte range within a process's address space, as
// carried by Move/Borrow/MutableBorrow messages.
type MemoryRange struct {
	Addr     uint32
	Len      uint32
	Offset   uint32
	ValidLen uint32
}

// MessageKind discriminates the five message variants a caller can send:
// fire-and-forget Scalar, reply-carrying BlockingScalar, and the three
// memory-loan forms (Move, Borrow, MutableBorrow).
type MessageKind int

const (
	KindScalar MessageKind = iota
	KindBlockingScalar
	KindMove
	KindBorrow
	KindMutableBorrow
)

// Message is what a caller constructs to Send and what Receive hands back.
// Scalar variants carry their four words in Args; memory variants carry a
// MemoryRange and ignore Args.
type Message struct {
	Kind MessageKind
	ID   uint32
	Args [4]uint32
	Mem  MemoryRange
}

func (k MessageKind) toQueueKind() queue.Kind {
	switch k {
	case KindScalar:
		return queue.KindScalar
	case KindBlockingScalar:
		return queue.KindBlockingScalar
	case KindMove:
		return queue.KindMove
	case KindBorrow:
		return queue.KindBorrow
	case KindMutableBorrow:
		return queue.KindMutableBorrow
	default:
		panic("xous: unknown message kind")
	}
}

// Envelope is what Receive returns: a decoded Message plus the sender
// identity a receiver needs to reply. SenderTID carries the sending
// thread, which the slot record tracks alongside the PID already encoded
// in the handle; thread-scoped services like the built-in ticktimer key
// their state by it.
type Envelope struct {
	Sender    SenderHandle
	SenderTID TID
	Message   Message
}
