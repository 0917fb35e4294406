// Package queue implements the Incoming Queue and Outgoing Queue (Return
// Book): a single slot-table array shared by both roles, backed by an
// internal/wire.Page.
package queue

import "github.com/betrusted-io/xous-kernel-ipc/internal/wire"

// Kind identifies which of the five message variants a Request describes.
type Kind int

const (
	KindScalar Kind = iota
	KindBlockingScalar
	KindMove
	KindBorrow
	KindMutableBorrow
)

// Request carries everything needed to write a new slot record. Memory
// variants reuse Arg1..Arg4 as {SenderAddr, Len, Offset, ValidLen}; scalar
// variants use them as the four message arguments directly.
type Request struct {
	Kind Kind
	PID  wire.PID
	TID  wire.TID
	ID   uint32
	Arg1 uint32
	Arg2 uint32
	Arg3 uint32
	Arg4 uint32
	// OrigAddr fills the record's "original-server-reply-addr" field. For a
	// memory loan, QueueResponse stores the receiver-side address of the
	// remapped range here; zero if unused.
	OrigAddr uint32
}

func (k Kind) incomingTag() wire.Tag {
	switch k {
	case KindScalar:
		return wire.TagScalarInFlight
	case KindBlockingScalar:
		return wire.TagBlockingScalarPending
	case KindMove:
		return wire.TagMoveInFlight
	case KindBorrow:
		return wire.TagMemoryBorrowRO
	case KindMutableBorrow:
		return wire.TagMemoryBorrowRW
	default:
		panic("queue: unknown request kind")
	}
}
