package wire

import "unsafe"

// RecordSize is the fixed size in bytes of one queue slot record. 32 bytes
// matches the reference tagged-record layout of {PID, TID,
// original-server-reply-addr, id, arg1..arg4} and keeps slot indexing a
// cheap shift rather than a multiply by an arbitrary constant.
const RecordSize = 32

// SlotsPerPage is the number of slots in one backing page: PageSize / RecordSize.
const SlotsPerPage = PageSize / RecordSize

// PageSize is the size in bytes of one queue's backing memory region.
const PageSize = 4096

// Tag discriminates the variant a slot currently holds. The tag is
// load-bearing for the state machine — never collapse variants into a
// generic payload.
type Tag uint8

const (
	// TagEmpty: the slot holds nothing.
	TagEmpty Tag = iota
	// TagScalarInFlight: a fire-and-forget Scalar message, not yet received.
	TagScalarInFlight
	// TagBlockingScalarPending: a BlockingScalar message, not yet received; sender blocked.
	TagBlockingScalarPending
	// TagMoveInFlight: a Move message, not yet received. No reply expected.
	TagMoveInFlight
	// TagMemoryBorrowRO: a Borrow message, not yet received; sender blocked.
	TagMemoryBorrowRO
	// TagMemoryBorrowRW: a MutableBorrow message, not yet received; sender blocked.
	TagMemoryBorrowRW
	// TagWaitingReturnScalar: received BlockingScalar awaiting return_scalar.
	TagWaitingReturnScalar
	// TagWaitingReturnMemory: received Borrow/MutableBorrow awaiting return_memory.
	TagWaitingReturnMemory
	// TagWaitingForget: awaiting discharge, but the loan must be forgotten
	// rather than restored (sender already terminated when this was set).
	TagWaitingForget
)

// IsIncoming reports whether the tag marks a slot holding a message that
// has been written but not yet received.
func (t Tag) IsIncoming() bool {
	switch t {
	case TagScalarInFlight, TagBlockingScalarPending, TagMoveInFlight, TagMemoryBorrowRO, TagMemoryBorrowRW:
		return true
	default:
		return false
	}
}

// IsWaitingReturn reports whether a slot holds an already-received message
// awaiting a reply or memory return.
func (t Tag) IsWaitingReturn() bool {
	switch t {
	case TagWaitingReturnScalar, TagWaitingReturnMemory, TagWaitingForget:
		return true
	default:
		return false
	}
}

// Record is the fixed 32-byte on-slot representation of every message
// variant and its waiting/terminated companions: a tagged record of {PID,
// TID, original-server-reply-addr, id, arg1..arg4}.
//
// Scalar variants use Arg1..Arg4 as the four word-sized arguments. Memory
// variants reuse the same fields as {SenderAddr, Len, Offset, ValidLen};
// OrigAddr additionally carries the receiver-side address once take_next
// has remapped the range (WaitingReturnMemory's recorded receiver_addr).
type Record struct {
	Tag        Tag
	PID        PID
	TID        TID
	Terminated bool // rewritten-to-Terminated form, once the sender has died
	ID         uint32
	Arg1       uint32 // scalar arg1 / memory sender-side address
	Arg2       uint32 // scalar arg2 / memory length
	Arg3       uint32 // scalar arg3 / memory offset
	Arg4       uint32 // scalar arg4 / memory valid length
	OrigAddr   uint32 // original server reply addr / memory receiver-side address
}

// compile-time assertion that the wire encoding fits the reference layout
// (the array length goes negative, and the build fails, if it outgrows
// RecordSize); the in-memory Go struct above is larger due to field
// alignment and is never laid directly over the page — Marshal/Unmarshal do
// the packing.
var _ [RecordSize - unsafe.Sizeof(struct {
	a uint8
	b uint8
	c uint8
	d uint8
	e uint32
	f uint32
	g uint32
	h uint32
	i uint32
	j uint32
}{})]byte
