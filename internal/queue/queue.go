package queue

import (
	"sync"

	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// Queue is the combined Incoming Queue and Outgoing Queue (Return Book).
// Both roles share one slot-index space over one backing page, since a slot
// is always exactly one of "not yet received" (incoming) or "received,
// awaiting return" (outgoing) and never both, which permits folding them
// into a single array.
//
// Queue itself only holds the mutex needed for safe standalone use; the
// Server built on top of it (internal/server) adds its own lock for the
// ready-mask bookkeeping that lives outside the slot table.
type Queue struct {
	mu   sync.Mutex
	page *wire.Page
	head wire.SlotIndex
	tail wire.SlotIndex
}

// New allocates a Queue with every slot Empty.
func New() *Queue {
	return &Queue{page: wire.NewPage()}
}

// Reset clears every slot and rewinds head/tail to zero, discarding
// whatever was in flight.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.page.Reset()
	q.head = 0
	q.tail = 0
}

// Release returns the backing page to the pool. The Queue must not be used
// afterward.
func (q *Queue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.page != nil {
		q.page.Release()
		q.page = nil
	}
}

func nextIndex(idx wire.SlotIndex) wire.SlotIndex {
	if int(idx)+1 >= wire.SlotsPerPage {
		return 0
	}
	return idx + 1
}

// Enqueue scans forward from head for the first Empty slot, wrapping once.
// Occupied slots — both not-yet-received messages and WaitingReturn*
// entries — are never overwritten: the slot index is the identity a reply
// uses to find its blocked sender, so a slot only becomes reusable through
// the matching reply or return. The head pointer advances opportunistically;
// the linear scan keeps this correct even when head is stale, and lets new
// messages land in any freed slot while Waiting entries pepper the table.
func (q *Queue) Enqueue(req Request) (wire.SlotIndex, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.head
	for q.page.Slot(idx).Tag != wire.TagEmpty {
		idx = nextIndex(idx)
		if idx == q.head {
			return 0, ErrQueueFull
		}
	}

	rec := wire.Record{
		Tag:      req.Kind.incomingTag(),
		PID:      req.PID,
		TID:      req.TID,
		ID:       req.ID,
		Arg1:     req.Arg1,
		Arg2:     req.Arg2,
		Arg3:     req.Arg3,
		Arg4:     req.Arg4,
		OrigAddr: req.OrigAddr,
	}
	q.page.SetSlot(idx, rec)

	if idx == q.head {
		q.head = nextIndex(q.head)
	}
	return idx, nil
}

// QueueResponse writes the WaitingReturn* record for an already-received
// message back into its own slot: the reply obligation, with the
// receiver-side address in OrigAddr for memory loans so a later TakeWaiting
// can validate the return against it.
//
// The slot is an explicit parameter rather than the result of a free-slot
// scan: a response always lands in the very slot Enqueue allocated for its
// message, since nothing else may write that slot between the message being
// queued and its response being recorded. Taking the index directly removes
// the class of bug where a scan could land on a different slot than the one
// actually being responded to.
//
// A Terminated mark already on the slot survives the rewrite: the sender
// dying before its message was received must still route the eventual
// return to "forget" rather than "restore".
func (q *Queue) QueueResponse(slot wire.SlotIndex, req Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var tag wire.Tag
	switch req.Kind {
	case KindScalar, KindBlockingScalar:
		tag = wire.TagWaitingReturnScalar
	case KindMove:
		tag = wire.TagWaitingForget
	case KindBorrow, KindMutableBorrow:
		tag = wire.TagWaitingReturnMemory
	default:
		panic("queue: unknown request kind")
	}

	rec := wire.Record{
		Tag:        tag,
		PID:        req.PID,
		TID:        req.TID,
		Terminated: q.page.Slot(slot).Terminated,
		ID:         req.ID,
		Arg1:       req.Arg1,
		Arg2:       req.Arg2,
		Arg3:       req.Arg3,
		Arg4:       req.Arg4,
		OrigAddr:   req.OrigAddr,
	}
	q.page.SetSlot(slot, rec)
	return nil
}

// TakeNext scans forward from tail for the
// first deliverable slot. Empty and WaitingReturn* slots are skipped over.
// Memory-borrow variants transition in place to WaitingReturnMemory (the
// sender stays blocked until the loan is returned); BlockingScalar
// transitions to WaitingReturnScalar. Move and fire-and-forget Scalar
// messages have no return leg, so they clear straight to Empty.
//
// The scan is bounded by a fixed number of slot visits (one full lap)
// rather than by comparing against head: a head-relative stop condition
// aliases a completely full table (every slot incoming) with a completely
// empty one, since both leave head == tail. Every slot's tag is
// self-describing, so a full lap is the correct and unambiguous bound.
func (q *Queue) TakeNext() (wire.SlotIndex, wire.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.tail
	for i := 0; i < wire.SlotsPerPage; i++ {
		rec := q.page.Slot(idx)
		if rec.Tag == wire.TagEmpty || rec.Tag.IsWaitingReturn() {
			idx = nextIndex(idx)
			continue
		}
		switch rec.Tag {
		case wire.TagMemoryBorrowRO, wire.TagMemoryBorrowRW:
			out := rec
			rec.Tag = wire.TagWaitingReturnMemory
			q.page.SetSlot(idx, rec)
			q.advanceTailPast(idx)
			return idx, out, true
		case wire.TagBlockingScalarPending:
			out := rec
			rec.Tag = wire.TagWaitingReturnScalar
			q.page.SetSlot(idx, rec)
			q.advanceTailPast(idx)
			return idx, out, true
		case wire.TagMoveInFlight, wire.TagScalarInFlight:
			out := rec
			q.page.SetSlot(idx, wire.Record{})
			q.advanceTailPast(idx)
			return idx, out, true
		default:
			idx = nextIndex(idx)
		}
	}
	return 0, wire.Record{}, false
}

// advanceTailPast moves tail forward if idx was exactly at tail, then keeps
// advancing through any run of now-contiguous Empty slots, so future scans
// skip the drained prefix. Correctness never depends on tail being fresh.
func (q *Queue) advanceTailPast(idx wire.SlotIndex) {
	if idx != q.tail {
		return
	}
	q.tail = nextIndex(q.tail)
	for q.tail != q.head && q.page.Slot(q.tail).Tag == wire.TagEmpty {
		q.tail = nextIndex(q.tail)
	}
}

// TakeWaiting discharges a reply obligation. For memory returns, addr
// and length must match what was recorded for the slot or ErrBadAddress is
// returned and the slot is left untouched. On success the slot clears to
// Empty; if it sat at tail, tail advances past it (and past any further
// contiguous Empty run).
func (q *Queue) TakeWaiting(slot wire.SlotIndex, addr, length uint32) (WaitingMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec := q.page.Slot(slot)
	var msg WaitingMessage

	switch rec.Tag {
	case wire.TagWaitingReturnMemory:
		if rec.OrigAddr != addr || rec.Arg2 != length {
			return WaitingMessage{}, ErrBadAddress
		}
		msg = WaitingMessage{
			Kind:       WaitingBorrowedMemory,
			PID:        rec.PID,
			TID:        rec.TID,
			ServerAddr: rec.OrigAddr,
			ClientAddr: rec.Arg1,
			Len:        rec.Arg2,
		}
	case wire.TagWaitingForget:
		if rec.OrigAddr != addr || rec.Arg2 != length {
			return WaitingMessage{}, ErrBadAddress
		}
		msg = WaitingMessage{Kind: WaitingMovedMemory, PID: rec.PID, TID: rec.TID}
	case wire.TagWaitingReturnScalar:
		msg = WaitingMessage{Kind: WaitingScalarMessage, PID: rec.PID, TID: rec.TID}
	default:
		return WaitingMessage{}, ErrNotWaiting
	}

	if rec.Terminated && msg.Kind == WaitingBorrowedMemory {
		msg.Kind = WaitingForgetMemory
	}

	q.page.SetSlot(slot, wire.Record{})
	q.advanceTailPast(slot)
	return msg, nil
}

// DiscardForPID rewrites every slot whose recorded sender is pid to its
// Terminated form, so a later TakeNext still delivers the message (the
// receiver has no idea the sender died) but a later return is told to
// forget rather than restore. ScalarInFlight and MoveInFlight slots are
// left alone: their memory (if any) has already moved into the receiving
// process and is reclaimed along with that process, not the sender's.
//
// WaitingReturn* slots are marked too, not just not-yet-received ones. No
// slot may reference a terminated PID in a form that would restore memory
// to it; without the mark, a message already delivered to its receiver
// before the sender died would still come back as a live restore into the
// dead process's address space.
func (q *Queue) DiscardForPID(pid wire.PID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := 0; i < wire.SlotsPerPage; i++ {
		idx := wire.SlotIndex(i)
		rec := q.page.Slot(idx)
		if rec.PID != pid {
			continue
		}
		switch {
		case rec.Tag == wire.TagScalarInFlight || rec.Tag == wire.TagMoveInFlight,
			rec.Tag == wire.TagWaitingForget:
			// nothing to restore to the sender
		case rec.Tag.IsIncoming() || rec.Tag.IsWaitingReturn():
			rec.Terminated = true
			q.page.SetSlot(idx, rec)
		}
	}
}
