package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

func TestEnqueueTakeNextScalar(t *testing.T) {
	q := New()
	defer q.Release()

	slot, err := q.Enqueue(Request{Kind: KindScalar, PID: 3, TID: 1, ID: 42, Arg1: 7})
	require.NoError(t, err)

	idx, rec, ok := q.TakeNext()
	require.True(t, ok)
	require.Equal(t, slot, idx)
	require.Equal(t, uint32(42), rec.ID)
	require.Equal(t, uint32(7), rec.Arg1)

	// Scalar has no return leg: it clears straight to Empty.
	_, _, ok = q.TakeNext()
	require.False(t, ok)
}

func TestBlockingScalarRoundTrip(t *testing.T) {
	q := New()
	defer q.Release()

	slot, err := q.Enqueue(Request{Kind: KindBlockingScalar, PID: 2, TID: 5, ID: 9})
	require.NoError(t, err)

	idx, rec, ok := q.TakeNext()
	require.True(t, ok)
	require.Equal(t, slot, idx)
	require.Equal(t, wire.PID(2), rec.PID)

	err = q.QueueResponse(slot, Request{Kind: KindBlockingScalar, PID: 2, TID: 5, Arg1: 100})
	require.NoError(t, err)

	msg, err := q.TakeWaiting(slot, 0, 0)
	require.NoError(t, err)
	require.Equal(t, WaitingScalarMessage, msg.Kind)
	require.Equal(t, wire.PID(2), msg.PID)
	require.Equal(t, wire.TID(5), msg.TID)
}

func TestMemoryBorrowRoundTripWithAddrValidation(t *testing.T) {
	q := New()
	defer q.Release()

	slot, err := q.Enqueue(Request{Kind: KindBorrow, PID: 4, TID: 1, Arg1: 0x1000, Arg2: 256})
	require.NoError(t, err)

	idx, rec, ok := q.TakeNext()
	require.True(t, ok)
	require.Equal(t, slot, idx)
	require.Equal(t, uint32(256), rec.Arg2)

	err = q.QueueResponse(slot, Request{Kind: KindBorrow, PID: 4, TID: 1, Arg1: 0x1000, Arg2: 256, OrigAddr: 0x9000})
	require.NoError(t, err)

	_, err = q.TakeWaiting(slot, 0xdead, 256)
	require.ErrorIs(t, err, ErrBadAddress)

	msg, err := q.TakeWaiting(slot, 0x9000, 256)
	require.NoError(t, err)
	require.Equal(t, WaitingBorrowedMemory, msg.Kind)
	require.Equal(t, uint32(0x9000), msg.ServerAddr)
	require.Equal(t, uint32(0x1000), msg.ClientAddr)
}

func TestMoveHasNoReturnLeg(t *testing.T) {
	q := New()
	defer q.Release()

	_, err := q.Enqueue(Request{Kind: KindMove, PID: 1, TID: 1, Arg1: 0x2000, Arg2: 64})
	require.NoError(t, err)

	_, rec, ok := q.TakeNext()
	require.True(t, ok)
	require.Equal(t, wire.TagMoveInFlight, rec.Tag)

	_, _, ok = q.TakeNext()
	require.False(t, ok)
}

func TestDiscardForPIDRewritesIncomingNotScalarOrMove(t *testing.T) {
	q := New()
	defer q.Release()

	borrowSlot, err := q.Enqueue(Request{Kind: KindBorrow, PID: 9, TID: 1, Arg1: 1, Arg2: 1})
	require.NoError(t, err)
	scalarSlot, err := q.Enqueue(Request{Kind: KindScalar, PID: 9, TID: 1})
	require.NoError(t, err)
	moveSlot, err := q.Enqueue(Request{Kind: KindMove, PID: 9, TID: 1})
	require.NoError(t, err)

	q.DiscardForPID(9)

	require.True(t, q.page.Slot(borrowSlot).Terminated)
	require.False(t, q.page.Slot(scalarSlot).Terminated)
	require.False(t, q.page.Slot(moveSlot).Terminated)
}

func TestDiscardForPIDAfterTakeNextYieldsForget(t *testing.T) {
	q := New()
	defer q.Release()

	slot, err := q.Enqueue(Request{Kind: KindMutableBorrow, PID: 6, TID: 2, Arg1: 0x4000, Arg2: 16})
	require.NoError(t, err)

	_, _, ok := q.TakeNext()
	require.True(t, ok)

	err = q.QueueResponse(slot, Request{Kind: KindMutableBorrow, PID: 6, TID: 2, Arg1: 0x4000, Arg2: 16, OrigAddr: 0x8000})
	require.NoError(t, err)
	q.DiscardForPID(6)

	msg, err := q.TakeWaiting(slot, 0x8000, 16)
	require.NoError(t, err)
	require.Equal(t, WaitingForgetMemory, msg.Kind)
}

func TestQueueResponsePreservesTerminatedMark(t *testing.T) {
	q := New()
	defer q.Release()

	slot, err := q.Enqueue(Request{Kind: KindBorrow, PID: 8, TID: 1, Arg1: 0x3000, Arg2: 32})
	require.NoError(t, err)

	// Sender dies before the message is received: the slot is rewritten to
	// its terminated form, which must survive the received->waiting rewrite.
	q.DiscardForPID(8)

	_, rec, ok := q.TakeNext()
	require.True(t, ok)
	require.True(t, rec.Terminated)

	err = q.QueueResponse(slot, Request{Kind: KindBorrow, PID: 8, TID: 1, Arg1: 0x3000, Arg2: 32, OrigAddr: 0xA000})
	require.NoError(t, err)

	msg, err := q.TakeWaiting(slot, 0xA000, 32)
	require.NoError(t, err)
	require.Equal(t, WaitingForgetMemory, msg.Kind)
}

func TestQueueFullWhenAllSlotsIncoming(t *testing.T) {
	q := New()
	defer q.Release()

	for i := 0; i < wire.SlotsPerPage; i++ {
		_, err := q.Enqueue(Request{Kind: KindScalar, PID: 1, TID: wire.TID(i)})
		require.NoError(t, err)
	}

	_, err := q.Enqueue(Request{Kind: KindScalar, PID: 1, TID: 99})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestEnqueueNeverOverwritesWaitingSlots(t *testing.T) {
	q := New()
	defer q.Release()

	for i := 0; i < wire.SlotsPerPage; i++ {
		_, err := q.Enqueue(Request{Kind: KindBlockingScalar, PID: 1, TID: wire.TID(i)})
		require.NoError(t, err)
	}
	// Drain every slot to WaitingReturnScalar. The slot index is the handle
	// a reply uses to find its blocked sender, so the table is still full:
	// a waiting slot only frees through its matching reply.
	for i := 0; i < wire.SlotsPerPage; i++ {
		_, _, ok := q.TakeNext()
		require.True(t, ok)
	}

	_, err := q.Enqueue(Request{Kind: KindScalar, PID: 2, TID: 1, ID: 77})
	require.ErrorIs(t, err, ErrQueueFull)

	// Discharging one reply frees exactly one slot for the next message.
	_, err = q.TakeWaiting(0, 0, 0)
	require.NoError(t, err)

	slot, err := q.Enqueue(Request{Kind: KindScalar, PID: 2, TID: 1, ID: 77})
	require.NoError(t, err)
	require.Equal(t, wire.SlotIndex(0), slot)
}

func TestTakeNextSkipsWaitingSlots(t *testing.T) {
	q := New()
	defer q.Release()

	slot, err := q.Enqueue(Request{Kind: KindBlockingScalar, PID: 1, TID: 1})
	require.NoError(t, err)
	_, _, ok := q.TakeNext()
	require.True(t, ok)

	// Queue is now empty of anything deliverable: the one slot is
	// WaitingReturnScalar, which take_next must skip rather than re-deliver.
	_, _, ok = q.TakeNext()
	require.False(t, ok)

	err = q.QueueResponse(slot, Request{Kind: KindBlockingScalar, PID: 1, TID: 1})
	require.NoError(t, err)
	_, err = q.TakeWaiting(slot, 0, 0)
	require.NoError(t, err)
}
