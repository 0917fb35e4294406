package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betrusted-io/xous-kernel-ipc/internal/queue"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

func TestParkAndTakeAvailableThread(t *testing.T) {
	s := New(1)
	defer s.Release()

	_, ok := s.TakeAvailableThread()
	require.False(t, ok)

	s.ParkThread(3)
	s.ParkThread(5)
	require.True(t, s.HasReadyThread())

	tid, ok := s.TakeAvailableThread()
	require.True(t, ok)
	require.Contains(t, []wire.TID{3, 5}, tid)
}

func TestQueueMessageAndTakeNext(t *testing.T) {
	s := New(7)
	defer s.Release()

	slot, err := s.QueueMessage(queue.Request{Kind: queue.KindScalar, PID: 2, TID: 1, ID: 5})
	require.NoError(t, err)

	idx, rec, ok := s.TakeNextMessage()
	require.True(t, ok)
	require.Equal(t, slot, idx)
	require.Equal(t, uint32(5), rec.ID)
}

func TestDestroyResetsQueueAndReady(t *testing.T) {
	s := New(1)
	defer s.Release()

	s.ParkThread(1)
	_, err := s.QueueMessage(queue.Request{Kind: queue.KindScalar, PID: 1, TID: 1})
	require.NoError(t, err)

	s.Destroy()
	require.False(t, s.HasReadyThread())
	_, _, ok := s.TakeNextMessage()
	require.False(t, ok)
}

func TestParkThreadPanicsIfAlreadyParked(t *testing.T) {
	s := New(1)
	defer s.Release()

	s.ParkThread(2)
	require.Panics(t, func() { s.ParkThread(2) })
}

func TestUnparkThreadClearsReadyBit(t *testing.T) {
	s := New(1)
	defer s.Release()

	s.ParkThread(4)
	s.UnparkThread(4)
	require.False(t, s.HasReadyThread())
}

func TestReturnAvailableThreadRestoresClaimedThread(t *testing.T) {
	s := New(1)
	defer s.Release()

	s.ParkThread(6)
	tid, ok := s.TakeAvailableThread()
	require.True(t, ok)
	require.Equal(t, wire.TID(6), tid)
	require.False(t, s.HasReadyThread())

	s.ReturnAvailableThread(6)
	require.True(t, s.HasReadyThread())
	tid, ok = s.TakeAvailableThread()
	require.True(t, ok)
	require.Equal(t, wire.TID(6), tid)
}

func TestReturnAvailableThreadPanicsIfAlreadyParked(t *testing.T) {
	s := New(1)
	defer s.Release()

	s.ParkThread(3)
	require.Panics(t, func() { s.ReturnAvailableThread(3) })
}
