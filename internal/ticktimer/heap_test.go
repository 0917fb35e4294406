package ticktimer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSleepQueueOrdersByDeadline(t *testing.T) {
	q := newSleepQueue()
	q.Insert(1, 1, 300, 0, nil)
	q.Insert(1, 2, 100, 0, nil)
	q.Insert(1, 3, 200, 0, nil)

	deadline, ok := q.PeekDeadline()
	require.True(t, ok)
	require.Equal(t, int64(100), deadline)

	ready := q.PopReady(250)
	require.Len(t, ready, 2)
	require.Equal(t, int64(100), ready[0].deadlineMs)
	require.Equal(t, int64(200), ready[1].deadlineMs)

	deadline, ok = q.PeekDeadline()
	require.True(t, ok)
	require.Equal(t, int64(300), deadline)
}

func TestSleepQueueBumpsDeadlineCollisions(t *testing.T) {
	q := newSleepQueue()
	a := q.Insert(1, 1, 100, 0, nil)
	b := q.Insert(1, 2, 100, 0, nil)
	c := q.Insert(1, 3, 100, 0, nil)

	require.Equal(t, int64(100), a.deadlineMs)
	require.Equal(t, int64(101), b.deadlineMs)
	require.Equal(t, int64(102), c.deadlineMs)

	// The bump is visible to expiry: only the unbumped entry is due at 100.
	ready := q.PopReady(100)
	require.Len(t, ready, 1)
	require.Same(t, a, ready[0])

	// A freed millisecond is reusable.
	d := q.Insert(1, 4, 100, 0, nil)
	require.Equal(t, int64(100), d.deadlineMs)
}

func TestSleepQueueRemoveFreesDeadline(t *testing.T) {
	q := newSleepQueue()
	a := q.Insert(1, 1, 50, 0, nil)
	q.Remove(a)

	_, ok := q.PeekDeadline()
	require.False(t, ok)

	b := q.Insert(1, 2, 50, 0, nil)
	require.Equal(t, int64(50), b.deadlineMs)
}
