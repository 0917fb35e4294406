package ticktimer

import (
	"container/heap"

	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// sleepEntry is one pending wakeup: the thread parked in WaitForCondition
// or SleepMs and the deadline it should wake at. cond and w tie a timed
// condition wait back to its waiter record so expiry can withdraw it from
// the condvar's FIFO; w is nil for a plain sleep.
type sleepEntry struct {
	deadlineMs int64
	pid        wire.PID
	tid        wire.TID
	seq        uint64 // tie-breaker so equal deadlines pop in arrival order

	cond CondID
	w    *condWaiter
}

// sleepHeap is a min-heap ordered by deadline. Its top is what the single
// wakeup timer is armed for; see Service.rearmLocked. No third-party
// ordered-map or priority-queue library appears as used code anywhere in
// the retrieved examples, so this leans on container/heap directly — see
// DESIGN.md's dependency disposition.
type sleepHeap []*sleepEntry

func (h sleepHeap) Len() int { return len(h) }
func (h sleepHeap) Less(i, j int) bool {
	if h[i].deadlineMs != h[j].deadlineMs {
		return h[i].deadlineMs < h[j].deadlineMs
	}
	return h[i].seq < h[j].seq
}
func (h sleepHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sleepHeap) Push(x any) {
	*h = append(*h, x.(*sleepEntry))
}

func (h *sleepHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// sleepQueue wraps sleepHeap with deadline-collision bumping: on insert,
// while another entry already owns the requested millisecond, the new
// entry's deadline moves forward by 1ms until it lands on a free one. Every
// live deadline is therefore unique, which the occupied set relies on for
// an O(1) collision check — and the bump is real: the entry fires at its
// bumped time, since the wakeup timer is armed from the heap top.
type sleepQueue struct {
	h        sleepHeap
	occupied map[int64]struct{}
	seq      uint64
}

func newSleepQueue() *sleepQueue {
	q := &sleepQueue{occupied: make(map[int64]struct{})}
	heap.Init(&q.h)
	return q
}

// Insert adds a wakeup for (pid, tid) at deadlineMs, bumping the deadline
// past any collisions, and returns the entry for later Remove. cond and w
// mark a timed condition wait; pass zero values for a plain sleep.
func (q *sleepQueue) Insert(pid wire.PID, tid wire.TID, deadlineMs int64, cond CondID, w *condWaiter) *sleepEntry {
	for {
		if _, taken := q.occupied[deadlineMs]; !taken {
			break
		}
		deadlineMs++
	}
	e := &sleepEntry{deadlineMs: deadlineMs, pid: pid, tid: tid, seq: q.seq, cond: cond, w: w}
	q.seq++
	q.occupied[deadlineMs] = struct{}{}
	heap.Push(&q.h, e)
	return e
}

// Remove deletes e from the queue, e.g. when a condition is notified before
// its timeout elapses. The wakeup timer is left armed; firing with nothing
// due is a no-op that rearms for the new top.
func (q *sleepQueue) Remove(e *sleepEntry) {
	for i, cur := range q.h {
		if cur == e {
			heap.Remove(&q.h, i)
			delete(q.occupied, e.deadlineMs)
			return
		}
	}
}

// PeekDeadline returns the earliest pending deadline and whether the queue
// is non-empty.
func (q *sleepQueue) PeekDeadline() (int64, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].deadlineMs, true
}

// PopReady removes and returns every entry whose deadline is <= nowMs, in
// deadline order.
func (q *sleepQueue) PopReady(nowMs int64) []*sleepEntry {
	var ready []*sleepEntry
	for q.h.Len() > 0 && q.h[0].deadlineMs <= nowMs {
		e := heap.Pop(&q.h).(*sleepEntry)
		delete(q.occupied, e.deadlineMs)
		ready = append(ready, e)
	}
	return ready
}
