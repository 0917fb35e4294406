// Package server implements the Server component: one message queue plus
// the ready-thread bitmap of threads blocked waiting to receive on it.
// Locking is split per concern — the queue guards its own slot table, the
// Server guards only the ready-mask bookkeeping — rather than one coarse
// lock around every operation.
package server

import (
	"sync"

	"github.com/betrusted-io/xous-kernel-ipc/internal/queue"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// MaxReadyThreads bounds the ready-thread bitmap to 64 threads per server,
// matching a single uint64 bitmap word — generous for the cooperative
// thread counts a server is expected to juggle.
const MaxReadyThreads = 64

// Server owns one Queue plus the set of receiving threads currently parked
// waiting for TakeNextMessage to hand them work: create, destroy, queue a
// message, queue a response, take the next message, take a waiting message,
// discard messages for a dead process, and park/take/return receiver
// threads. UnparkThread additionally backs Kernel.Receive's park-then-retry
// loop, which needs to undo its own ParkThread call — a different job from
// TakeAvailableThread's claim-then-restore pattern.
type Server struct {
	mu sync.Mutex

	q   *queue.Queue
	pid wire.PID // owning process

	// ready is a bitmap of thread IDs (0..MaxReadyThreads) currently parked
	// in receive, waiting to be handed a message.
	ready uint64
}

// New creates a Server owned by pid with an empty queue.
func New(pid wire.PID) *Server {
	return &Server{q: queue.New(), pid: pid}
}

// PID returns the server's owning process.
func (s *Server) PID() wire.PID {
	return s.pid
}

// Destroy resets the queue and clears the ready set.
func (s *Server) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Reset()
	s.ready = 0
}

// Release returns the server's backing queue page to the pool. Call after
// Destroy when the server is being torn down for good, not merely reset for
// reuse.
func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Release()
}

// QueueMessage enqueues a new message for this server's receivers.
func (s *Server) QueueMessage(req queue.Request) (wire.SlotIndex, error) {
	return s.q.Enqueue(req)
}

// QueueResponse records the reply obligation for a message just received
// from slot, including the receiver-side address of a remapped memory loan.
func (s *Server) QueueResponse(slot wire.SlotIndex, req queue.Request) error {
	return s.q.QueueResponse(slot, req)
}

// TakeNextMessage hands the calling thread the next deliverable message, if
// any.
func (s *Server) TakeNextMessage() (wire.SlotIndex, wire.Record, bool) {
	return s.q.TakeNext()
}

// TakeWaitingMessage completes a previously received message's return leg.
func (s *Server) TakeWaitingMessage(slot wire.SlotIndex, addr, length uint32) (queue.WaitingMessage, error) {
	return s.q.TakeWaiting(slot, addr, length)
}

// DiscardMessagesForPID rewrites this server's slots belonging to pid to
// their terminated form.
func (s *Server) DiscardMessagesForPID(pid wire.PID) {
	s.q.DiscardForPID(pid)
}

// ParkThread marks tid as blocked in receive with nothing to deliver yet.
// Panics if tid is already parked: a thread can only be waiting on one
// receive at a time.
func (s *Server) ParkThread(tid wire.TID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tid >= MaxReadyThreads {
		return
	}
	if s.ready&(1<<uint(tid)) != 0 {
		panic("server: ParkThread called on an already-parked thread")
	}
	s.ready |= 1 << uint(tid)
}

// TakeAvailableThread removes and returns one parked thread ID, if any are
// parked. Callers use this to decide which waiting receiver to hand a
// freshly queued message to without an explicit wakeup channel per thread.
func (s *Server) TakeAvailableThread() (wire.TID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready == 0 {
		return 0, false
	}
	for tid := wire.TID(0); tid < MaxReadyThreads; tid++ {
		if s.ready&(1<<uint(tid)) != 0 {
			s.ready &^= 1 << uint(tid)
			return tid, true
		}
	}
	return 0, false
}

// ReturnAvailableThread restores tid to the ready set after
// TakeAvailableThread had claimed it but the message it was claimed for
// could not actually be delivered — the mirror image of TakeAvailableThread,
// same effect as ParkThread. Panics if tid is already parked: returning a
// thread that is already blocking means two claims were handed out for one
// parked thread.
func (s *Server) ReturnAvailableThread(tid wire.TID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tid >= MaxReadyThreads {
		return
	}
	if s.ready&(1<<uint(tid)) != 0 {
		panic("server: ReturnAvailableThread called on an already-parked thread")
	}
	s.ready |= 1 << uint(tid)
}

// UnparkThread undoes a ParkThread call for tid when the thread turns out
// not to need parking after all (a message was already sitting in the
// queue, or the scheduler wait itself failed) — the only case where a
// thread's own ready bit needs clearing rather than claiming or restoring
// someone else's.
func (s *Server) UnparkThread(tid wire.TID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tid < MaxReadyThreads {
		s.ready &^= 1 << uint(tid)
	}
}

// HasReadyThread reports whether any thread is currently parked.
func (s *Server) HasReadyThread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready != 0
}
