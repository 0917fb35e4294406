package ticktimer

import (
	"context"
	"sync"

	"github.com/betrusted-io/xous-kernel-ipc/internal/hostops"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// MutexID and CondID name a lock or condition variable. In the real kernel
// these are the client-side memory address of the primitive's backing
// struct; here they're caller-chosen opaque values scoped per owning
// process, so identity is the pair (owning pid, address).
type MutexID uint32
type CondID uint32

type threadKey struct {
	pid wire.PID
	tid wire.TID
}

type mutexState struct {
	locked  bool
	owner   threadKey
	waiters []threadKey
}

// condWaiter is one parked WaitForCondition call. It is removed from its
// condState.waiters slice exactly once, either by NotifyCondition (normal
// wake) or by deadline expiry — whichever gets there first; the other finds
// it already gone and is a no-op.
type condWaiter struct {
	pid wire.PID
	tid wire.TID

	timedOut bool
	entry    *sleepEntry // non-nil when a timeout was armed for this wait
}

type condState struct {
	waiters []*condWaiter
}

// Service implements the sync primitives layer: Mutex and Condvar built on
// top of the kernel's Scheduler and TimerHost collaborators. The kernel
// drives it two ways: directly, through the blocking method calls below,
// and over the wire, through DispatchBlocking/DispatchScalar from the
// built-in ticktimer server's receive loop.
//
// All timed wakeups — sleeps and condvar timeouts — share one sleep queue
// and one armed TimerHost callback: rearmLocked keeps the timer set for the
// queue's earliest deadline, and expiry pops every due entry before arming
// the next. Deadline collisions are resolved at insert by bumping the new
// entry forward 1ms until unique.
type Service struct {
	mu sync.Mutex

	scheduler hostops.Scheduler
	timer     hostops.TimerHost

	mutexes map[wire.PID]map[MutexID]*mutexState
	conds   map[wire.PID]map[CondID]*condState

	// immediate absorbs the race where NotifyCondition runs before the
	// corresponding WaitForCondition has been registered: each notify with
	// no waiters present credits the (pid,cond) pair instead of being lost,
	// and the next WaitForCondition call consumes a credit and returns
	// immediately rather than blocking.
	immediate map[wire.PID]map[CondID]int

	sleepQ *sleepQueue

	// armed/armedFor/armGen track the single pending TimerHost callback:
	// what deadline it will fire for, and a generation stamp so callbacks
	// superseded by an earlier rearm recognize themselves as stale.
	armed    bool
	armedFor int64
	armGen   uint64
}

// New returns a Service backed by the given Scheduler and TimerHost.
func New(scheduler hostops.Scheduler, timer hostops.TimerHost) *Service {
	return &Service{
		scheduler: scheduler,
		timer:     timer,
		mutexes:   make(map[wire.PID]map[MutexID]*mutexState),
		conds:     make(map[wire.PID]map[CondID]*condState),
		immediate: make(map[wire.PID]map[CondID]int),
		sleepQ:    newSleepQueue(),
	}
}

// ElapsedMs reports milliseconds since the service's TimerHost started.
func (s *Service) ElapsedMs() int64 {
	return s.timer.NowMs()
}

// GetVersion reports the sync-primitive wire protocol version.
func (s *Service) GetVersion() uint32 {
	return ProtocolVersion
}

// PingWatchdog is a liveness no-op a supervisor calls to confirm the
// ticktimer service is still scheduling callbacks.
func (s *Service) PingWatchdog() {}

func (s *Service) mutexOf(pid wire.PID, id MutexID) *mutexState {
	byID, ok := s.mutexes[pid]
	if !ok {
		byID = make(map[MutexID]*mutexState)
		s.mutexes[pid] = byID
	}
	m, ok := byID[id]
	if !ok {
		m = &mutexState{}
		byID[id] = m
	}
	return m
}

func (s *Service) condOf(pid wire.PID, id CondID) *condState {
	byID, ok := s.conds[pid]
	if !ok {
		byID = make(map[CondID]*condState)
		s.conds[pid] = byID
	}
	c, ok := byID[id]
	if !ok {
		c = &condState{}
		byID[id] = c
	}
	return c
}

// LockMutex blocks the calling thread until it owns id, scoped to pid's
// mutex namespace.
func (s *Service) LockMutex(ctx context.Context, pid wire.PID, tid wire.TID, id MutexID) error {
	s.mu.Lock()
	m := s.mutexOf(pid, id)
	if !m.locked {
		m.locked = true
		m.owner = threadKey{pid, tid}
		s.mu.Unlock()
		return nil
	}
	m.waiters = append(m.waiters, threadKey{pid, tid})
	s.mu.Unlock()

	return s.scheduler.ParkThread(ctx, pid, tid)
}

// UnlockMutex releases id, handing ownership directly to the next FIFO
// waiter (if any) so a released mutex never races woken threads against
// new lockers.
func (s *Service) UnlockMutex(pid wire.PID, id MutexID) {
	s.mu.Lock()
	m := s.mutexOf(pid, id)
	if len(m.waiters) == 0 {
		m.locked = false
		m.owner = threadKey{}
		s.mu.Unlock()
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	m.owner = next
	s.mu.Unlock()

	s.scheduler.WakeThread(next.pid, next.tid)
}

// WaitForCondition blocks the calling thread on id until NotifyCondition
// targets it (or a prior notify already credited it), ctx is done, or
// timeoutMs milliseconds elapse (0 means wait forever). The returned bool
// reports whether the wait ended in a timeout rather than a notify, mirroring
// the wire contract's 0=notified/1=timed-out result.
func (s *Service) WaitForCondition(ctx context.Context, pid wire.PID, tid wire.TID, id CondID, timeoutMs int64) (bool, error) {
	s.mu.Lock()
	credits := s.immediate[pid]
	if credits != nil && credits[id] > 0 {
		credits[id]--
		s.mu.Unlock()
		return false, nil
	}
	c := s.condOf(pid, id)
	w := &condWaiter{pid: pid, tid: tid}
	c.waiters = append(c.waiters, w)

	if timeoutMs > 0 {
		w.entry = s.sleepQ.Insert(pid, tid, s.timer.NowMs()+timeoutMs, id, w)
		s.rearmLocked()
	}
	s.mu.Unlock()

	if err := s.scheduler.ParkThread(ctx, pid, tid); err != nil {
		s.mu.Lock()
		if s.removeCondWaiter(pid, id, w) && w.entry != nil {
			s.sleepQ.Remove(w.entry)
		}
		s.mu.Unlock()
		return false, err
	}

	s.mu.Lock()
	timedOut := w.timedOut
	s.mu.Unlock()
	return timedOut, nil
}

// removeCondWaiter deletes w from (pid, id)'s waiter list if it is still
// there, reporting whether it found it. A miss means the other race winner
// (notify or timeout) already removed it.
func (s *Service) removeCondWaiter(pid wire.PID, id CondID, w *condWaiter) bool {
	c := s.condOf(pid, id)
	for i, cur := range c.waiters {
		if cur == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// NotifyCondition wakes up to count waiters on id (count == 0 means "all").
// Waking more threads than are currently parked credits the surplus for a
// future WaitForCondition to consume immediately. A woken waiter that also
// had a timeout armed has its sleepQ entry withdrawn; the wakeup timer may
// still fire for the withdrawn deadline, find nothing due, and rearm.
func (s *Service) NotifyCondition(pid wire.PID, id CondID, count int) {
	s.mu.Lock()
	c := s.condOf(pid, id)
	n := count
	if n == 0 || n > len(c.waiters) {
		n = len(c.waiters)
	}
	woken := c.waiters[:n]
	c.waiters = c.waiters[n:]

	surplus := count - n
	if count == 0 {
		surplus = 0
	}
	if surplus > 0 {
		if s.immediate[pid] == nil {
			s.immediate[pid] = make(map[CondID]int)
		}
		s.immediate[pid][id] += surplus
	}
	for _, w := range woken {
		if w.entry != nil {
			s.sleepQ.Remove(w.entry)
		}
	}
	s.mu.Unlock()

	for _, w := range woken {
		s.scheduler.WakeThread(w.pid, w.tid)
	}
}

// SleepMs blocks the calling thread for durationMs. The wakeup goes through
// the shared sleep queue and its single armed timer, so sleeps share
// ordering and collision-bumping with timed condition waits.
func (s *Service) SleepMs(ctx context.Context, pid wire.PID, tid wire.TID, durationMs int64) error {
	s.mu.Lock()
	entry := s.sleepQ.Insert(pid, tid, s.timer.NowMs()+durationMs, 0, nil)
	s.rearmLocked()
	s.mu.Unlock()

	if err := s.scheduler.ParkThread(ctx, pid, tid); err != nil {
		s.mu.Lock()
		s.sleepQ.Remove(entry)
		s.mu.Unlock()
		return err
	}
	return nil
}

// rearmLocked keeps the single TimerHost callback armed for the sleep
// queue's earliest deadline. Arming is skipped when the pending callback
// already fires at or before that deadline; otherwise a new callback is
// armed under a fresh generation, which supersedes any still-pending one.
// Callers hold s.mu.
func (s *Service) rearmLocked() {
	deadline, ok := s.sleepQ.PeekDeadline()
	if !ok {
		return
	}
	if s.armed && s.armedFor <= deadline {
		return
	}
	s.armed = true
	s.armedFor = deadline
	s.armGen++
	gen := s.armGen
	delay := deadline - s.timer.NowMs()
	if delay < 0 {
		delay = 0
	}
	s.timer.AfterMs(delay, func() { s.onTimer(gen) })
}

// onTimer is the armed callback: pop everything due, then rearm for the new
// top. A callback whose generation was superseded by a later rearm does
// nothing.
func (s *Service) onTimer(gen uint64) {
	s.mu.Lock()
	if gen != s.armGen {
		s.mu.Unlock()
		return
	}
	s.armed = false
	wake := s.expireReadyLocked()
	s.rearmLocked()
	s.mu.Unlock()

	for _, t := range wake {
		s.scheduler.WakeThread(t.pid, t.tid)
	}
}

// expireReadyLocked pops every due entry, resolving timed condition waits
// to their timed-out form, and returns the threads to wake. A cond entry
// whose waiter was already claimed by a notify wakes nobody. Callers hold
// s.mu.
func (s *Service) expireReadyLocked() []threadKey {
	var wake []threadKey
	for _, e := range s.sleepQ.PopReady(s.timer.NowMs()) {
		if e.w != nil {
			if !s.removeCondWaiter(e.pid, e.cond, e.w) {
				continue
			}
			e.w.timedOut = true
		}
		wake = append(wake, threadKey{e.pid, e.tid})
	}
	return wake
}

// RecalculateSleep forces the pop-and-rearm pass the timer callback
// normally performs: every due entry is expired now and the timer is
// rearmed for the next deadline. The built-in server invokes this for an
// OpRecalculateSleep message from the ticktimer process itself.
func (s *Service) RecalculateSleep() {
	s.mu.Lock()
	s.armed = false
	wake := s.expireReadyLocked()
	s.rearmLocked()
	s.mu.Unlock()

	for _, t := range wake {
		s.scheduler.WakeThread(t.pid, t.tid)
	}
}

// DispatchBlocking executes a BlockingScalar opcode on behalf of the blocked
// sender (pid, tid) and returns the words to hand back through
// return_scalar.
func (s *Service) DispatchBlocking(ctx context.Context, pid wire.PID, tid wire.TID, op Opcode, arg1, arg2 uint32) ([4]uint32, error) {
	switch op {
	case OpElapsedMs:
		ms := uint64(s.ElapsedMs())
		return [4]uint32{uint32(ms), uint32(ms >> 32)}, nil
	case OpSleepMs:
		return [4]uint32{}, s.SleepMs(ctx, pid, tid, int64(arg1))
	case OpLockMutex:
		return [4]uint32{}, s.LockMutex(ctx, pid, tid, MutexID(arg1))
	case OpWaitForCondition:
		timedOut, err := s.WaitForCondition(ctx, pid, tid, CondID(arg1), int64(arg2))
		if err != nil {
			return [4]uint32{}, err
		}
		if timedOut {
			return [4]uint32{1}, nil
		}
		return [4]uint32{}, nil
	case OpPingWatchdog:
		s.PingWatchdog()
		return [4]uint32{}, nil
	case OpGetVersion:
		return [4]uint32{s.GetVersion()}, nil
	}
	return [4]uint32{}, ErrUnknownOpcode
}

// DispatchScalar executes a fire-and-forget opcode. OpRecalculateSleep is
// not handled here: only the server's own receive loop knows whether the
// sender is the ticktimer itself, so it gates that opcode before
// dispatching.
func (s *Service) DispatchScalar(pid wire.PID, op Opcode, arg1, arg2 uint32) error {
	switch op {
	case OpUnlockMutex:
		s.UnlockMutex(pid, MutexID(arg1))
	case OpNotifyCondition:
		s.NotifyCondition(pid, CondID(arg1), int(arg2))
	default:
		return ErrUnknownOpcode
	}
	return nil
}

// RemoveProcess drops every per-PID table entry for pid: mutex namespaces,
// condvar waiter lists (withdrawing any armed timeout entries from the
// sleep queue so their deadlines expire into no-ops), and immediate-notify
// credits. Called by the kernel's process-termination hook; the threads
// referenced by the dropped entries are already dead, so nothing is woken.
func (s *Service) RemoveProcess(pid wire.PID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conds[pid] {
		for _, w := range c.waiters {
			if w.entry != nil {
				s.sleepQ.Remove(w.entry)
			}
		}
	}
	delete(s.mutexes, pid)
	delete(s.conds, pid)
	delete(s.immediate, pid)
}
