package hostops

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

type threadKey struct {
	pid wire.PID
	tid wire.TID
}

// SimulatedScheduler parks kernel threads on channels instead of a real
// hardware scheduler. Parking pins the calling goroutine to its OS thread
// so the optional CPU-affinity mask actually sticks to the thread doing
// the waiting; in a simulation that is best-effort observability, not a
// hard requirement.
type SimulatedScheduler struct {
	mu      sync.Mutex
	parked  map[threadKey]chan struct{}
	pinCPUs []int
}

// NewSimulatedScheduler returns a Scheduler with no CPU pinning configured.
func NewSimulatedScheduler() *SimulatedScheduler {
	return &SimulatedScheduler{parked: make(map[threadKey]chan struct{})}
}

// NewSimulatedSchedulerWithAffinity returns a Scheduler that best-effort
// pins parked OS threads across cpus in round-robin, mirroring
// Runner.ioLoop's CPUAffinity handling.
func NewSimulatedSchedulerWithAffinity(cpus []int) *SimulatedScheduler {
	return &SimulatedScheduler{parked: make(map[threadKey]chan struct{}), pinCPUs: cpus}
}

func (s *SimulatedScheduler) ParkThread(ctx context.Context, pid wire.PID, tid wire.TID) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if len(s.pinCPUs) > 0 {
		cpu := s.pinCPUs[int(tid)%len(s.pinCPUs)]
		var mask unix.CPUSet
		mask.Set(cpu)
		_ = unix.SchedSetaffinity(0, &mask) // best-effort; affinity failures aren't fatal in simulation
	}

	key := threadKey{pid, tid}
	s.mu.Lock()
	wake, ok := s.parked[key]
	if !ok {
		wake = make(chan struct{}, 1)
		s.parked[key] = wake
	}
	s.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SimulatedScheduler) WakeThread(pid wire.PID, tid wire.TID) {
	key := threadKey{pid, tid}
	s.mu.Lock()
	wake, ok := s.parked[key]
	if !ok {
		wake = make(chan struct{}, 1)
		s.parked[key] = wake
	}
	s.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

// shardSize balances lock overhead against the parallelism concurrent
// remaps can get out of per-shard locking.
const shardSize = 64 * 1024

// SimulatedMemoryManager is an in-process stand-in for the kernel's page
// tables: every process gets a flat byte arena, and Remap/Restore/Forget
// copy between arenas under per-shard locks instead of manipulating real
// page table entries.
type SimulatedMemoryManager struct {
	mu     sync.Mutex
	spaces map[wire.PID]*addressSpace
	next   map[wire.PID]uint32
}

type addressSpace struct {
	mu     sync.Mutex
	shards map[uint32]*sync.RWMutex
	data   map[uint32][]byte
}

// NewSimulatedMemoryManager returns an empty MemoryManager.
func NewSimulatedMemoryManager() *SimulatedMemoryManager {
	return &SimulatedMemoryManager{
		spaces: make(map[wire.PID]*addressSpace),
		next:   make(map[wire.PID]uint32),
	}
}

func (m *SimulatedMemoryManager) spaceFor(pid wire.PID) *addressSpace {
	m.mu.Lock()
	defer m.mu.Unlock()
	as, ok := m.spaces[pid]
	if !ok {
		as = &addressSpace{shards: make(map[uint32]*sync.RWMutex), data: make(map[uint32][]byte)}
		m.spaces[pid] = as
	}
	return as
}

func shardFor(as *addressSpace, addr uint32) *sync.RWMutex {
	shard := addr / shardSize
	as.mu.Lock()
	defer as.mu.Unlock()
	l, ok := as.shards[shard]
	if !ok {
		l = &sync.RWMutex{}
		as.shards[shard] = l
	}
	return l
}

// Seed pre-populates pid's address space at addr with data, for tests and
// demo callers that want to exercise Remap against real bytes.
func (m *SimulatedMemoryManager) Seed(pid wire.PID, addr uint32, data []byte) {
	as := m.spaceFor(pid)
	l := shardFor(as, addr)
	l.Lock()
	defer l.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	as.data[addr] = buf
}

// Read returns a copy of length bytes at addr in pid's address space, for
// inspection by callers and tests.
func (m *SimulatedMemoryManager) Read(pid wire.PID, addr uint32, length uint32) []byte {
	as := m.spaceFor(pid)
	l := shardFor(as, addr)
	l.RLock()
	defer l.RUnlock()
	buf := as.data[addr]
	out := make([]byte, length)
	copy(out, buf)
	return out
}

func (m *SimulatedMemoryManager) nextAddr(pid wire.PID, length uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := m.next[pid]
	if addr == 0 {
		addr = 0x10000
	}
	m.next[pid] = addr + length + shardSize
	return addr
}

func (m *SimulatedMemoryManager) Remap(srcPID wire.PID, srcAddr uint32, dstPID wire.PID, length uint32) (uint32, error) {
	srcSpace := m.spaceFor(srcPID)
	srcLock := shardFor(srcSpace, srcAddr)
	srcLock.Lock()
	buf := make([]byte, length)
	copy(buf, srcSpace.data[srcAddr])
	delete(srcSpace.data, srcAddr)
	srcLock.Unlock()

	dstAddr := m.nextAddr(dstPID, length)
	dstSpace := m.spaceFor(dstPID)
	dstLock := shardFor(dstSpace, dstAddr)
	dstLock.Lock()
	dstSpace.data[dstAddr] = buf
	dstLock.Unlock()
	return dstAddr, nil
}

func (m *SimulatedMemoryManager) Restore(dstPID wire.PID, dstAddr uint32, srcPID wire.PID, srcAddr uint32, length uint32) error {
	dstSpace := m.spaceFor(dstPID)
	dstLock := shardFor(dstSpace, dstAddr)
	dstLock.Lock()
	buf := make([]byte, length)
	copy(buf, dstSpace.data[dstAddr])
	delete(dstSpace.data, dstAddr)
	dstLock.Unlock()

	srcSpace := m.spaceFor(srcPID)
	srcLock := shardFor(srcSpace, srcAddr)
	srcLock.Lock()
	srcSpace.data[srcAddr] = buf
	srcLock.Unlock()
	return nil
}

func (m *SimulatedMemoryManager) Forget(dstPID wire.PID, dstAddr uint32, length uint32) error {
	dstSpace := m.spaceFor(dstPID)
	dstLock := shardFor(dstSpace, dstAddr)
	dstLock.Lock()
	defer dstLock.Unlock()
	delete(dstSpace.data, dstAddr)
	return nil
}

// SimulatedTimerHost wraps time.AfterFunc for internal/ticktimer.
type SimulatedTimerHost struct {
	start time.Time
}

// NewSimulatedTimerHost returns a TimerHost whose NowMs is relative to its
// own creation time.
func NewSimulatedTimerHost() *SimulatedTimerHost {
	return &SimulatedTimerHost{start: time.Now()}
}

func (t *SimulatedTimerHost) NowMs() int64 {
	return time.Since(t.start).Milliseconds()
}

func (t *SimulatedTimerHost) AfterMs(delayMs int64, fn func()) {
	time.AfterFunc(time.Duration(delayMs)*time.Millisecond, fn)
}

// compile-time interface assertions
var (
	_ Scheduler     = (*SimulatedScheduler)(nil)
	_ MemoryManager = (*SimulatedMemoryManager)(nil)
	_ TimerHost     = (*SimulatedTimerHost)(nil)
)
