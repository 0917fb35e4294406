package xous

import (
	"context"
	"sync"

	"github.com/betrusted-io/xous-kernel-ipc/internal/hostops"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// MockScheduler is a hostops.Scheduler that tracks call counts instead of
// actually parking goroutines, for tests that want to assert a Kernel tried
// to park or wake a given thread without paying for a real blocking call.
// ParkThread returns immediately unless ParkErr is set.
type MockScheduler struct {
	mu sync.Mutex

	ParkErr error

	parkCalls []threadCall
	wakeCalls []threadCall
}

type threadCall struct {
	PID wire.PID
	TID wire.TID
}

func (m *MockScheduler) ParkThread(ctx context.Context, pid wire.PID, tid wire.TID) error {
	m.mu.Lock()
	m.parkCalls = append(m.parkCalls, threadCall{pid, tid})
	err := m.ParkErr
	m.mu.Unlock()
	return err
}

func (m *MockScheduler) WakeThread(pid wire.PID, tid wire.TID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakeCalls = append(m.wakeCalls, threadCall{pid, tid})
}

// ParkCount returns how many times ParkThread has been called.
func (m *MockScheduler) ParkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.parkCalls)
}

// WakeCount returns how many times WakeThread has been called.
func (m *MockScheduler) WakeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.wakeCalls)
}

// WokeUp reports whether WakeThread was ever called for (pid, tid).
func (m *MockScheduler) WokeUp(pid wire.PID, tid wire.TID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.wakeCalls {
		if c.PID == pid && c.TID == tid {
			return true
		}
	}
	return false
}

// MockMemoryManager is a hostops.MemoryManager that records every call
// instead of copying real bytes, for tests that only care whether a Remap,
// Restore or Forget happened, not its payload.
type MockMemoryManager struct {
	mu sync.Mutex

	RemapAddr  uint32
	RemapErr   error
	RestoreErr error
	ForgetErr  error

	remapCalls   int
	restoreCalls int
	forgetCalls  int
}

func (m *MockMemoryManager) Remap(srcPID wire.PID, srcAddr uint32, dstPID wire.PID, length uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remapCalls++
	return m.RemapAddr, m.RemapErr
}

func (m *MockMemoryManager) Restore(dstPID wire.PID, dstAddr uint32, srcPID wire.PID, srcAddr uint32, length uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoreCalls++
	return m.RestoreErr
}

func (m *MockMemoryManager) Forget(dstPID wire.PID, dstAddr uint32, length uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgetCalls++
	return m.ForgetErr
}

// RemapCount, RestoreCount and ForgetCount report how many times each method
// has been called.
func (m *MockMemoryManager) RemapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remapCalls
}

func (m *MockMemoryManager) RestoreCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restoreCalls
}

func (m *MockMemoryManager) ForgetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forgetCalls
}

// MockTimerHost is a hostops.TimerHost with a caller-controlled clock: NowMs
// returns whatever was last set with SetNowMs, and AfterMs records the
// requested callback instead of scheduling it, letting a test fire it
// synchronously whenever it chooses.
type MockTimerHost struct {
	mu  sync.Mutex
	now int64

	scheduled []scheduledCallback
}

type scheduledCallback struct {
	DelayMs int64
	Fn      func()
}

func (m *MockTimerHost) NowMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockTimerHost) SetNowMs(ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = ms
}

func (m *MockTimerHost) AfterMs(delayMs int64, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = append(m.scheduled, scheduledCallback{DelayMs: delayMs, Fn: fn})
}

// FireAll runs every callback registered via AfterMs, in registration order,
// and clears the pending list.
func (m *MockTimerHost) FireAll() {
	m.mu.Lock()
	pending := m.scheduled
	m.scheduled = nil
	m.mu.Unlock()

	for _, c := range pending {
		c.Fn()
	}
}

// PendingCount returns how many callbacks are registered but not yet fired.
func (m *MockTimerHost) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scheduled)
}

// Compile-time interface checks
var (
	_ hostops.Scheduler     = (*MockScheduler)(nil)
	_ hostops.MemoryManager = (*MockMemoryManager)(nil)
	_ hostops.TimerHost     = (*MockTimerHost)(nil)
)
