// Package hostops defines the kernel's collaborator interfaces — scheduling,
// address-space mapping, timers, and reactor-style batching, the operations
// the queue/server/registry layers delegate to rather than modeling
// themselves — plus in-process simulated implementations so the package is
// runnable standalone. One narrow interface per host-side responsibility,
// never a single monolithic collaborator.
package hostops

import (
	"context"

	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// Scheduler parks and wakes kernel threads. ParkThread blocks a thread
// until it is woken or ctx is cancelled; WakeThread resumes one previously
// parked thread so it can retry taking work.
type Scheduler interface {
	// ParkThread blocks the calling goroutine as pid/tid until WakeThread is
	// called for the same pair or ctx is done.
	ParkThread(ctx context.Context, pid wire.PID, tid wire.TID) error
	// WakeThread resumes a thread previously parked with ParkThread. Waking
	// a thread that isn't parked is a no-op.
	WakeThread(pid wire.PID, tid wire.TID)
}

// MemoryManager remaps memory loans between processes' address spaces and
// reclaims abandoned ones, standing in for the real kernel's page tables.
type MemoryManager interface {
	// Remap maps length bytes starting at srcAddr in the srcPID address
	// space into a fresh range in dstPID's address space and returns the
	// address it landed at there.
	Remap(srcPID wire.PID, srcAddr uint32, dstPID wire.PID, length uint32) (uint32, error)
	// Restore reverses a prior Remap, copying dstAddr's current contents
	// back to srcAddr and releasing the destination mapping.
	Restore(dstPID wire.PID, dstAddr uint32, srcPID wire.PID, srcAddr uint32, length uint32) error
	// Forget releases a destination mapping without copying anything back,
	// used when the original sender has already terminated.
	Forget(dstPID wire.PID, dstAddr uint32, length uint32) error
}

// TimerHost supplies monotonic time and deferred callbacks to
// internal/ticktimer, standing in for the real kernel's hardware timer.
type TimerHost interface {
	NowMs() int64
	AfterMs(delayMs int64, fn func())
}

// Executor batches host-side completions the way an io_uring-backed reactor
// would, with a Prepare/Flush submission-batching shape, even though this
// kernel has no character device of its own to drive through it — see
// DESIGN.md's dependency disposition for giouring.
type Executor interface {
	Prepare(fn func())
	Flush(ctx context.Context) error
	Close() error
}
