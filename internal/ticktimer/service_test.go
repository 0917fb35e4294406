package ticktimer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/betrusted-io/xous-kernel-ipc/internal/hostops"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

func newService() *Service {
	return New(hostops.NewSimulatedScheduler(), hostops.NewSimulatedTimerHost())
}

func TestLockMutexUncontended(t *testing.T) {
	s := newService()
	err := s.LockMutex(context.Background(), 1, 1, 100)
	require.NoError(t, err)
	s.UnlockMutex(1, 100)
}

func TestLockMutexHandsOffToWaiter(t *testing.T) {
	s := newService()
	require.NoError(t, s.LockMutex(context.Background(), 1, 1, 1))

	acquired := make(chan struct{})
	go func() {
		_ = s.LockMutex(context.Background(), 1, 2, 1)
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second thread acquired an already-locked mutex")
	default:
	}

	s.UnlockMutex(1, 1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired mutex after unlock")
	}
}

func TestNotifyBeforeWaitIsCredited(t *testing.T) {
	s := newService()
	s.NotifyCondition(1, 5, 1)

	type result struct {
		timedOut bool
		err      error
	}
	done := make(chan result, 1)
	go func() {
		timedOut, err := s.WaitForCondition(context.Background(), 1, 1, 5, 0)
		done <- result{timedOut, err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.False(t, r.timedOut)
	case <-time.After(time.Second):
		t.Fatal("wait never returned despite an earlier notify credit")
	}
}

func TestNotifyWakesParkedWaiter(t *testing.T) {
	s := newService()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		timedOut, err := s.WaitForCondition(context.Background(), 2, 7, 9, 0)
		require.NoError(t, err)
		require.False(t, timedOut)
	}()

	time.Sleep(20 * time.Millisecond)
	s.NotifyCondition(2, 9, 1)

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("waiter never woke")
	}
}

func TestWaitForConditionTimesOut(t *testing.T) {
	s := newService()
	start := time.Now()
	timedOut, err := s.WaitForCondition(context.Background(), 3, 1, 0xC, 100)
	require.NoError(t, err)
	require.True(t, timedOut)
	elapsed := time.Since(start).Milliseconds()
	require.GreaterOrEqual(t, elapsed, int64(95))
	require.Less(t, elapsed, int64(500))

	// No waiter should remain registered for the condvar: a fresh notify
	// finds nobody to wake, so it is banked as one immediate credit.
	s.NotifyCondition(3, 0xC, 1)
	s.mu.Lock()
	credits := s.immediate[3][0xC]
	s.mu.Unlock()
	require.Equal(t, 1, credits)
}

func TestWaitForConditionNotifyBeforeTimeout(t *testing.T) {
	s := newService()
	done := make(chan bool, 1)
	go func() {
		timedOut, err := s.WaitForCondition(context.Background(), 4, 1, 0xD, 500)
		require.NoError(t, err)
		done <- timedOut
	}()

	time.Sleep(20 * time.Millisecond)
	s.NotifyCondition(4, 0xD, 1)

	select {
	case timedOut := <-done:
		require.False(t, timedOut)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after notify")
	}

	// Give the (withdrawn) timer's deadline time to pass; it must not fire
	// a second, spurious wake.
	time.Sleep(600 * time.Millisecond)
}

func TestRemoveProcessDropsSyncState(t *testing.T) {
	s := newService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.LockMutex(ctx, 5, 1, 9))
	go func() { _, _ = s.WaitForCondition(ctx, 5, 2, 3, 10000) }()
	time.Sleep(20 * time.Millisecond)

	s.mu.Lock()
	waiters := len(s.conds[5][3].waiters)
	s.mu.Unlock()
	require.Equal(t, 1, waiters)

	s.RemoveProcess(5)

	s.mu.Lock()
	_, hasConds := s.conds[5]
	_, hasMutexes := s.mutexes[5]
	_, hasCredits := s.immediate[5]
	heapLen := s.sleepQ.h.Len()
	s.mu.Unlock()
	require.False(t, hasConds)
	require.False(t, hasMutexes)
	require.False(t, hasCredits)
	require.Zero(t, heapLen)
}

func TestSleepMsReturnsAfterDuration(t *testing.T) {
	s := newService()
	start := time.Now()
	require.NoError(t, s.SleepMs(context.Background(), 1, 1, 20))
	require.GreaterOrEqual(t, time.Since(start).Milliseconds(), int64(15))
}

func TestSleepersWithIdenticalDeadlinesAllWake(t *testing.T) {
	s := newService()

	// Same process, same requested deadline: the queue bumps each collision
	// by 1ms and the shared timer walks them all.
	var wg sync.WaitGroup
	for tid := wire.TID(1); tid <= 4; tid++ {
		tid := tid
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.SleepMs(context.Background(), 1, tid, 30))
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every sleeper woke")
	}

	s.mu.Lock()
	heapLen := s.sleepQ.h.Len()
	s.mu.Unlock()
	require.Zero(t, heapLen)
}

func TestRecalculateSleepExpiresDueEntries(t *testing.T) {
	s := newService()

	woke := make(chan struct{})
	go func() {
		_ = s.SleepMs(context.Background(), 1, 1, 5)
		close(woke)
	}()
	time.Sleep(30 * time.Millisecond)

	// Whether the timer callback or this pass gets there first, the due
	// entry expires exactly once and the sleeper is woken.
	s.RecalculateSleep()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("sleeper never woke")
	}
}

func TestDispatchBlockingRoutesOpcodes(t *testing.T) {
	s := newService()

	ret, err := s.DispatchBlocking(context.Background(), 1, 1, OpGetVersion, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(ProtocolVersion), ret[0])

	ret, err = s.DispatchBlocking(context.Background(), 1, 1, OpElapsedMs, 0, 0)
	require.NoError(t, err)
	require.Less(t, ret[0], uint32(10_000))

	ret, err = s.DispatchBlocking(context.Background(), 1, 1, OpSleepMs, 5, 0)
	require.NoError(t, err)
	require.Equal(t, [4]uint32{}, ret)

	_, err = s.DispatchBlocking(context.Background(), 1, 1, OpNotifyCondition, 1, 1)
	require.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestDispatchScalarRoutesOpcodes(t *testing.T) {
	s := newService()

	require.NoError(t, s.DispatchScalar(1, OpNotifyCondition, 0xC, 1))
	s.mu.Lock()
	credits := s.immediate[1][0xC]
	s.mu.Unlock()
	require.Equal(t, 1, credits)

	require.NoError(t, s.DispatchScalar(1, OpUnlockMutex, 7, 0))

	require.ErrorIs(t, s.DispatchScalar(1, OpLockMutex, 7, 0), ErrUnknownOpcode)
	require.ErrorIs(t, s.DispatchScalar(1, OpRecalculateSleep, 0, 0), ErrUnknownOpcode)
}
