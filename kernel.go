package xous

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betrusted-io/xous-kernel-ipc/internal/hostops"
	"github.com/betrusted-io/xous-kernel-ipc/internal/logging"
	"github.com/betrusted-io/xous-kernel-ipc/internal/queue"
	"github.com/betrusted-io/xous-kernel-ipc/internal/registry"
	"github.com/betrusted-io/xous-kernel-ipc/internal/server"
	"github.com/betrusted-io/xous-kernel-ipc/internal/ticktimer"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// KernelConfig configures a Kernel: the context governing blocking calls,
// plus the logger and metrics observer a caller wants wired in.
type KernelConfig struct {
	// Context governs the lifetime of every blocking call the Kernel makes
	// on a caller's behalf; if nil, context.Background() is used.
	Context context.Context

	Logger   *logging.Logger
	Observer Observer

	// CPUAffinity, if set, lists the CPUs the simulated scheduler pins
	// parked threads to, round-robin by thread ID.
	CPUAffinity []int
}

// Kernel is the public entry point for the IPC system: the root orchestrator
// composing internal/registry's server table with internal/hostops'
// collaborators and internal/ticktimer's sync primitives.
type Kernel struct {
	ctx    context.Context
	cancel context.CancelFunc

	registry  *registry.Registry
	scheduler hostops.Scheduler
	mm        hostops.MemoryManager
	timer     hostops.TimerHost
	executor  hostops.Executor
	sync      *ticktimer.Service

	logger   *logging.Logger
	observer Observer
	metrics  *Metrics

	pendingReplies sync.Map // SenderHandle -> chan replyResult
	nextPID        uint32

	ticktimerPID wire.PID
	ticktimerSID ServerID
}

type replyResult struct {
	msg  queue.WaitingMessage
	args [4]uint32
	err  error
}

// NewKernel constructs a Kernel with simulated host collaborators. Nothing
// here talks to real hardware: Scheduler, MemoryManager and TimerHost are
// all internal/hostops' in-process simulations, swappable for real
// implementations behind the same interfaces once those exist.
func NewKernel(cfg KernelConfig) (*Kernel, error) {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	var observer Observer = &NoOpObserver{}
	metrics := NewMetrics()
	if cfg.Observer != nil {
		observer = cfg.Observer
	} else {
		observer = NewMetricsObserver(metrics)
	}

	var scheduler hostops.Scheduler
	if len(cfg.CPUAffinity) > 0 {
		scheduler = hostops.NewSimulatedSchedulerWithAffinity(cfg.CPUAffinity)
	} else {
		scheduler = hostops.NewSimulatedScheduler()
	}
	timer := hostops.NewSimulatedTimerHost()
	mm := hostops.NewSimulatedMemoryManager()

	k := &Kernel{
		registry:  registry.New(),
		scheduler: scheduler,
		mm:        mm,
		timer:     timer,
		executor:  hostops.NewSimulatedExecutor(),
		logger:    logger,
		observer:  observer,
		metrics:   metrics,
		nextPID:   1,
	}
	k.sync = ticktimer.New(scheduler, timer)
	k.ctx, k.cancel = context.WithCancel(ctx)

	// The ticktimer is a privileged service that exists before any user
	// process: it gets its own PID, registers the first server, and serves
	// the sync-primitive wire protocol from a kernel-owned receive loop.
	k.ticktimerPID = k.SpawnProcess()
	ttSID, err := k.CreateServer(k.ticktimerPID)
	if err != nil {
		k.cancel()
		return nil, err
	}
	k.ticktimerSID = ttSID
	go k.serveTicktimer()

	return k, nil
}

// TicktimerServer returns the ServerID of the built-in ticktimer server, the
// destination for the sync-primitive wire protocol: Scalar and
// BlockingScalar messages whose id is a ticktimer.Opcode. SyncPrimitives
// offers the same operations as direct method calls.
func (k *Kernel) TicktimerServer() ServerID {
	return k.ticktimerSID
}

// serveTicktimer is the built-in ticktimer server's receive loop: it decodes
// each message's id as a ticktimer.Opcode and routes it into the sync
// primitives service. Blocking opcodes run on their own goroutine, so a
// LockMutex that parks its sender does not stall the loop; the reply is
// delivered through the ordinary ReturnScalar path once the operation
// completes. The loop exits when the kernel's context is cancelled.
func (k *Kernel) serveTicktimer() {
	log := k.logger.With("server", "ticktimer")
	for {
		env, err := k.Receive(k.ticktimerPID, 0, k.ticktimerSID)
		if err != nil {
			return
		}
		op := ticktimer.Opcode(env.Message.ID)
		_, _, senderPID := registry.DecodeSenderHandle(env.Sender)

		switch env.Message.Kind {
		case KindScalar:
			if op == ticktimer.OpRecalculateSleep {
				if senderPID == k.ticktimerPID {
					k.sync.RecalculateSleep()
				}
				continue
			}
			if err := k.sync.DispatchScalar(senderPID, op, env.Message.Args[0], env.Message.Args[1]); err != nil {
				log.Warn("dropping scalar message", "op", env.Message.ID, "pid", senderPID)
			}
		case KindBlockingScalar:
			env := env
			go func() {
				ret, err := k.sync.DispatchBlocking(k.ctx, senderPID, env.SenderTID, op, env.Message.Args[0], env.Message.Args[1])
				if err != nil {
					log.Warn("blocking opcode failed", "op", env.Message.ID, "pid", senderPID)
					ret = [4]uint32{}
				}
				_ = k.ReturnScalar(env.Sender, ret)
			}()
		default:
			log.Warn("ignoring non-scalar message", "pid", senderPID)
		}
	}
}

// Close cancels every outstanding blocking call the Kernel is tracking.
func (k *Kernel) Close() {
	k.cancel()
	_ = k.executor.Close()
}

// Metrics returns the kernel's operation metrics.
func (k *Kernel) Metrics() *Metrics {
	return k.metrics
}

// SyncPrimitives returns the Mutex/Condvar service backing the sync
// primitives layer, for callers that want to use them directly rather than
// through raw Send/Receive.
func (k *Kernel) SyncPrimitives() *ticktimer.Service {
	return k.sync
}

// SpawnProcess mints a new PID. There is no real process model here — the
// kernel only needs distinct PIDs to scope servers, sends and terminate
// fan-out.
func (k *Kernel) SpawnProcess() wire.PID {
	k.observer.ObserveProcessSpawned()
	return wire.PID(atomic.AddUint32(&k.nextPID, 1))
}

// CreateServer registers a new server owned by pid under a freshly minted
// ServerID.
func (k *Kernel) CreateServer(pid wire.PID) (ServerID, error) {
	id := registry.NewServerID()
	if _, err := k.registry.CreateServer(pid, id); err != nil {
		return ServerID{}, WrapError("CreateServer", err)
	}
	k.observer.ObserveServerCreated()
	return id, nil
}

// DestroyServer tears down sid. Any thread currently parked in Receive on
// it is not woken; destroying a server out from under live receivers is a
// caller error, not one the kernel recovers from. Senders blocked in Send
// (BlockingScalar/Borrow/MutableBorrow) on sid are a different matter: they
// hold no reference to the server beyond their SenderHandle, so they are
// unblocked here with ServerNotFound rather than left to hang forever.
func (k *Kernel) DestroyServer(sid ServerID) error {
	idx, ok := k.registry.Connect(sid)
	if !ok {
		return NewServerError("DestroyServer", sid, ErrCodeServerNotFound, "no such server")
	}
	k.logger.Debug("destroying server", "server", idx)
	k.unblockPendingSenders(idx)
	k.registry.DestroyServer(idx)
	k.observer.ObserveServerDestroyed()
	return nil
}

// unblockPendingSenders delivers ServerNotFound to every sender currently
// blocked on replyCh for server idx. Deliveries are batched through the
// Executor into one Flush(), rather than writing to each channel inline
// while walking pendingReplies.
func (k *Kernel) unblockPendingSenders(idx wire.ServerIndex) {
	failure := NewError("Send", ErrCodeServerNotFound, "server destroyed while sender was blocked")
	k.pendingReplies.Range(func(key, value any) bool {
		handle := key.(SenderHandle)
		hIdx, _, _ := registry.DecodeSenderHandle(handle)
		if hIdx != idx {
			return true
		}
		ch := value.(chan replyResult)
		k.executor.Prepare(func() {
			select {
			case ch <- replyResult{err: failure}:
			default:
			}
		})
		return true
	})
	_ = k.executor.Flush(k.ctx)
}

// Connect resolves sid to a live server, failing if it no longer exists.
func (k *Kernel) Connect(sid ServerID) error {
	if _, ok := k.registry.Connect(sid); !ok {
		return NewServerError("Connect", sid, ErrCodeServerNotFound, "no such server")
	}
	return nil
}

// Send delivers msg to sid on behalf of (pid, tid). Scalar and Move return
// immediately once queued. BlockingScalar, Borrow and MutableBorrow block
// until the receiver replies or returns the loan, then carry the reply back
// as the returned Message.
func (k *Kernel) Send(pid wire.PID, tid wire.TID, sid ServerID, msg Message) (*Message, error) {
	start := time.Now()
	reply, err := k.send(pid, tid, sid, msg)
	k.observer.ObserveSend(msg.Kind, uint64(time.Since(start).Nanoseconds()), err == nil)
	return reply, err
}

func (k *Kernel) send(pid wire.PID, tid wire.TID, sid ServerID, msg Message) (*Message, error) {
	idx, ok := k.registry.Connect(sid)
	if !ok {
		return nil, NewServerError("Send", sid, ErrCodeServerNotFound, "no such server")
	}
	s, ok := k.registry.Lookup(idx)
	if !ok {
		return nil, NewServerError("Send", sid, ErrCodeServerNotFound, "no such server")
	}

	req := queue.Request{Kind: msg.Kind.toQueueKind(), PID: pid, TID: tid, ID: msg.ID}
	switch msg.Kind {
	case KindScalar, KindBlockingScalar:
		req.Arg1, req.Arg2, req.Arg3, req.Arg4 = msg.Args[0], msg.Args[1], msg.Args[2], msg.Args[3]
	default:
		req.Arg1, req.Arg2, req.Arg3, req.Arg4 = msg.Mem.Addr, msg.Mem.Len, msg.Mem.Offset, msg.Mem.ValidLen
	}

	slot, err := s.QueueMessage(req)
	if err != nil {
		k.logger.Warn("send rejected, queue full", "server", idx, "pid", pid, "tid", tid)
		return nil, WrapError("Send", err)
	}
	k.logger.Debug("queued message", "server", idx, "slot", slot, "pid", pid, "kind", msg.Kind)

	if avail, ok := s.TakeAvailableThread(); ok {
		select {
		case <-k.ctx.Done():
			// Kernel is shutting down: nothing will service a wake, so give
			// the claimed thread back rather than lose track of it.
			s.ReturnAvailableThread(avail)
		default:
			k.scheduler.WakeThread(s.PID(), avail)
		}
	}

	if msg.Kind == KindScalar || msg.Kind == KindMove {
		return nil, nil
	}

	// The receiver may take and answer the message before this thread gets
	// here, so the reply channel is claimed with LoadOrStore: whichever of
	// sender and replier arrives first creates it, and the reply sits
	// buffered until this select collects it. CompareAndDelete keeps a slow
	// sender from deleting an entry a later message in a recycled slot has
	// already replaced.
	handle := registry.EncodeSenderHandle(idx, slot, pid)
	ch, _ := k.pendingReplies.LoadOrStore(handle, make(chan replyResult, 1))
	replyCh := ch.(chan replyResult)
	defer k.pendingReplies.CompareAndDelete(handle, ch)

	select {
	case res := <-replyCh:
		if res.err != nil {
			return nil, WrapError("Send", res.err)
		}
		reply := &Message{Kind: msg.Kind, Args: res.args}
		return reply, nil
	case <-k.ctx.Done():
		return nil, WrapError("Send", k.ctx.Err())
	}
}

// Receive blocks (pid, tid) until a message arrives on sid, remapping
// memory loans into the caller's address space before handing back the
// Envelope.
func (k *Kernel) Receive(pid wire.PID, tid wire.TID, sid ServerID) (*Envelope, error) {
	start := time.Now()
	env, err := k.receive(pid, tid, sid)
	k.observer.ObserveReceive(uint64(time.Since(start).Nanoseconds()), err == nil)
	return env, err
}

func (k *Kernel) receive(pid wire.PID, tid wire.TID, sid ServerID) (*Envelope, error) {
	idx, ok := k.registry.Connect(sid)
	if !ok {
		return nil, NewServerError("Receive", sid, ErrCodeServerNotFound, "no such server")
	}
	s, ok := k.registry.Lookup(idx)
	if !ok {
		return nil, NewServerError("Receive", sid, ErrCodeServerNotFound, "no such server")
	}

	// Mark the thread ready before checking the queue, not after: if the
	// check ran first, a Send arriving between the check and the mark would
	// see no ready receiver, skip the wakeup, and this thread would then
	// park with a message already sitting in the queue for it.
	for {
		s.ParkThread(tid)
		slot, rec, ok := s.TakeNextMessage()
		if ok {
			s.UnparkThread(tid)
			return k.buildEnvelope(idx, slot, rec)
		}

		if err := k.scheduler.ParkThread(k.ctx, pid, tid); err != nil {
			s.UnparkThread(tid)
			return nil, WrapError("Receive", err)
		}
	}
}

func (k *Kernel) buildEnvelope(idx wire.ServerIndex, slot wire.SlotIndex, rec wire.Record) (*Envelope, error) {
	s, ok := k.registry.Lookup(idx)
	if !ok {
		return nil, NewError("Receive", ErrCodeInternalError, "server vanished mid-receive")
	}

	var msg Message
	switch rec.Tag {
	case wire.TagMemoryBorrowRO, wire.TagMemoryBorrowRW, wire.TagMoveInFlight:
		dstAddr, err := k.mm.Remap(rec.PID, rec.Arg1, s.PID(), rec.Arg2)
		if err != nil {
			return nil, WrapError("Receive", err)
		}
		k.observer.ObserveBytesMoved(uint64(rec.Arg2))
		kind := KindMove
		if rec.Tag != wire.TagMoveInFlight {
			// Borrows carry a return obligation: record the WaitingReturnMemory
			// entry with the receiver-side address the loan landed at, so
			// ReturnMemory can validate the return against it. Moves have no
			// return leg and their slot is already Empty again.
			kind = KindBorrow
			reqKind := queue.KindBorrow
			if rec.Tag == wire.TagMemoryBorrowRW {
				kind = KindMutableBorrow
				reqKind = queue.KindMutableBorrow
			}
			if err := s.QueueResponse(slot, queue.Request{
				Kind: reqKind, PID: rec.PID, TID: rec.TID, ID: rec.ID,
				Arg1: rec.Arg1, Arg2: rec.Arg2, Arg3: rec.Arg3, Arg4: rec.Arg4,
				OrigAddr: dstAddr,
			}); err != nil {
				return nil, WrapError("Receive", err)
			}
		}
		msg = Message{Kind: kind, ID: rec.ID, Mem: MemoryRange{Addr: dstAddr, Len: rec.Arg2, Offset: rec.Arg3, ValidLen: rec.Arg4}}
	case wire.TagBlockingScalarPending:
		msg = Message{Kind: KindBlockingScalar, ID: rec.ID, Args: [4]uint32{rec.Arg1, rec.Arg2, rec.Arg3, rec.Arg4}}
	case wire.TagScalarInFlight:
		msg = Message{Kind: KindScalar, ID: rec.ID, Args: [4]uint32{rec.Arg1, rec.Arg2, rec.Arg3, rec.Arg4}}
	default:
		return nil, NewError("Receive", ErrCodeInternalError, "unexpected record tag")
	}

	handle := registry.EncodeSenderHandle(idx, slot, rec.PID)
	return &Envelope{Sender: handle, SenderTID: rec.TID, Message: msg}, nil
}

// ReturnScalar replies to a BlockingScalar message, waking the sender with
// the four result words.
func (k *Kernel) ReturnScalar(handle SenderHandle, args [4]uint32) error {
	start := time.Now()
	err := k.returnScalar(handle, args)
	k.observer.ObserveReturn(uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

func (k *Kernel) returnScalar(handle SenderHandle, args [4]uint32) error {
	idx, slot, _ := registry.DecodeSenderHandle(handle)
	s, ok := k.registry.Lookup(idx)
	if !ok {
		return NewError("ReturnScalar", ErrCodeServerNotFound, "server no longer registered")
	}

	msg, err := s.TakeWaitingMessage(slot, 0, 0)
	if err != nil {
		return WrapError("ReturnScalar", err)
	}
	k.deliverReply(handle, msg, args)
	return nil
}

// ReturnMemory completes a Borrow/MutableBorrow loan: addr/len must match
// what the receiver was handed by Receive. Terminated loans are forgotten
// instead of restored.
func (k *Kernel) ReturnMemory(handle SenderHandle, receiverPID wire.PID, addr, length uint32) error {
	start := time.Now()
	err := k.returnMemory(handle, receiverPID, addr, length)
	k.observer.ObserveReturn(uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

func (k *Kernel) returnMemory(handle SenderHandle, receiverPID wire.PID, addr, length uint32) error {
	idx, slot, _ := registry.DecodeSenderHandle(handle)
	s, ok := k.registry.Lookup(idx)
	if !ok {
		return NewError("ReturnMemory", ErrCodeServerNotFound, "server no longer registered")
	}

	msg, err := s.TakeWaitingMessage(slot, addr, length)
	if err != nil {
		return WrapError("ReturnMemory", err)
	}

	switch msg.Kind {
	case queue.WaitingForgetMemory:
		k.logger.Warn("sender terminated mid-loan, forgetting pages", "pid", msg.PID, "len", msg.Len)
		if err := k.mm.Forget(receiverPID, msg.ServerAddr, msg.Len); err != nil {
			return WrapError("ReturnMemory", err)
		}
	case queue.WaitingBorrowedMemory:
		if err := k.mm.Restore(receiverPID, msg.ServerAddr, msg.PID, msg.ClientAddr, msg.Len); err != nil {
			return WrapError("ReturnMemory", err)
		}
		k.observer.ObserveBytesMoved(msg.Len)
	}
	k.deliverReply(handle, msg, [4]uint32{})
	return nil
}

// deliverReply hands the reply payload to the sender's blocked Send call.
// The sender rendezvous is a plain Go channel rather than a
// hostops.Scheduler park/wake pair: Send never parks through the
// scheduler, so there is nothing there to wake. LoadOrStore mirrors send():
// a reply that outruns the sender's own channel registration parks the
// result in the buffer for the sender to collect when it catches up.
func (k *Kernel) deliverReply(handle SenderHandle, msg queue.WaitingMessage, args [4]uint32) {
	v, _ := k.pendingReplies.LoadOrStore(handle, make(chan replyResult, 1))
	v.(chan replyResult) <- replyResult{msg: msg, args: args}
}

// TerminateProcess discards pid's in-flight messages on every server (so
// receivers that already took them still get a deliverable, now-terminated
// record), destroys every server pid owns, and drops pid's sync-primitive
// state.
func (k *Kernel) TerminateProcess(pid wire.PID) {
	k.logger.Warn("terminating process, rewriting its in-flight messages", "pid", pid)
	k.registry.ForEachServer(func(_ wire.ServerIndex, s *server.Server) {
		s.DiscardMessagesForPID(pid)
	})
	for _, idx := range k.registry.ServersOwnedBy(pid) {
		k.unblockPendingSenders(idx)
		k.registry.DestroyServer(idx)
		k.observer.ObserveServerDestroyed()
	}
	k.sync.RemoveProcess(pid)
	k.observer.ObserveProcessTerminated()
}

// SeedMemory places data at addr in pid's simulated address space, so a
// caller has real bytes for Borrow/Move messages to carry. Only meaningful
// against the built-in simulated memory manager.
func (k *Kernel) SeedMemory(pid wire.PID, addr uint32, data []byte) {
	if mm, ok := k.mm.(*hostops.SimulatedMemoryManager); ok {
		mm.Seed(pid, addr, data)
	}
}

// ReadMemory returns a copy of length bytes at addr in pid's simulated
// address space. A range with no mapping reads as zeroes.
func (k *Kernel) ReadMemory(pid wire.PID, addr, length uint32) []byte {
	if mm, ok := k.mm.(*hostops.SimulatedMemoryManager); ok {
		return mm.Read(pid, addr, length)
	}
	return make([]byte, length)
}
