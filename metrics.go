package xous

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing: the call latencies
// a message-passing kernel cares about (blocked-sender-to-reply,
// parked-receiver-to-delivery) span the same rough range as block I/O
// latencies.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for a Kernel: Send, Receive,
// ReturnScalar/ReturnMemory (folded into one "return" counter family),
// CreateServer/DestroyServer, and TerminateProcess.
type Metrics struct {
	// Message-passing operation counters
	SendOps    atomic.Uint64 // Total Send calls
	ReceiveOps atomic.Uint64 // Total Receive calls
	ReturnOps  atomic.Uint64 // Total ReturnScalar + ReturnMemory calls

	// Per-kind send counters, one per message variant
	ScalarSends         atomic.Uint64
	BlockingScalarSends atomic.Uint64
	MoveSends           atomic.Uint64
	BorrowSends         atomic.Uint64
	MutableBorrowSends  atomic.Uint64

	// Error counters
	SendErrors    atomic.Uint64
	ReceiveErrors atomic.Uint64
	ReturnErrors  atomic.Uint64

	// Memory loan bytes moved via Remap/Restore (Move/Borrow/MutableBorrow)
	BytesMoved atomic.Uint64

	// Server lifecycle
	ServersCreated      atomic.Uint64
	ServersDestroyed    atomic.Uint64
	ProcessesTerminated atomic.Uint64
	ProcessesSpawned    atomic.Uint64

	// Queue depth statistics, sampled by the caller via RecordQueueDepth
	// whenever it has a slot-occupancy count worth recording (e.g. before a
	// Send, to watch for a server's queue trending toward full).
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts)
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Kernel lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSend records a completed Send call of the given kind.
func (m *Metrics) RecordSend(kind MessageKind, latencyNs uint64, success bool) {
	m.SendOps.Add(1)
	switch kind {
	case KindScalar:
		m.ScalarSends.Add(1)
	case KindBlockingScalar:
		m.BlockingScalarSends.Add(1)
	case KindMove:
		m.MoveSends.Add(1)
	case KindBorrow:
		m.BorrowSends.Add(1)
	case KindMutableBorrow:
		m.MutableBorrowSends.Add(1)
	}
	if !success {
		m.SendErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordReceive records a completed Receive call.
func (m *Metrics) RecordReceive(latencyNs uint64, success bool) {
	m.ReceiveOps.Add(1)
	if !success {
		m.ReceiveErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordReturn records a completed ReturnScalar or ReturnMemory call.
func (m *Metrics) RecordReturn(latencyNs uint64, success bool) {
	m.ReturnOps.Add(1)
	if !success {
		m.ReturnErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordBytesMoved accumulates bytes copied by a memory loan's Remap or
// Restore.
func (m *Metrics) RecordBytesMoved(bytes uint64) {
	m.BytesMoved.Add(bytes)
}

// RecordServerCreated records a CreateServer call.
func (m *Metrics) RecordServerCreated() {
	m.ServersCreated.Add(1)
}

// RecordServerDestroyed records a DestroyServer call.
func (m *Metrics) RecordServerDestroyed() {
	m.ServersDestroyed.Add(1)
}

// RecordProcessSpawned records a SpawnProcess call.
func (m *Metrics) RecordProcessSpawned() {
	m.ProcessesSpawned.Add(1)
}

// RecordProcessTerminated records a TerminateProcess call.
func (m *Metrics) RecordProcessTerminated() {
	m.ProcessesTerminated.Add(1)
}

// RecordQueueDepth records a sampled server queue depth for statistics.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the kernel as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	SendOps    uint64
	ReceiveOps uint64
	ReturnOps  uint64

	ScalarSends         uint64
	BlockingScalarSends uint64
	MoveSends           uint64
	BorrowSends         uint64
	MutableBorrowSends  uint64

	SendErrors    uint64
	ReceiveErrors uint64
	ReturnErrors  uint64

	BytesMoved uint64

	ServersCreated      uint64
	ServersDestroyed    uint64
	ProcessesSpawned    uint64
	ProcessesTerminated uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps  uint64
	ErrorRate float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		SendOps:             m.SendOps.Load(),
		ReceiveOps:          m.ReceiveOps.Load(),
		ReturnOps:           m.ReturnOps.Load(),
		ScalarSends:         m.ScalarSends.Load(),
		BlockingScalarSends: m.BlockingScalarSends.Load(),
		MoveSends:           m.MoveSends.Load(),
		BorrowSends:         m.BorrowSends.Load(),
		MutableBorrowSends:  m.MutableBorrowSends.Load(),
		SendErrors:          m.SendErrors.Load(),
		ReceiveErrors:       m.ReceiveErrors.Load(),
		ReturnErrors:        m.ReturnErrors.Load(),
		BytesMoved:          m.BytesMoved.Load(),
		ServersCreated:      m.ServersCreated.Load(),
		ServersDestroyed:    m.ServersDestroyed.Load(),
		ProcessesSpawned:    m.ProcessesSpawned.Load(),
		ProcessesTerminated: m.ProcessesTerminated.Load(),
		MaxQueueDepth:       m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.SendOps + snap.ReceiveOps + snap.ReturnOps

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	totalErrors := snap.SendErrors + snap.ReceiveErrors + snap.ReturnErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer allows pluggable metrics collection over a Kernel's operations.
type Observer interface {
	ObserveSend(kind MessageKind, latencyNs uint64, success bool)
	ObserveReceive(latencyNs uint64, success bool)
	ObserveReturn(latencyNs uint64, success bool)
	ObserveBytesMoved(bytes uint64)
	ObserveServerCreated()
	ObserveServerDestroyed()
	ObserveProcessSpawned()
	ObserveProcessTerminated()
}

// NoOpObserver is a no-op Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSend(MessageKind, uint64, bool) {}
func (NoOpObserver) ObserveReceive(uint64, bool)           {}
func (NoOpObserver) ObserveReturn(uint64, bool)            {}
func (NoOpObserver) ObserveBytesMoved(uint64)              {}
func (NoOpObserver) ObserveServerCreated()                 {}
func (NoOpObserver) ObserveServerDestroyed()               {}
func (NoOpObserver) ObserveProcessSpawned()                {}
func (NoOpObserver) ObserveProcessTerminated()             {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSend(kind MessageKind, latencyNs uint64, success bool) {
	o.metrics.RecordSend(kind, latencyNs, success)
}

func (o *MetricsObserver) ObserveReceive(latencyNs uint64, success bool) {
	o.metrics.RecordReceive(latencyNs, success)
}

func (o *MetricsObserver) ObserveReturn(latencyNs uint64, success bool) {
	o.metrics.RecordReturn(latencyNs, success)
}

func (o *MetricsObserver) ObserveBytesMoved(bytes uint64) {
	o.metrics.RecordBytesMoved(bytes)
}

func (o *MetricsObserver) ObserveServerCreated() {
	o.metrics.RecordServerCreated()
}

func (o *MetricsObserver) ObserveServerDestroyed() {
	o.metrics.RecordServerDestroyed()
}

func (o *MetricsObserver) ObserveProcessSpawned() {
	o.metrics.RecordProcessSpawned()
}

func (o *MetricsObserver) ObserveProcessTerminated() {
	o.metrics.RecordProcessTerminated()
}

// Compile-time interface checks
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
