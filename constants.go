package xous

import (
	"github.com/betrusted-io/xous-kernel-ipc/internal/registry"
	"github.com/betrusted-io/xous-kernel-ipc/internal/server"
	"github.com/betrusted-io/xous-kernel-ipc/internal/ticktimer"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// Re-exported limits and wire constants a caller of the public API may need
// to reason about capacity or build its own opcode tables against.
const (
	// MaxServers bounds how many servers can be registered at once.
	MaxServers = registry.MaxServers

	// MaxReadyThreads bounds how many threads can be parked in Receive on a
	// single server at once.
	MaxReadyThreads = server.MaxReadyThreads

	// PageSize is the size in bytes of one server's backing queue page.
	PageSize = wire.PageSize

	// RecordSize is the size in bytes of one queue slot record.
	RecordSize = wire.RecordSize

	// SlotsPerPage is the number of in-flight messages one server's queue
	// can hold at once.
	SlotsPerPage = wire.SlotsPerPage

	// TicktimerProtocolVersion is the wire protocol version the built-in
	// ticktimer server reports from GetVersion.
	TicktimerProtocolVersion = ticktimer.ProtocolVersion
)
