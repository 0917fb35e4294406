package registry

import "github.com/betrusted-io/xous-kernel-ipc/internal/wire"

// SenderHandle is the opaque identifier a receiver uses to reply to or
// return memory to a blocked sender. Layout:
// bits [31:24]=pid, [23:16]=server-index, [15:0]=slot-index.
type SenderHandle uint32

// EncodeSenderHandle packs a (server, slot, pid) triple into a SenderHandle.
// Decode is total and never fails. The component types already bound the
// valid range, so there is no separate out-of-range case to reject.
func EncodeSenderHandle(serverIndex wire.ServerIndex, slotIndex wire.SlotIndex, pid wire.PID) SenderHandle {
	return SenderHandle(uint32(pid)<<24 | uint32(serverIndex)<<16 | uint32(slotIndex))
}

// DecodeSenderHandle unpacks a SenderHandle. Always succeeds.
func DecodeSenderHandle(h SenderHandle) (serverIndex wire.ServerIndex, slotIndex wire.SlotIndex, pid wire.PID) {
	pid = wire.PID(h >> 24)
	serverIndex = wire.ServerIndex(h >> 16)
	slotIndex = wire.SlotIndex(h & 0xFFFF)
	return
}
