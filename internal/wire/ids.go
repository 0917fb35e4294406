// Package wire defines the fixed-size on-slot record layout shared by the
// Incoming Queue and Outgoing Queue, and the small integer identifier types
// that flow through every layer above it.
package wire

// PID names a process. Zero means "unknown" — used transiently before the
// kernel has filled in a sender's PID.
type PID uint8

// TID names a thread within a process.
type TID uint8

// ServerIndex is the dense index of a Server within the kernel's server
// table. It is encoded into every SenderHandle issued against that server.
type ServerIndex uint8

// SlotIndex names one cell of a server's queue arrays. Stable for the
// lifetime of a single in-flight message.
type SlotIndex uint16
