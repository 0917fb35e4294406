package queue

import "errors"

// ErrQueueFull is returned by Enqueue when a full scan of the slot table
// found no Empty slot.
var ErrQueueFull = errors.New("queue: server queue full")

// ErrBadAddress is returned by TakeWaiting when the caller's supplied
// address/length do not match the address/length recorded at receive time.
var ErrBadAddress = errors.New("queue: address/length mismatch on return")

// ErrNotWaiting is returned by TakeWaiting when the named slot is not
// currently in one of the WaitingReturn* tags.
var ErrNotWaiting = errors.New("queue: slot is not awaiting a return")
