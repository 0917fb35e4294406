package registry

import "errors"

// ErrTableFull is returned by CreateServer when every slot in the global
// server table is occupied.
var ErrTableFull = errors.New("registry: server table full")

// ErrAlreadyRegistered is returned by CreateServer when the ServerID is
// already in use.
var ErrAlreadyRegistered = errors.New("registry: server id already registered")

// ErrNotFound is returned by operations that resolve a ServerID or
// wire.ServerIndex that isn't currently registered.
var ErrNotFound = errors.New("registry: server not found")
