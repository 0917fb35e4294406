// Package registry implements the sender identity codec and the kernel's
// global server table: a mutex-guarded table mapping a minted ID to a live
// per-resource object, with owner bookkeeping.
package registry

import (
	"crypto/rand"
	"sync"

	"github.com/betrusted-io/xous-kernel-ipc/internal/server"
	"github.com/betrusted-io/xous-kernel-ipc/internal/wire"
)

// ServerID is the random 128-bit name a server registers under. Connect()
// resolves a ServerID to the dense wire.ServerIndex the codec and queues
// actually operate on.
type ServerID [16]byte

// NewServerID mints a random 128-bit identifier. No ecosystem
// UUID/random-ID library appears as used code anywhere in the retrieved
// examples, so this uses crypto/rand directly, matching the IDs' only
// requirement: collision resistance, not any particular textual format.
func NewServerID() ServerID {
	var id ServerID
	if _, err := rand.Read(id[:]); err != nil {
		panic("registry: failed to read random bytes: " + err.Error())
	}
	return id
}

const MaxServers = 256

// Registry is the kernel's global server table: a dense array of live
// servers indexed by wire.ServerIndex, plus the maps needed to resolve a
// published ServerID to its index and to find every server owned by a
// given process (for TerminateProcess fan-out).
type Registry struct {
	mu sync.Mutex

	servers [MaxServers]*server.Server
	ids     [MaxServers]ServerID
	byID    map[ServerID]wire.ServerIndex
	byPID   map[wire.PID]map[wire.ServerIndex]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:  make(map[ServerID]wire.ServerIndex),
		byPID: make(map[wire.PID]map[wire.ServerIndex]struct{}),
	}
}

// CreateServer allocates the first free index and registers a new server
// owned by pid under the given name, mirroring Controller.AddDevice's
// first-free-slot scan over a fixed-size table.
func (r *Registry) CreateServer(pid wire.PID, id ServerID) (wire.ServerIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return 0, ErrAlreadyRegistered
	}

	for i := 0; i < MaxServers; i++ {
		if r.servers[i] != nil {
			continue
		}
		idx := wire.ServerIndex(i)
		r.servers[i] = server.New(pid)
		r.ids[i] = id
		r.byID[id] = idx
		if r.byPID[pid] == nil {
			r.byPID[pid] = make(map[wire.ServerIndex]struct{})
		}
		r.byPID[pid][idx] = struct{}{}
		return idx, nil
	}
	return 0, ErrTableFull
}

// Connect resolves a published ServerID to the live index a sender encodes
// into its SenderHandle.
func (r *Registry) Connect(id ServerID) (wire.ServerIndex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	return idx, ok
}

// Lookup returns the live Server at idx, if any.
func (r *Registry) Lookup(idx wire.ServerIndex) (*server.Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(idx) >= MaxServers || r.servers[idx] == nil {
		return nil, false
	}
	return r.servers[idx], true
}

// DestroyServer tears down and deregisters the server at idx.
func (r *Registry) DestroyServer(idx wire.ServerIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(idx) >= MaxServers || r.servers[idx] == nil {
		return
	}
	s := r.servers[idx]
	s.Destroy()
	s.Release()
	delete(r.byID, r.ids[idx])
	if owned := r.byPID[s.PID()]; owned != nil {
		delete(owned, idx)
		if len(owned) == 0 {
			delete(r.byPID, s.PID())
		}
	}
	r.servers[idx] = nil
	r.ids[idx] = ServerID{}
}

// ServersOwnedBy returns the indexes of every server owned by pid, for
// TerminateProcess to destroy in one pass.
func (r *Registry) ServersOwnedBy(pid wire.PID) []wire.ServerIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := r.byPID[pid]
	out := make([]wire.ServerIndex, 0, len(owned))
	for idx := range owned {
		out = append(out, idx)
	}
	return out
}

// ForEachServer invokes fn for every currently registered server, in index
// order. fn must not call back into the Registry.
func (r *Registry) ForEachServer(fn func(wire.ServerIndex, *server.Server)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.servers {
		if s != nil {
			fn(wire.ServerIndex(i), s)
		}
	}
}
