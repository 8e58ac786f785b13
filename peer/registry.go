package peer

import (
	"sync"

	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/store"
)

// Registry tracks every Peer this node currently holds in memory, indexed
// both by its public key and by its database row id, mirroring the
// teacher's PeerManager.peerMap but keyed for the persistent-record model
// instead of a live-connection table.
type Registry struct {
	mu     sync.RWMutex
	byID   map[ids.NodeID]*Peer
	byDBID map[uint64]*Peer
	order  []ids.NodeID
	store  *store.Store
}

// NewRegistry creates an empty Registry backed by store for persistence.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{
		byID:   map[ids.NodeID]*Peer{},
		byDBID: map[uint64]*Peer{},
		store:  s,
	}
}

// FindByID looks up a peer by its node public key.
func (r *Registry) FindByID(id ids.NodeID) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// FindByDBID looks up a peer by its database row id.
func (r *Registry) FindByDBID(dbID uint64) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byDBID[dbID]
	return p, ok
}

// All returns a snapshot slice of every known peer in insertion order, so
// that repeated listpeers calls with no intervening event return
// byte-identical content (§8) and new peers are always appended rather
// than interleaved at some map-iteration-order position (§4.9).
func (r *Registry) All() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Insert adds a newly created peer to the registry.
func (r *Registry) Insert(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.byID[p.ID()] = p
	r.byDBID[p.DBID()] = p
}

// MaybeDelete drops the peer's in-memory record and its durable row if
// (and only if) it has no committed channels and no uncommitted channel
// in progress. It is safe to call speculatively after every channel
// removal; returns whether the peer was actually deleted.
func (r *Registry) MaybeDelete(id ids.NodeID) (bool, error) {
	r.mu.Lock()
	p, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	if !p.Empty() {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.byID, id)
	delete(r.byDBID, p.DBID())
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		return true, r.store.DeletePeer(p.DBID())
	}
	return true, nil
}
