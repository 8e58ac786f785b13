// Package peer holds the Peer record and the in-memory Registry that
// tracks every peer this node knows about, independent of whether a
// channel with them is currently open. It is grounded on the teacher's
// lnp2p/peermgr.go PeerManager/Peer pair, reshaped around the spec's
// persistent-peer-with-channel-set model rather than the teacher's
// live-connection-only one.
package peer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/logging"
)

// Features is a peer's advertised BOLT#9 feature bitfield. Kept as a raw
// byte slice; this core doesn't interpret individual bits, it just stores
// and forwards them.
type Features []byte

// Peer is one node this control plane has a relationship with: either a
// currently-connected transport session, a set of open channels, or both.
type Peer struct {
	mu sync.Mutex

	id      ids.NodeID
	dbID    uint64
	lastAddr string

	globalFeatures Features
	localFeatures  Features

	channels    map[ids.ChannelID]*channel.Channel
	uncommitted *channel.Channel

	log *logging.Ring
}

// New creates a Peer record, not yet persisted.
func New(id ids.NodeID, dbID uint64, parentLog btclog.Logger) *Peer {
	return &Peer{
		id:       id,
		dbID:     dbID,
		channels: map[ids.ChannelID]*channel.Channel{},
		log:      logging.NewRing(64*1024, parentLog, btclog.LevelWarn),
	}
}

// ID satisfies channel.PeerHandle.
func (p *Peer) ID() ids.NodeID { return p.id }

// Logf satisfies channel.PeerHandle by appending to this peer's log ring.
func (p *Peer) Logf(format string, args ...interface{}) {
	p.log.Add(btclog.LevelInfo, format, args...)
}

// Log returns the peer's private log ring, e.g. for an RPC that dumps
// per-peer diagnostics.
func (p *Peer) Log() *logging.Ring { return p.log }

func (p *Peer) DBID() uint64 { return p.dbID }

// LastAddr returns the most recently observed network address for this
// peer, or "" if never connected.
func (p *Peer) LastAddr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAddr
}

// SetLastAddr records the network address the peer was most recently seen
// connecting from or to.
func (p *Peer) SetLastAddr(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAddr = addr
}

// Features returns the peer's current global and local feature vectors.
// These are ephemeral (re-learned on every connection), never persisted.
func (p *Peer) Features() (global, local Features) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.globalFeatures, p.localFeatures
}

// UpdateFeatures atomically replaces both feature vectors, e.g. on
// receiving a fresh init message after reconnecting.
func (p *Peer) UpdateFeatures(global, local Features) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.globalFeatures = global
	p.localFeatures = local
}

// Channels returns a snapshot slice of every committed channel this peer
// owns, ordered by channel database id (the order they were stored in).
func (p *Peer) Channels() []*channel.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*channel.Channel, 0, len(p.channels))
	for _, c := range p.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DBID() < out[j].DBID() })
	return out
}

// Channel looks up a committed channel by its channel-id.
func (p *Peer) Channel(id ids.ChannelID) (*channel.Channel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.channels[id]
	return c, ok
}

// CommitChannel moves a channel from uncommitted (or adds it fresh) into
// the peer's durable channel set, keyed by its derived channel-id.
func (p *Peer) CommitChannel(c *channel.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[c.ID()] = c
	if p.uncommitted == c {
		p.uncommitted = nil
	}
}

// RemoveChannel drops a channel from the durable set once it has fully
// resolved on-chain and its record is no longer needed.
func (p *Peer) RemoveChannel(id ids.ChannelID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, id)
}

// Uncommitted returns the channel currently mid-open and not yet in the
// durable set, or nil.
func (p *Peer) Uncommitted() *channel.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uncommitted
}

// SetUncommitted attaches (or, passed nil, clears) the in-progress
// not-yet-committed channel. A peer can have at most one at a time.
func (p *Peer) SetUncommitted(c *channel.Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c != nil && p.uncommitted != nil {
		return fmt.Errorf("peer %s already has an uncommitted channel", p.id)
	}
	p.uncommitted = c
	return nil
}

// Empty reports whether this peer has neither a committed channel nor an
// uncommitted one in progress -- the condition under which its record may
// be dropped entirely (§3 peer deletion invariant).
func (p *Peer) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels) == 0 && p.uncommitted == nil
}
