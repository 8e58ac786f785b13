// Package channel holds the Channel record: the persistent, in-memory
// representation of one payment channel and the narrow set of operations
// the control plane uses to drive it through its lifecycle. It is
// grounded on the teacher's qln/lnchannels.go Qchan/HTLC/StatCom
// definitions, reshaped around the state machine and read-model fields
// peer_control.c's json_add_channel actually emits.
package channel

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainlatch/coreld/ids"
)

// Side identifies which party to a channel a given role belongs to.
type Side int

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	if s == SideLocal {
		return "local"
	}
	return "remote"
}

// Params are the per-side channel parameters negotiated at open time.
// Each side's Params constrain what the OTHER side may do, mirroring the
// BOLT#2 channel_reserve/to_self_delay convention.
type Params struct {
	DustLimitSat         uint64
	ChannelReserveSat    uint64
	ToSelfDelay          uint16
	MaxHTLCValueInFlight uint64
	MaxAcceptedHTLCs     uint16
	HTLCMinimumMsat      uint64
}

// Funding describes the channel's funding output.
type Funding struct {
	Outpoint     ids.Outpoint
	AmountSat    uint64
	Funder       Side
	MinimumDepth uint32
}

// PeerHandle is the slice of peer.Peer that channel needs: just enough to
// identify and log against the owning peer, declared locally so this
// package never imports peer and peer can safely import channel.
type PeerHandle interface {
	ID() ids.NodeID
	Logf(format string, args ...interface{})
}

// Channel is one payment channel, owned by exactly one peer at a time.
type Channel struct {
	mu sync.Mutex

	dbID  uint64
	peer  PeerHandle
	state State

	funding Funding
	scid    *ids.ShortChannelID

	ourFundingPubkey   *btcec.PublicKey
	theirFundingPubkey *btcec.PublicKey

	lastTx     *wire.MsgTx
	lastSig    []byte
	lastTxType string

	ourConfig   Params
	theirConfig Params

	ourBalanceMsat uint64
	minBalanceMsat uint64
	maxBalanceMsat uint64

	feeBaseMsat uint32
	feePPM      uint32

	errorToSend       []byte
	futureCommitPoint []byte

	billboard Billboard
	owner     string

	stats Stats
	htlcs []HTLC
}

// New creates a channel in StateOpening, owned by peer.
func New(dbID uint64, peer PeerHandle, funding Funding, ourConfig, theirConfig Params) *Channel {
	return &Channel{
		dbID:        dbID,
		peer:        peer,
		state:       StateOpening,
		funding:     funding,
		ourConfig:   ourConfig,
		theirConfig: theirConfig,
	}
}

func (c *Channel) DBID() uint64     { return c.dbID }
func (c *Channel) Peer() PeerHandle { return c.peer }

func (c *Channel) ID() ids.ChannelID {
	return ids.DeriveChannelID(c.funding.Outpoint)
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState drives the channel from its current state to to, rejecting any
// transition not present in the §4.4 legal-transition table.
func (c *Channel) SetState(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !CanTransition(c.state, to) {
		return fmt.Errorf("channel %s: illegal transition %s -> %s", c.ID(), c.state, to)
	}
	if c.state != to {
		c.billboard.Permanent(fmt.Sprintf("%s -> %s", c.state, to))
	}
	c.state = to
	return nil
}

// SCID returns the channel's short-channel-id, or nil if it has not yet
// been assigned (pre-lockin, or awaiting a reorg-confirmed depth).
func (c *Channel) SCID() *ids.ShortChannelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scid
}

// SetSCID assigns (or reassigns, on reorg) the channel's short-channel-id.
func (c *Channel) SetSCID(scid ids.ShortChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scid = &scid
	c.billboard.Permanent(fmt.Sprintf("funding locked at %s", scid))
}

// ClearSCID reverts to "not yet locked in". fundingwatcher.Depth does not
// call it: a short-channel-id already assigned is kept when a reorg pushes
// the funding transaction below minimum depth again.
func (c *Channel) ClearSCID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scid = nil
}

// Funding returns a copy of the channel's funding parameters.
func (c *Channel) Funding() Funding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.funding
}

// Owner returns the name of the subprocess role currently driving this
// channel, or "" if none is attached.
func (c *Channel) Owner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// SetOwner attaches (or, passed "", detaches) a subprocess role name.
func (c *Channel) SetOwner(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = owner
}

// LatchError stores an error to be replayed to the peer the next time this
// channel's worker reconnects, per §4.3's "latch for redelivery" rule.
func (c *Channel) LatchError(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToSend = msg
}

// PendingError returns the latched error, if any.
func (c *Channel) PendingError() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorToSend
}

// SetFutureCommitPoint records a per-commitment-point the counterparty
// proved belongs to a future, unrevoked state. Once set, a non-cooperative
// drop_to_chain neither signs nor broadcasts lastTx; it only logs the
// condition and still resolves pending close commands (§4.5 safety
// invariant).
func (c *Channel) SetFutureCommitPoint(point []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.futureCommitPoint = point
}

// FutureCommitPoint returns the latched future commitment point, or nil.
func (c *Channel) FutureCommitPoint() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.futureCommitPoint
}

// SetLastTx records the current best broadcastable commitment/close
// transaction, the counterparty's signature over it, and a category tag
// ("commitment", "mutual_close") used in logs and dev-sign-last-tx.
func (c *Channel) SetLastTx(tx *wire.MsgTx, counterpartySig []byte, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTx = tx
	c.lastSig = counterpartySig
	c.lastTxType = kind
}

// LastTx returns the current best transaction, its counterparty signature,
// and its category tag.
func (c *Channel) LastTx() (*wire.MsgTx, []byte, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTx, c.lastSig, c.lastTxType
}

// Billboard exposes the channel's status ring for callers that need to
// append or read it directly (e.g. fundingwatcher, control).
func (c *Channel) Billboard() *Billboard {
	return &c.billboard
}

// Stats returns a copy of the channel's lifetime counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// AddHTLC appends an in-flight HTLC and updates the offered-side stats.
func (c *Channel) AddHTLC(h HTLC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.htlcs = append(c.htlcs, h)
	c.stats.recordOffered(h.Direction, h.AmountMsat)
}

// ResolveHTLC marks the HTLC with the given id fulfilled or failed and
// removes it from the in-flight list.
func (c *Channel) ResolveHTLC(id uint64, fulfilled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, h := range c.htlcs {
		if h.ID != id {
			continue
		}
		if fulfilled {
			c.stats.recordFulfilled(h.Direction, h.AmountMsat)
		}
		c.htlcs = append(c.htlcs[:i], c.htlcs[i+1:]...)
		return
	}
}

// Balances returns the current, minimum-ever, and maximum-ever local
// balance, all in millisatoshi.
func (c *Channel) Balances() (current, min, max uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ourBalanceMsat, c.minBalanceMsat, c.maxBalanceMsat
}

// SetBalance updates the current local balance and widens the
// min/max-ever bounds if needed.
func (c *Channel) SetBalance(msat uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ourBalanceMsat = msat
	if msat < c.minBalanceMsat || c.minBalanceMsat == 0 && c.maxBalanceMsat == 0 {
		c.minBalanceMsat = msat
	}
	if msat > c.maxBalanceMsat {
		c.maxBalanceMsat = msat
	}
}

// SetRoutingFee sets the fee this node charges for payments forwarded
// through the channel.
func (c *Channel) SetRoutingFee(baseMsat uint32, ppm uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeBaseMsat = baseMsat
	c.feePPM = ppm
}

// OurConfig and TheirConfig return the negotiated per-side parameters.
func (c *Channel) OurConfig() Params   { return c.ourConfig }
func (c *Channel) TheirConfig() Params { return c.theirConfig }

// SetFundingPubkeys records the two multisig keys backing the funding
// output, used to rebuild the witness script when broadcasting.
func (c *Channel) SetFundingPubkeys(ours, theirs *btcec.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ourFundingPubkey = ours
	c.theirFundingPubkey = theirs
}

// FundingPubkeys returns the two multisig keys backing the funding
// output.
func (c *Channel) FundingPubkeys() (ours, theirs *btcec.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ourFundingPubkey, c.theirFundingPubkey
}
