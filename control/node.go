// Package control is the central context struct wiring every leaf
// component (peer registry, channel records, subprocess supervisor,
// funding watcher, close coordinator) into the peer/channel control
// plane's actual behavior: connect/reconnect orchestration, drop_to_chain,
// and channel_errmsg dispatch. It plays the role the teacher's LitNode
// (qln/lndb.go) plays for its own domain: one struct threaded through
// every operation instead of a process-wide singleton, per the "Global
// node state -> context passing" design note.
package control

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/closecoordinator"
	"github.com/chainlatch/coreld/fundingwatcher"
	"github.com/chainlatch/coreld/hookclient"
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/config"
	"github.com/chainlatch/coreld/internal/eventbus"
	"github.com/chainlatch/coreld/internal/store"
	"github.com/chainlatch/coreld/peer"
	"github.com/chainlatch/coreld/signerclient"
	"github.com/chainlatch/coreld/subprocess"
	"github.com/chainlatch/coreld/transportclient"
)

// Node is the process-wide context. Every RPC handler and every
// collaborator callback receives a *Node instead of reaching for a
// package-level global.
type Node struct {
	log btclog.Logger

	OurID  ids.NodeID
	Config *config.Config

	Registry *peer.Registry
	Store    *store.Store
	Bus      *eventbus.Bus

	Supervisor subprocess.Supervisor
	CloseCoord *closecoordinator.Coordinator
	Funding    *fundingwatcher.Watcher

	Hooks     hookclient.Client
	Signer    signerclient.Client
	Transport transportclient.Client

	Broadcaster Broadcaster
	Wallet      WalletRecorder

	mu              sync.Mutex
	pendingConnects map[ids.NodeID][]chan error

	Metrics *Metrics
}

// New wires a Node from its already-constructed collaborators. Funding
// and CloseCoord are constructed after the Node itself since both take a
// ChannelFailer/PermanentFailer implemented by *Node -- set them with
// AttachFunding/AttachCloseCoord once the Node exists. ourID is this
// node's own public key (used to compute the "direction" read-model
// field); cfg may be nil in tests that never touch getinfo.
func New(log btclog.Logger, registry *peer.Registry, st *store.Store, bus *eventbus.Bus, sup subprocess.Supervisor, hooks hookclient.Client, signer signerclient.Client, transport transportclient.Client, ourID ids.NodeID, cfg *config.Config) *Node {
	return &Node{
		log:             log,
		OurID:           ourID,
		Config:          cfg,
		Registry:        registry,
		Store:           st,
		Bus:             bus,
		Supervisor:      sup,
		Hooks:           hooks,
		Signer:          signer,
		Transport:       transport,
		pendingConnects: map[ids.NodeID][]chan error{},
		Metrics:         NewMetrics(),
	}
}

// Log returns the node's logger, for callers (e.g. rpcsrv) that need to
// pass it through to a component that logs against the same subsystem.
func (n *Node) Log() btclog.Logger { return n.log }

// AttachCloseCoord finishes wiring the close coordinator, which needs a
// PermanentFailer that only the fully-constructed Node can satisfy.
func (n *Node) AttachCloseCoord(coord *closecoordinator.Coordinator) {
	n.CloseCoord = coord
}

// AttachFunding finishes wiring the funding watcher for the same reason.
func (n *Node) AttachFunding(w *fundingwatcher.Watcher) {
	n.Funding = w
}

// findChannel locates a channel and its owning peer by database id,
// scanning every registered peer's committed channel set.
func (n *Node) findChannel(channelDBID uint64) (*channel.Channel, *peer.Peer, error) {
	for _, p := range n.Registry.All() {
		for _, c := range p.Channels() {
			if c.DBID() == channelDBID {
				return c, p, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("no channel with database id %d", channelDBID)
}

// FailTransient tears the channel's worker down (if any) without
// mutating its persisted state; the peer is expected to reconnect and
// resume from where it left off (§4.4, §7 kind 2).
func (n *Node) FailTransient(channelDBID uint64, reason string) error {
	c, _, err := n.findChannel(channelDBID)
	if err != nil {
		return err
	}
	n.log.Infof("channel %d: transient failure: %s", channelDBID, reason)
	c.Billboard().Transient(reason)
	n.Supervisor.Terminate(channelDBID, []byte(reason))
	n.Metrics.TransientFailure.Inc()
	return nil
}

// FailPermanent drives the channel to AWAITING_UNILATERAL and drops to
// chain (§4.4, §7 kind 3). Implements closecoordinator.PermanentFailer
// and fundingwatcher.ChannelFailer.
func (n *Node) FailPermanent(channelDBID uint64, reason string) error {
	c, _, err := n.findChannel(channelDBID)
	if err != nil {
		return err
	}

	n.log.Infof("channel %d: permanent failure: %s", channelDBID, reason)
	c.Billboard().Permanent(reason)
	c.LatchError([]byte(reason))

	if err := c.SetState(channel.StateAwaitingUnilateral); err != nil {
		n.log.Criticalf("channel %d: %v", channelDBID, err)
		return err
	}

	n.Supervisor.Terminate(channelDBID, []byte(reason))
	n.Metrics.PermanentFailure.Inc()

	return n.DropToChain(c, false)
}
