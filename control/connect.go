package control

import (
	"encoding/hex"
	"fmt"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/hookclient"
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/store"
	"github.com/chainlatch/coreld/peer"
	"github.com/chainlatch/coreld/subprocess"
	"github.com/chainlatch/coreld/transportclient"
)

// RegisterConnect returns a channel that receives a single nil value once
// peerID next completes a connection. Nothing in coreld delivers an error
// on it when dialing fails, and no RPC handler registers a waiter.
func (n *Node) RegisterConnect(peerID ids.NodeID) <-chan error {
	c := make(chan error, 1)
	n.mu.Lock()
	n.pendingConnects[peerID] = append(n.pendingConnects[peerID], c)
	n.mu.Unlock()
	return c
}

// completeConnects resolves and clears every pending connect waiter for
// peerID (§4.8 step 1).
func (n *Node) completeConnects(peerID ids.NodeID, err error) {
	n.mu.Lock()
	waiters := n.pendingConnects[peerID]
	delete(n.pendingConnects, peerID)
	n.mu.Unlock()

	for _, w := range waiters {
		w <- err
		close(w)
	}
}

// activeChannel returns the one channel, if any, this peer has for
// ongoing protocol purposes -- the repository's "at most one active
// channel per peer for routing purposes" invariant.
func activeChannel(p *peer.Peer) *channel.Channel {
	for _, c := range p.Channels() {
		return c
	}
	return nil
}

// HandlePeerConnected implements §4.8: the connect/reconnect orchestrator
// invoked every time connectd reports an established connection.
func (n *Node) HandlePeerConnected(pc transportclient.PeerConnected) error {
	n.completeConnects(pc.ID, nil)

	p, existed := n.Registry.FindByID(pc.ID)
	if !existed {
		dbID, err := n.Store.NextDBID()
		if err != nil {
			return fmt.Errorf("allocating peer id: %w", err)
		}
		p = peer.New(pc.ID, dbID, n.log)
		n.Registry.Insert(p)
		if err := n.Store.SavePeer(store.PeerRecord{DBID: dbID, NodeID: pc.ID.String(), LastAddr: pc.Addr}); err != nil {
			n.log.Errorf("persisting new peer %s: %v", pc.ID, err)
		}
		n.Metrics.Peers.Set(float64(len(n.Registry.All())))
	}
	p.SetLastAddr(pc.Addr)
	p.UpdateFeatures(peer.Features(pc.GlobalFeatures), peer.Features(pc.LocalFeatures))

	c := activeChannel(p)

	verdict, err := n.Hooks.PeerConnected(hookclient.PeerConnectedPayload{
		Peer: hookclient.PeerInfo{
			ID:             pc.ID.String(),
			Addr:           pc.Addr,
			GlobalFeatures: hex.EncodeToString(pc.GlobalFeatures),
			LocalFeatures:  hex.EncodeToString(pc.LocalFeatures),
		},
	})
	if err != nil {
		return fmt.Errorf("calling peer_connected hook: %w", err)
	}

	switch verdict.Result {
	case hookclient.VerdictContinue:
		// fall through to dispatch below.
	case hookclient.VerdictDisconnect:
		msg := []byte(verdict.ErrorMessage)
		return n.sendRawErrorAndClose(pc.Transport, msg)
	default:
		n.log.Criticalf("peer_connected hook returned an invalid verdict for %s: %+v", pc.ID, verdict)
		return fmt.Errorf("fatal: peer_connected hook returned an invalid verdict")
	}

	n.Bus.Publish(ConnectEvent{PeerID: pc.ID, Addr: pc.Addr})

	if c == nil {
		// No channel exists yet, so there is no channel database id to key
		// the worker by; the peer's own id is used instead, since a peer
		// can only have one opening negotiation in flight at a time.
		_, err := n.Supervisor.Spawn(subprocess.RoleOpening, p.DBID(), pc.Transport, nil)
		return err
	}

	if pending := c.PendingError(); pending != nil {
		return n.sendChannelError(pc.Transport, c.ID(), pending)
	}

	switch c.State() {
	case channel.StateAwaitingLockin, channel.StateNormal, channel.StateShuttingDown:
		_, err := n.Supervisor.Spawn(subprocess.RoleChannel, c.DBID(), pc.Transport, n.onWorkerTerminate(c.DBID()))
		return err
	case channel.StateClosingSigExchange:
		_, err := n.Supervisor.Spawn(subprocess.RoleClosing, c.DBID(), pc.Transport, n.onWorkerTerminate(c.DBID()))
		return err
	case channel.StateAwaitingUnilateral:
		return n.sendChannelError(pc.Transport, c.ID(), []byte("Awaiting unilateral close"))
	default:
		// ONCHAIN, FUNDING_SPEND_SEEN, CLOSING_COMPLETE: impossible invariant.
		n.log.Criticalf("channel %d: peer_connected while in terminal state %s", c.DBID(), c.State())
		return fmt.Errorf("fatal: channel %d reconnected in terminal state %s", c.DBID(), c.State())
	}
}

// sendRawErrorAndClose writes a bare protocol error (no channel-id scope)
// to the peer and closes the connection.
func (n *Node) sendRawErrorAndClose(t subprocess.Transport, msg []byte) error {
	if t.PeerConn == nil {
		return nil
	}
	if len(msg) > 0 {
		_, _ = t.PeerConn.Write(msg)
	}
	return t.PeerConn.Close()
}

// sendChannelError writes a protocol error scoped to channelID and closes
// the connection without spawning any worker.
func (n *Node) sendChannelError(t subprocess.Transport, channelID ids.ChannelID, msg []byte) error {
	if t.PeerConn == nil {
		return nil
	}
	frame := append(channelID[:], msg...)
	_, _ = t.PeerConn.Write(frame)
	return t.PeerConn.Close()
}

// onWorkerTerminate builds the termination callback passed to Spawn,
// routing the resulting ErrMsg through channel_errmsg dispatch -- unless
// the worker terminated carrying a closing report, in which case it is
// the cooperative-close arm (§4.4, §4.6) rather than a failure, and is
// routed to HandleClosingReport instead.
func (n *Node) onWorkerTerminate(channelDBID uint64) func(subprocess.ErrMsg) {
	return func(em subprocess.ErrMsg) {
		if em.Closing != nil {
			n.HandleClosingReport(channelDBID, em.Transport, *em.Closing)
			return
		}
		n.HandleChannelErrMsg(em)
	}
}

// HandleChannelErrMsg implements channel_errmsg (§4.3, §7): a worker's
// termination is either transient (no transport: crash/disconnect) or
// permanent (a transport handle means a protocol error was reported).
//
// Known gap (§9 open question): an "all-channels" error (channel_id==0)
// should close the whole connection rather than fail just this channel;
// that disposition is not modeled here and every errmsg is treated as
// scoped to its own channel, matching the upstream FIXME this was
// distilled from.
func (n *Node) HandleChannelErrMsg(em subprocess.ErrMsg) {
	c, _, err := n.findChannel(em.ChannelDBID)
	if err != nil {
		n.log.Errorf("channel_errmsg for unknown channel %d: %v", em.ChannelDBID, err)
		return
	}

	if em.Transport == nil {
		if err := n.FailTransient(em.ChannelDBID, string(em.Message)); err != nil {
			n.log.Errorf("channel %d: %v", em.ChannelDBID, err)
		}
		return
	}

	if len(em.Message) > 0 && c.PendingError() == nil {
		c.LatchError(em.Message)
	}

	n.Bus.Publish(DisconnectEvent{PeerID: c.Peer().ID()})

	direction := "received"
	if len(em.Message) > 0 {
		direction = "sent"
	}
	reason := fmt.Sprintf("%s: %s error: %s", c.Owner(), direction, string(em.Message))
	if err := n.FailPermanent(em.ChannelDBID, reason); err != nil {
		n.log.Errorf("channel %d: %v", em.ChannelDBID, err)
	}
}
