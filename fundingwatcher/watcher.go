// Package fundingwatcher implements the pair of chain-event callbacks
// registered against a channel's funding outpoint: confirmation depth and
// spend (§4.7). It is grounded on the depth-tracking and short-channel-id
// assignment logic in peer_control.c's funding_depth_cb, re-expressed
// against this repository's channel.Channel type instead of a raw
// database row.
package fundingwatcher

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/ids"
)

// AnnounceMinDepth is the depth at which the watcher stops tracking a
// channel entirely, deferring to the gossip layer for any further
// announcement bookkeeping.
const AnnounceMinDepth = 6

// WatchResult tells the chain watcher whether to keep calling Depth for
// this outpoint.
type WatchResult int

const (
	KeepWatching WatchResult = iota
	DeleteWatch
)

// ChannelFailer is the slice of the control plane the watcher needs to
// fail a channel, declared locally so this package never imports control.
type ChannelFailer interface {
	FailPermanent(channelDBID uint64, reason string) error
	FailTransient(channelDBID uint64, reason string) error
}

// BlockPosition resolves a confirmed transaction to its block height and
// index within that block, the two coordinates a short-channel-id needs
// besides the funding output index.
type BlockPosition interface {
	Locate(txid chainhash.Hash) (blockHeight, txIndex uint32, err error)
}

// WorkerNotifier tells a channel's worker about newly observed depth and
// reports back whether it was ready to act on it.
type WorkerNotifier interface {
	NotifyDepth(channelDBID uint64, depth uint32) (ready bool)
}

// OnChainResolver is the collaborator that takes over once a funding
// output has been spent (§6.5).
type OnChainResolver interface {
	ResolveSpend(channelDBID uint64, tx *wire.MsgTx, blockHeight uint32) error
}

// Watcher drives the depth/spend callbacks for every channel whose
// funding outpoint is currently being tracked.
type Watcher struct {
	log       btclog.Logger
	failer    ChannelFailer
	notifier  WorkerNotifier
	positions BlockPosition
	resolver  OnChainResolver
}

// New creates a Watcher.
func New(log btclog.Logger, failer ChannelFailer, notifier WorkerNotifier, positions BlockPosition, resolver OnChainResolver) *Watcher {
	return &Watcher{
		log:       log,
		failer:    failer,
		notifier:  notifier,
		positions: positions,
		resolver:  resolver,
	}
}

// Depth is the confirmation-depth callback for c's funding outpoint.
func (w *Watcher) Depth(c *channel.Channel, txid chainhash.Hash, depth uint32) WatchResult {
	funding := c.Funding()
	existing := c.SCID()

	needsAssign := depth >= funding.MinimumDepth && existing == nil
	reorgPath := depth > 0 && existing != nil

	if needsAssign || reorgPath {
		height, txIndex, err := w.positions.Locate(txid)
		if err != nil {
			w.log.Errorf("locating funding tx %s for channel %d: %v", txid, c.DBID(), err)
			w.failer.FailPermanent(c.DBID(), fmt.Sprintf("could not locate funding transaction: %v", err))
			return DeleteWatch
		}

		scid, err := ids.NewShortChannelID(height, txIndex, funding.Outpoint.Index)
		if err != nil {
			w.failer.FailPermanent(c.DBID(), fmt.Sprintf("invalid short-channel-id: %v", err))
			return DeleteWatch
		}

		switch {
		case existing == nil:
			c.SetSCID(scid)
		case !existing.Equal(scid):
			c.SetSCID(scid)
			w.failer.FailTransient(c.DBID(), "short-channel-id changed on reorg, restarting worker")
		default:
			// Same id as before: idempotent no-op, no re-save (§8 property 7).
		}
	}

	if depth < funding.MinimumDepth {
		return KeepWatching
	}

	if ready := w.notifier.NotifyDepth(c.DBID(), depth); !ready {
		return KeepWatching
	}

	if depth >= AnnounceMinDepth {
		return DeleteWatch
	}
	return KeepWatching
}

// Spend is the funding-outpoint-spent callback (§6.5): it appends the
// billboard's on-chain-init marker and hands off to the resolver worker.
func (w *Watcher) Spend(c *channel.Channel, tx *wire.MsgTx, blockHeight uint32) {
	c.Billboard().Permanent("ON-CHAIN INIT")
	if err := w.resolver.ResolveSpend(c.DBID(), tx, blockHeight); err != nil {
		w.log.Errorf("resolving on-chain spend for channel %d: %v", c.DBID(), err)
	}
}
