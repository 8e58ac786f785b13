// Package onchainclient defines the wire contract for the on-chain
// resolver worker (§6.5): the inbound funding-spend event from the chain
// watcher and the outbound delegation to the resolver once the funding
// watcher handles that spend. The resolver itself is out of scope.
package onchainclient

import "github.com/btcsuite/btcd/wire"

// SpendEvent is the inbound notification from the chain watcher when a
// tracked funding outpoint is spent.
type SpendEvent struct {
	ChannelDBID uint64
	Tx          *wire.MsgTx
	BlockHeight uint32
}

// Client delegates a confirmed funding spend to the resolver worker,
// which is responsible for classifying and sweeping the resulting
// commitment/HTLC outputs.
type Client interface {
	ResolveSpend(channelDBID uint64, tx *wire.MsgTx, blockHeight uint32) error
}
