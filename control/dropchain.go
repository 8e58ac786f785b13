package control

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/closecoordinator"
	"github.com/chainlatch/coreld/internal/txutil"
	"github.com/chainlatch/coreld/signerclient"
)

// Broadcaster publishes a transaction to the network. Broadcast must be
// safe to retry: a duplicate-transaction rejection is not an error worth
// surfacing, since the counterparty may have beaten us to it (§4.5 step 2).
type Broadcaster interface {
	Broadcast(tx *wire.MsgTx) error
}

// WalletRecorder persists a broadcast transaction with its category tag,
// the collaborator drop_to_chain hands the signed transaction to before
// broadcasting.
type WalletRecorder interface {
	RecordTransaction(channelDBID uint64, tx *wire.MsgTx, category string) error
}

// AttachChain wires the broadcaster and wallet recorder drop_to_chain
// needs; both are out-of-scope collaborators (§1).
func (n *Node) AttachChain(b Broadcaster, w WalletRecorder) {
	n.Broadcaster = b
	n.Wallet = w
}

// DropToChain implements §4.5: broadcast the channel's last commitment
// (or negotiated mutual close) transaction, unless the counterparty has
// already proved a later state and this isn't a cooperative close, and
// resolve any pending close commands either way.
func (n *Node) DropToChain(c *channel.Channel, cooperative bool) error {
	if fcp := c.FutureCommitPoint(); fcp != nil && !cooperative {
		// Broadcasting our own last commitment here would hand the
		// counterparty a revoked state to punish us with. btclog has no
		// BROKEN level, so Criticalf stands in for that invariant-violation
		// severity rather than signaling an ordinary hard error.
		n.log.Criticalf("channel %d: cannot broadcast our commitment tx: they have a future one", c.DBID())
	} else if err := n.signAndBroadcast(c); err != nil {
		n.log.Errorf("channel %d: drop_to_chain: %v", c.DBID(), err)
	}

	return n.resolveCloseCommands(c, cooperative)
}

func (n *Node) signAndBroadcast(c *channel.Channel) error {
	if n.Signer == nil {
		return fmt.Errorf("no signer configured")
	}

	tx, counterpartySig, kind := c.LastTx()
	if tx == nil {
		return fmt.Errorf("channel has no last_tx to broadcast")
	}

	ours, theirs := c.FundingPubkeys()
	script, swapped, err := txutil.MultisigScript(ours, theirs)
	if err != nil {
		return fmt.Errorf("building multisig script: %w", err)
	}

	reply, err := n.Signer.SignCommitment(signerclient.SignCommitmentRequest{
		PeerID:              c.Peer().ID().String(),
		ChannelDBID:         c.DBID(),
		Tx:                  tx,
		RemoteFundingPubkey: theirs,
		FundingSats:         c.Funding().AmountSat,
	})
	if err != nil {
		return fmt.Errorf("signing commitment: %w", err)
	}

	tx.TxIn[0].Witness = txutil.AssembleWitness(script, reply.Signature, counterpartySig, swapped)

	if n.Wallet != nil {
		if err := n.Wallet.RecordTransaction(c.DBID(), tx, kind); err != nil {
			n.log.Errorf("recording channel %d close tx to wallet: %v", c.DBID(), err)
		}
	}

	if n.Broadcaster != nil {
		if err := n.Broadcaster.Broadcast(tx); err != nil {
			n.log.Errorf("broadcasting channel %d close tx: %v", c.DBID(), err)
		}
	}

	txutil.StripWitness(tx)
	return nil
}

func (n *Node) resolveCloseCommands(c *channel.Channel, cooperative bool) error {
	if n.CloseCoord == nil {
		return nil
	}

	outcomeType := "unilateral"
	if cooperative {
		outcomeType = "mutual"
	}

	var txHex, txidStr string
	if tx, _, _ := c.LastTx(); tx != nil {
		h, err := txutil.ToHex(tx)
		if err != nil {
			n.log.Errorf("channel %d: serializing close tx: %v", c.DBID(), err)
		} else {
			txHex = h
		}
		txidStr = txutil.Txid(tx).String()
	}

	n.CloseCoord.Resolve(c.DBID(), closecoordinator.Outcome{
		TxHex: txHex,
		Txid:  txidStr,
		Type:  outcomeType,
	})
	n.Metrics.ChannelsClosed.Inc()
	return nil
}
