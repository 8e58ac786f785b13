package control

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/subprocess"
)

// HandleClosingReport drives the cooperative-close arm of the channel
// lifecycle (§4.4 SHUTTING_DOWN -> CLOSING_SIGEXCHANGE -> CLOSING_COMPLETE,
// §4.6 "mutual" outcome). It is the closing worker's counterpart to
// HandleChannelErrMsg: where a worker terminating with a protocol error
// drives the failure arm, a worker terminating with a ClosingReport
// drives this one.
//
// A worker report with ShutdownComplete set means the shutdown handshake
// finished and sig-exchange can begin; the core transitions the channel
// and spawns the RoleClosing worker to drive it, handing off the same
// live transport. Otherwise the report carries the negotiated final
// transaction: the core records it, finishes the transition to
// CLOSING_COMPLETE, and calls DropToChain(c, true) to broadcast
// cooperatively and resolve any pending close commands with a "mutual"
// outcome.
func (n *Node) HandleClosingReport(channelDBID uint64, t *subprocess.Transport, report subprocess.ClosingReport) {
	c, _, err := n.findChannel(channelDBID)
	if err != nil {
		n.log.Errorf("closing report for unknown channel %d: %v", channelDBID, err)
		return
	}

	if report.ShutdownComplete {
		if err := c.SetState(channel.StateClosingSigExchange); err != nil {
			n.log.Errorf("channel %d: %v", channelDBID, err)
			return
		}
		if t == nil {
			n.log.Errorf("channel %d: shutdown complete with no transport to hand off", channelDBID)
			return
		}
		if _, err := n.Supervisor.Spawn(subprocess.RoleClosing, channelDBID, *t, n.onWorkerTerminate(channelDBID)); err != nil {
			n.log.Errorf("channel %d: spawning closing worker: %v", channelDBID, err)
		}
		return
	}

	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(report.FinalTxWire)); err != nil {
		n.log.Errorf("channel %d: deserializing negotiated close tx: %v", channelDBID, err)
		return
	}
	c.SetLastTx(tx, report.CounterpartySig, "mutual_close")

	if err := c.SetState(channel.StateClosingComplete); err != nil {
		n.log.Errorf("channel %d: %v", channelDBID, err)
		return
	}

	if err := n.DropToChain(c, true); err != nil {
		n.log.Errorf("channel %d: %v", channelDBID, fmt.Errorf("mutual drop_to_chain: %w", err))
	}
}
