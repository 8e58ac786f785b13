package control

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/closecoordinator"
	"github.com/chainlatch/coreld/peer"
	"github.com/chainlatch/coreld/subprocess"
)

func testChannelShuttingDown(t *testing.T, p *peer.Peer) *channel.Channel {
	t.Helper()
	c := testChannelWithTx(t, p)
	if err := c.SetState(channel.StateShuttingDown); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestHandleClosingReportShutdownCompleteSpawnsClosingWorker(t *testing.T) {
	n, registry, sup := testNode(t)
	p := peer.New(testPeerID(1), 1, btclog.Disabled)
	registry.Insert(p)
	c := testChannelShuttingDown(t, p)
	p.CommitChannel(c)

	n.HandleClosingReport(c.DBID(), &subprocess.Transport{}, subprocess.ClosingReport{ShutdownComplete: true})

	if c.State() != channel.StateClosingSigExchange {
		t.Fatalf("expected CLOSING_SIGEXCHANGE, got %s", c.State())
	}
	if len(sup.spawned) != 1 || sup.spawned[0] != c.DBID() {
		t.Fatalf("expected closing worker spawned for channel %d, got %v", c.DBID(), sup.spawned)
	}
}

func TestHandleClosingReportFinalTxResolvesMutualClose(t *testing.T) {
	n, registry, _ := testNode(t)
	n.AttachCloseCoord(closecoordinator.New(btclog.Disabled, n))

	p := peer.New(testPeerID(1), 1, btclog.Disabled)
	registry.Insert(p)
	c := testChannelShuttingDown(t, p)
	if err := c.SetState(channel.StateClosingSigExchange); err != nil {
		t.Fatal(err)
	}
	p.CommitChannel(c)

	bc := &fakeBroadcaster{}
	wal := &fakeWallet{}
	n.AttachChain(bc, wal)

	cmd := n.CloseCoord.Register(c.DBID(), false, time.Minute)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{}})
	tx.AddTxOut(&wire.TxOut{Value: 90000})
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatal(err)
	}

	n.HandleClosingReport(c.DBID(), nil, subprocess.ClosingReport{
		FinalTxWire:     buf.Bytes(),
		CounterpartySig: []byte{9, 9, 9},
	})

	if c.State() != channel.StateClosingComplete {
		t.Fatalf("expected CLOSING_COMPLETE, got %s", c.State())
	}
	if len(bc.broadcast) != 1 {
		t.Fatalf("expected cooperative close tx broadcast, got %d", len(bc.broadcast))
	}

	select {
	case res := <-cmd.Result():
		if res.Err != nil {
			t.Fatalf("unexpected error resolving close command: %v", res.Err)
		}
		if res.Outcome.Type != "mutual" {
			t.Fatalf("expected mutual outcome, got %q", res.Outcome.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the close command to resolve")
	}
}
