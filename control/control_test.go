package control

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/closecoordinator"
	"github.com/chainlatch/coreld/hookclient"
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/eventbus"
	"github.com/chainlatch/coreld/peer"
	"github.com/chainlatch/coreld/signerclient"
	"github.com/chainlatch/coreld/subprocess"
	"github.com/chainlatch/coreld/transportclient"
)

type fakeSupervisor struct {
	spawned     []uint64
	terminated  []uint64
	protoErrors []uint64
}

func (f *fakeSupervisor) Spawn(role subprocess.Role, channelDBID uint64, t subprocess.Transport, onTerminate func(subprocess.ErrMsg)) (*subprocess.Worker, error) {
	f.spawned = append(f.spawned, channelDBID)
	return &subprocess.Worker{Role: role, ChannelDBID: channelDBID}, nil
}

func (f *fakeSupervisor) Send(channelDBID uint64, payload []byte, cb subprocess.Callback) error {
	return nil
}

func (f *fakeSupervisor) Terminate(channelDBID uint64, errMsg []byte) {
	f.terminated = append(f.terminated, channelDBID)
}

func (f *fakeSupervisor) ReportProtocolError(channelDBID uint64, msg []byte) error {
	f.protoErrors = append(f.protoErrors, channelDBID)
	return nil
}

func (f *fakeSupervisor) ReportShutdownComplete(channelDBID uint64) error {
	return nil
}

func (f *fakeSupervisor) ReportClosingComplete(channelDBID uint64, finalTxWire, counterpartySig []byte) error {
	return nil
}

type fakeSigner struct {
	sig []byte
	err error
}

func (f *fakeSigner) SignCommitment(req signerclient.SignCommitmentRequest) (signerclient.SignCommitmentReply, error) {
	if f.err != nil {
		return signerclient.SignCommitmentReply{}, f.err
	}
	return signerclient.SignCommitmentReply{Signature: f.sig}, nil
}

type fakeHooks struct {
	verdict hookclient.Verdict
	err     error
}

func (f *fakeHooks) PeerConnected(hookclient.PeerConnectedPayload) (hookclient.Verdict, error) {
	return f.verdict, f.err
}

type fakeBroadcaster struct {
	broadcast []*wire.MsgTx
	err       error
}

func (f *fakeBroadcaster) Broadcast(tx *wire.MsgTx) error {
	f.broadcast = append(f.broadcast, tx)
	return f.err
}

type fakeWallet struct {
	recorded int
}

func (f *fakeWallet) RecordTransaction(channelDBID uint64, tx *wire.MsgTx, category string) error {
	f.recorded++
	return nil
}

func testNode(t *testing.T) (*Node, *peer.Registry, *fakeSupervisor) {
	t.Helper()
	log := btclog.Disabled
	registry := peer.NewRegistry(nil)
	bus := eventbus.New(log)
	sup := &fakeSupervisor{}

	n := New(log, registry, nil, bus, sup, &fakeHooks{verdict: hookclient.Verdict{Result: hookclient.VerdictContinue}}, &fakeSigner{sig: []byte{1, 2, 3}}, transportclient.Client(nil), testPeerID(0), nil)
	return n, registry, sup
}

func testPeerID(b byte) ids.NodeID {
	var id ids.NodeID
	for i := range id {
		id[i] = b
	}
	return id
}

func testPubkey(t *testing.T, seed byte) *btcec.PublicKey {
	t.Helper()
	var buf [32]byte
	for i := range buf {
		buf[i] = seed
	}
	buf[0] |= 1
	priv, pub := btcec.PrivKeyFromBytes(buf[:])
	_ = priv
	return pub
}

func testChannelWithTx(t *testing.T, p *peer.Peer) *channel.Channel {
	t.Helper()
	c := channel.New(1, p, channel.Funding{AmountSat: 100000}, channel.Params{ChannelReserveSat: 100}, channel.Params{ChannelReserveSat: 100})
	if err := c.SetState(channel.StateAwaitingLockin); err != nil {
		t.Fatal(err)
	}
	if err := c.SetState(channel.StateNormal); err != nil {
		t.Fatal(err)
	}
	c.SetFundingPubkeys(testPubkey(t, 1), testPubkey(t, 2))

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{}})
	tx.AddTxOut(&wire.TxOut{Value: 90000})
	c.SetLastTx(tx, []byte{9, 9, 9}, "commitment")

	return c
}

func TestFailTransientTerminatesWorkerWithoutStateChange(t *testing.T) {
	n, registry, sup := testNode(t)
	p := peer.New(testPeerID(1), 1, btclog.Disabled)
	registry.Insert(p)
	c := testChannelWithTx(t, p)
	p.CommitChannel(c)

	if err := n.FailTransient(c.DBID(), "crash"); err != nil {
		t.Fatal(err)
	}

	if c.State() != channel.StateNormal {
		t.Fatalf("expected state unchanged, got %s", c.State())
	}
	if len(sup.terminated) != 1 || sup.terminated[0] != c.DBID() {
		t.Fatalf("expected worker terminated for channel %d, got %v", c.DBID(), sup.terminated)
	}
}

func TestFailPermanentDrivesToAwaitingUnilateralAndBroadcasts(t *testing.T) {
	n, registry, sup := testNode(t)
	p := peer.New(testPeerID(1), 1, btclog.Disabled)
	registry.Insert(p)
	c := testChannelWithTx(t, p)
	p.CommitChannel(c)

	bc := &fakeBroadcaster{}
	wal := &fakeWallet{}
	n.AttachChain(bc, wal)

	if err := n.FailPermanent(c.DBID(), "protocol violation"); err != nil {
		t.Fatal(err)
	}

	if c.State() != channel.StateAwaitingUnilateral {
		t.Fatalf("expected AWAITING_UNILATERAL, got %s", c.State())
	}
	if len(sup.terminated) != 1 {
		t.Fatalf("expected worker terminated, got %v", sup.terminated)
	}
	if len(bc.broadcast) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(bc.broadcast))
	}
	if wal.recorded != 1 {
		t.Fatalf("expected one wallet record, got %d", wal.recorded)
	}
}

func TestDropToChainSkipsBroadcastButStillResolvesOnFutureCommitPoint(t *testing.T) {
	n, registry, _ := testNode(t)
	p := peer.New(testPeerID(1), 1, btclog.Disabled)
	registry.Insert(p)
	c := testChannelWithTx(t, p)
	p.CommitChannel(c)
	c.SetFutureCommitPoint([]byte{0xaa})

	bc := &fakeBroadcaster{}
	n.AttachChain(bc, nil)
	n.AttachCloseCoord(closecoordinator.New(btclog.Disabled, n))
	cmd := n.CloseCoord.Register(c.DBID(), false, time.Minute)

	if err := n.DropToChain(c, false); err != nil {
		t.Fatal(err)
	}
	if len(bc.broadcast) != 0 {
		t.Fatalf("expected no broadcast when future commit point is latched, got %d", len(bc.broadcast))
	}
	select {
	case res := <-cmd.Result():
		if res.Err != nil {
			t.Fatalf("expected close command to resolve without error, got %v", res.Err)
		}
		if res.Outcome == nil || res.Outcome.Type != "unilateral" {
			t.Fatalf("expected unilateral outcome, got %+v", res.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("close command never resolved")
	}
}

func TestDropToChainSignsAndBroadcastsNormally(t *testing.T) {
	n, registry, _ := testNode(t)
	p := peer.New(testPeerID(1), 1, btclog.Disabled)
	registry.Insert(p)
	c := testChannelWithTx(t, p)
	p.CommitChannel(c)

	bc := &fakeBroadcaster{}
	wal := &fakeWallet{}
	n.AttachChain(bc, wal)

	if err := n.DropToChain(c, true); err != nil {
		t.Fatal(err)
	}
	if len(bc.broadcast) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(bc.broadcast))
	}
	if wal.recorded != 1 {
		t.Fatalf("expected one wallet record, got %d", wal.recorded)
	}

	// signAndBroadcast strips the witness back off the shared lastTx
	// pointer once it's done broadcasting, so a later re-broadcast (e.g.
	// after a reorg) starts clean. bc.broadcast holds the same *wire.MsgTx
	// pointer, so this is observable there too.
	lastTx, _, _ := c.LastTx()
	if len(lastTx.TxIn[0].Witness) != 0 {
		t.Fatalf("expected witness stripped from channel's lastTx after broadcasting")
	}
	if len(bc.broadcast[0].TxIn[0].Witness) != 0 {
		t.Fatalf("expected witness stripped from the broadcast tx pointer too")
	}
}
