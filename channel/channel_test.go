package channel

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlatch/coreld/ids"
)

type fakePeer struct {
	id ids.NodeID
}

func (p *fakePeer) ID() ids.NodeID { return p.id }
func (p *fakePeer) Logf(format string, args ...interface{}) {}

func testChannel(t *testing.T) *Channel {
	t.Helper()
	var txid chainhash.Hash
	txid[0] = 1
	funding := Funding{
		Outpoint:  ids.Outpoint{Txid: txid, Index: 0},
		AmountSat: 1_000_000,
		Funder:    SideLocal,
	}
	return New(1, &fakePeer{}, funding, Params{}, Params{})
}

func TestLegalTransitions(t *testing.T) {
	c := testChannel(t)
	if c.State() != StateOpening {
		t.Fail()
	}
	if err := c.SetState(StateAwaitingLockin); err != nil {
		t.Fatal(err)
	}
	if err := c.SetState(StateNormal); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateNormal {
		t.Fail()
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	c := testChannel(t)
	// Opening can't jump straight to Normal.
	if err := c.SetState(StateNormal); err == nil {
		t.Fail()
	}
	if c.State() != StateOpening {
		t.Fail()
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateOnchain, StateFundingSpendSeen, StateClosingComplete} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StateNormal.Terminal() {
		t.Fail()
	}
}

func TestActive(t *testing.T) {
	if !StateNormal.Active() {
		t.Fail()
	}
	if StateOpening.Active() {
		t.Fail()
	}
	if StateAwaitingUnilateral.Active() {
		t.Fail()
	}
}

func TestBillboardRing(t *testing.T) {
	var b Billboard
	for i := 0; i < maxPermanentNotes+2; i++ {
		b.Permanent("note")
	}
	b.Transient("doing something")
	lines := b.Lines()
	if len(lines) != maxPermanentNotes+1 {
		t.Fatalf("expected %d lines, got %d", maxPermanentNotes+1, len(lines))
	}
	if lines[len(lines)-1] != "doing something" {
		t.Fail()
	}
}

func TestHTLCLifecycle(t *testing.T) {
	c := testChannel(t)
	c.AddHTLC(HTLC{ID: 1, Direction: HTLCOut, AmountMsat: 1000})

	stats := c.Stats()
	if stats.OutPaymentsOffered != 1 || stats.OutMsatOffered != 1000 {
		t.Fatalf("unexpected stats after add: %+v", stats)
	}

	c.ResolveHTLC(1, true)
	stats = c.Stats()
	if stats.OutPaymentsFulfilled != 1 || stats.OutMsatFulfilled != 1000 {
		t.Fatalf("unexpected stats after fulfill: %+v", stats)
	}
	if len(c.htlcs) != 0 {
		t.Fail()
	}
}

func TestSnapshotSpendableFloorsAtZero(t *testing.T) {
	c := testChannel(t)
	c.theirConfig.ChannelReserveSat = 1_000_000
	c.SetBalance(1000)

	snap, err := c.Snapshot(nil, ids.NodeID{})
	if err != nil {
		t.Fatal(err)
	}
	if snap.SpendableMsat != 0 {
		t.Fatalf("expected floored spendable, got %d", snap.SpendableMsat)
	}
}

func TestFutureCommitPointLatch(t *testing.T) {
	c := testChannel(t)
	if c.FutureCommitPoint() != nil {
		t.Fail()
	}
	c.SetFutureCommitPoint([]byte{1, 2, 3})
	if c.FutureCommitPoint() == nil {
		t.Fail()
	}
}
