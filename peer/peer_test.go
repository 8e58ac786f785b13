package peer

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/ids"
)

func testID(b byte) ids.NodeID {
	var id ids.NodeID
	id[0] = b
	return id
}

func TestRegistryInsertAndFind(t *testing.T) {
	r := NewRegistry(nil)
	p := New(testID(1), 1, nil)
	r.Insert(p)

	got, ok := r.FindByID(testID(1))
	if !ok || got != p {
		t.Fail()
	}
	got2, ok := r.FindByDBID(1)
	if !ok || got2 != p {
		t.Fail()
	}
}

func TestEmptyPeerDeletable(t *testing.T) {
	r := NewRegistry(nil)
	p := New(testID(2), 2, nil)
	r.Insert(p)

	deleted, err := r.MaybeDelete(testID(2))
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fail()
	}
	if _, ok := r.FindByID(testID(2)); ok {
		t.Fail()
	}
}

func TestPeerWithChannelNotDeletable(t *testing.T) {
	r := NewRegistry(nil)
	p := New(testID(3), 3, nil)
	r.Insert(p)

	var txid chainhash.Hash
	txid[0] = 9
	c := channel.New(1, p, channel.Funding{
		Outpoint: ids.Outpoint{Txid: txid, Index: 0},
	}, channel.Params{}, channel.Params{})
	p.CommitChannel(c)

	deleted, err := r.MaybeDelete(testID(3))
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Fail()
	}
}

func TestUncommittedChannelExclusive(t *testing.T) {
	p := New(testID(4), 4, nil)

	var txid chainhash.Hash
	c1 := channel.New(1, p, channel.Funding{Outpoint: ids.Outpoint{Txid: txid, Index: 0}}, channel.Params{}, channel.Params{})
	c2 := channel.New(2, p, channel.Funding{Outpoint: ids.Outpoint{Txid: txid, Index: 1}}, channel.Params{}, channel.Params{})

	if err := p.SetUncommitted(c1); err != nil {
		t.Fatal(err)
	}
	if err := p.SetUncommitted(c2); err == nil {
		t.Fail()
	}
	if p.Empty() {
		t.Fail()
	}

	p.CommitChannel(c1)
	if p.Uncommitted() != nil {
		t.Fail()
	}
}
