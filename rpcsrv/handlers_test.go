package rpcsrv

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/control"
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/eventbus"
	"github.com/chainlatch/coreld/peer"
)

func testNode(t *testing.T) *control.Node {
	t.Helper()
	registry := peer.NewRegistry(nil)
	bus := eventbus.New(btclog.Disabled)
	// None of these handler tests drive a channel worker or the signer, so
	// every collaborator can stay nil; control.Node only touches them on
	// the paths (force-disconnect, close, setchannelfee) left uncovered.
	n := control.New(btclog.Disabled, registry, nil, bus, nil, nil, nil, nil, testPeerID(0), nil)
	return n
}

func testPeerID(b byte) ids.NodeID {
	var id ids.NodeID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestHandleGetInfoCountsActiveAndPendingChannels(t *testing.T) {
	n := testNode(t)
	p := peer.New(testPeerID(1), 1, btclog.Disabled)
	n.Registry.Insert(p)

	active := channel.New(1, p, channel.Funding{AmountSat: 1000}, channel.Params{}, channel.Params{})
	if err := active.SetState(channel.StateAwaitingLockin); err != nil {
		t.Fatal(err)
	}
	if err := active.SetState(channel.StateNormal); err != nil {
		t.Fatal(err)
	}
	p.CommitChannel(active)

	p2 := peer.New(testPeerID(2), 2, btclog.Disabled)
	n.Registry.Insert(p2)
	pending := channel.New(2, p2, channel.Funding{AmountSat: 2000}, channel.Params{}, channel.Params{})
	if err := pending.SetState(channel.StateAwaitingLockin); err != nil {
		t.Fatal(err)
	}
	p2.CommitChannel(pending)

	resp := handleGetInfo(n, json.RawMessage(`1`), nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape: %#v", resp.Result)
	}
	if result["num_peers"] != 2 {
		t.Fatalf("expected 2 peers, got %v", result["num_peers"])
	}
	if result["num_active_channels"] != 1 {
		t.Fatalf("expected 1 active channel, got %v", result["num_active_channels"])
	}
	if result["num_pending_channels"] != 1 {
		t.Fatalf("expected 1 pending channel, got %v", result["num_pending_channels"])
	}
}

func TestHandleListPeersFiltersByID(t *testing.T) {
	n := testNode(t)
	p1 := peer.New(testPeerID(3), 3, btclog.Disabled)
	p1.SetLastAddr("1.2.3.4:9735")
	n.Registry.Insert(p1)
	p2 := peer.New(testPeerID(4), 4, btclog.Disabled)
	n.Registry.Insert(p2)

	params, err := json.Marshal(listPeersParams{ID: p1.ID().String()})
	if err != nil {
		t.Fatal(err)
	}

	resp := handleListPeers(n, json.RawMessage(`1`), params)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	peers := result["peers"].([]peerPayload)
	if len(peers) != 1 || peers[0].ID != p1.ID().String() {
		t.Fatalf("expected only %s, got %+v", p1.ID(), peers)
	}
	if peers[0].Address != "1.2.3.4:9735" {
		t.Fatalf("expected address recorded, got %q", peers[0].Address)
	}
}

func TestHandleListPeersUnknownIDIsUserError(t *testing.T) {
	n := testNode(t)
	params, _ := json.Marshal(listPeersParams{ID: "not-a-real-selector"})
	resp := handleListPeers(n, json.RawMessage(`1`), params)
	if resp.Error == nil {
		t.Fatal("expected an error for an unknown peer selector")
	}
	if resp.Error.Code != ErrCodeGeneric {
		t.Fatalf("expected generic error code, got %d", resp.Error.Code)
	}
}

func TestHandleDisconnectRequiresForceWithActiveChannel(t *testing.T) {
	n := testNode(t)
	p := peer.New(testPeerID(5), 5, btclog.Disabled)
	n.Registry.Insert(p)
	c := channel.New(3, p, channel.Funding{AmountSat: 1000}, channel.Params{}, channel.Params{})
	if err := c.SetState(channel.StateAwaitingLockin); err != nil {
		t.Fatal(err)
	}
	if err := c.SetState(channel.StateNormal); err != nil {
		t.Fatal(err)
	}
	p.CommitChannel(c)

	params, _ := json.Marshal(disconnectParams{ID: p.ID().String()})
	resp := handleDisconnect(n, json.RawMessage(`1`), params)
	if resp.Error == nil {
		t.Fatal("expected disconnect to refuse without force while a channel is active")
	}
}

func TestHandleDisconnectWithNoChannelsSucceeds(t *testing.T) {
	n := testNode(t)
	p := peer.New(testPeerID(6), 6, btclog.Disabled)
	n.Registry.Insert(p)

	params, _ := json.Marshal(disconnectParams{ID: p.ID().String()})
	resp := handleDisconnect(n, json.RawMessage(`1`), params)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
}

func TestParseMsatFieldAcceptsBareAndSuffixedForms(t *testing.T) {
	v, err := parseMsatField("1000")
	if err != nil || v != 1000 {
		t.Fatalf("expected 1000, got %d, %v", v, err)
	}
	v, err = parseMsatField("500msat")
	if err != nil || v != 500 {
		t.Fatalf("expected 500, got %d, %v", v, err)
	}
	if _, err := parseMsatField("not-a-number"); err == nil {
		t.Fatal("expected an error for a non-numeric fee base")
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	n := testNode(t)
	s := New(btclog.Disabled, n, false)

	resp := s.dispatch([]byte(`{"jsonrpc":"2.0","id":1,"method":"nope","params":{}}`))
	if resp.Error == nil || resp.Error.Code != ErrCodeUnknownMethod {
		t.Fatalf("expected unknown method error, got %+v", resp)
	}
}

func TestDispatchMalformedJSON(t *testing.T) {
	n := testNode(t)
	s := New(btclog.Disabled, n, false)

	resp := s.dispatch([]byte(`not json`))
	if resp.Error == nil || resp.Error.Code != ErrCodeParse {
		t.Fatalf("expected parse error, got %+v", resp)
	}
}

func TestDispatchDeveloperOnlyMethodsHiddenByDefault(t *testing.T) {
	n := testNode(t)
	s := New(btclog.Disabled, n, false)

	resp := s.dispatch([]byte(`{"jsonrpc":"2.0","id":1,"method":"dev-memleak","params":{}}`))
	if resp.Error == nil || resp.Error.Code != ErrCodeUnknownMethod {
		t.Fatalf("expected dev-memleak hidden without developer mode, got %+v", resp)
	}
}
