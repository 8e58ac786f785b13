package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coreld.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPeerRoundTrip(t *testing.T) {
	s := openTestStore(t)

	id, err := s.NextDBID()
	if err != nil {
		t.Fatal(err)
	}

	p := PeerRecord{DBID: id, NodeID: "02aabb", LastAddr: "127.0.0.1:9735"}
	if err := s.SavePeer(p); err != nil {
		t.Fatal(err)
	}

	peers, err := s.LoadPeers()
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].NodeID != "02aabb" {
		t.Fatalf("unexpected peers after save: %+v", peers)
	}

	if err := s.DeletePeer(id); err != nil {
		t.Fatal(err)
	}
	peers, err = s.LoadPeers()
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 0 {
		t.Fatalf("expected no peers after delete, got %+v", peers)
	}
}

func TestChannelRoundTrip(t *testing.T) {
	s := openTestStore(t)

	id, err := s.NextDBID()
	if err != nil {
		t.Fatal(err)
	}

	c := ChannelRecord{
		DBID:        id,
		FundingTxid: "abcd",
		FundingSat:  1_000_000,
		OurConfig:   ParamsRecord{DustLimitSat: 546},
	}
	if err := s.SaveChannel(c); err != nil {
		t.Fatal(err)
	}

	chans, err := s.LoadChannels()
	if err != nil {
		t.Fatal(err)
	}
	if len(chans) != 1 || chans[0].FundingSat != 1_000_000 {
		t.Fatalf("unexpected channels after save: %+v", chans)
	}
}

func TestNextDBIDMonotonic(t *testing.T) {
	s := openTestStore(t)

	a, err := s.NextDBID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.NextDBID()
	if err != nil {
		t.Fatal(err)
	}
	if b != a+1 {
		t.Fatalf("expected monotonic ids, got %d then %d", a, b)
	}
}

func TestPayIndexMonotonic(t *testing.T) {
	s := openTestStore(t)

	a, err := s.NextPayIndex()
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.NextPayIndex()
	if err != nil {
		t.Fatal(err)
	}
	if a != 1 || b != 2 {
		t.Fatalf("expected 1, 2, got %d, %d", a, b)
	}
}
