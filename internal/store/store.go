// Package store is the durable persistence layer for peers, channels, and
// the global payment-index counter. It is grounded on the teacher's
// qln/lndb.go bucket schema (Channels/Peers/PeerMap/ChannelMap, all in one
// boltdb database), adapted to the narrow set of records this control
// plane actually needs to round-trip.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
)

var (
	bucketPeers    = []byte("Peers")
	bucketChannels = []byte("Channels")
	bucketMeta     = []byte("Meta")

	keyPayIndex = []byte("PayIndex")
	keyNextDBID = []byte("NextDBID")
)

// Store owns the single boltdb file backing this node's durable state.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the boltdb file at path and ensures
// all top-level buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketPeers, bucketChannels, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying boltdb file.
func (s *Store) Close() error {
	return s.db.Close()
}

// PeerRecord is the durable row for one peer: identity and last-known
// address. Feature bitfields are intentionally absent -- those are
// re-learned on every connection and never persisted (§3).
type PeerRecord struct {
	DBID     uint64 `json:"db_id"`
	NodeID   string `json:"node_id"`
	LastAddr string `json:"last_addr"`
}

// ChannelRecord is the durable row for one channel, containing everything
// needed to reconstruct a channel.Channel on restart.
type ChannelRecord struct {
	DBID        uint64 `json:"db_id"`
	PeerDBID    uint64 `json:"peer_db_id"`
	State       int    `json:"state"`
	FundingTxid string `json:"funding_txid"`
	FundingIdx  uint32 `json:"funding_idx"`
	FundingSat  uint64 `json:"funding_sat"`
	Funder      int    `json:"funder"`

	SCIDHeight uint32 `json:"scid_height,omitempty"`
	SCIDTx     uint32 `json:"scid_tx,omitempty"`
	SCIDOutput uint32 `json:"scid_output,omitempty"`
	HasSCID    bool   `json:"has_scid"`

	LastTxHex  string `json:"last_tx_hex,omitempty"`
	LastSigHex string `json:"last_sig_hex,omitempty"`
	LastTxType string `json:"last_tx_type,omitempty"`

	OurConfig   ParamsRecord `json:"our_config"`
	TheirConfig ParamsRecord `json:"their_config"`

	OurBalanceMsat uint64 `json:"our_balance_msat"`
	MinBalanceMsat uint64 `json:"min_balance_msat"`
	MaxBalanceMsat uint64 `json:"max_balance_msat"`

	FeeBaseMsat uint32 `json:"fee_base_msat"`
	FeePPM      uint32 `json:"fee_ppm"`

	ErrorToSendHex       string `json:"error_to_send_hex,omitempty"`
	FutureCommitPointHex string `json:"future_commit_point_hex,omitempty"`
}

// ParamsRecord is the durable shape of channel.Params.
type ParamsRecord struct {
	DustLimitSat         uint64 `json:"dust_limit_sat"`
	ChannelReserveSat    uint64 `json:"channel_reserve_sat"`
	ToSelfDelay          uint16 `json:"to_self_delay"`
	MaxHTLCValueInFlight uint64 `json:"max_htlc_value_in_flight"`
	MaxAcceptedHTLCs     uint16 `json:"max_accepted_htlcs"`
	HTLCMinimumMsat      uint64 `json:"htlc_minimum_msat"`
}

func dbIDKey(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

// NextDBID allocates and persists a new, never-reused row id, shared
// across peers and channels the same way the teacher's PeerMap/ChannelMap
// indices are allocated from a monotonically increasing counter.
func (s *Store) NextDBID() (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		cur := b.Get(keyNextDBID)
		if cur != nil {
			id = binary.BigEndian.Uint64(cur)
		}
		id++
		return b.Put(keyNextDBID, dbIDKey(id))
	})
	return id, err
}

// SavePeer upserts a peer record.
func (s *Store) SavePeer(p PeerRecord) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).Put(dbIDKey(p.DBID), buf)
	})
}

// DeletePeer removes a peer row.
func (s *Store) DeletePeer(dbID uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).Delete(dbIDKey(dbID))
	})
}

// LoadPeers returns every persisted peer record.
func (s *Store) LoadPeers() ([]PeerRecord, error) {
	var out []PeerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeers).ForEach(func(k, v []byte) error {
			var p PeerRecord
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("corrupt peer record %x: %w", k, err)
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// SaveChannel upserts a channel record.
func (s *Store) SaveChannel(c ChannelRecord) error {
	buf, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).Put(dbIDKey(c.DBID), buf)
	})
}

// DeleteChannel removes a channel row, once it has fully resolved
// on-chain and its record is no longer needed.
func (s *Store) DeleteChannel(dbID uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).Delete(dbIDKey(dbID))
	})
}

// LoadChannels returns every persisted channel record.
func (s *Store) LoadChannels() ([]ChannelRecord, error) {
	var out []ChannelRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).ForEach(func(k, v []byte) error {
			var c ChannelRecord
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("corrupt channel record %x: %w", k, err)
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

// NextPayIndex atomically increments and returns the node-wide payment
// index counter, used to assign a stable ordinal to each resolved
// payment for pagination in listpayments-style queries.
func (s *Store) NextPayIndex() (uint64, error) {
	var idx uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		cur := b.Get(keyPayIndex)
		if cur != nil {
			idx = binary.BigEndian.Uint64(cur)
		}
		idx++
		return b.Put(keyPayIndex, dbIDKey(idx))
	})
	return idx, err
}
