// Package ids defines the small, dependency-free identifier types shared
// across the control plane: node public keys, funding outpoints, and the
// derived channel-id and short-channel-id used on the wire.
package ids

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// NodeID is a 33-byte compressed secp256k1 public key identifying a peer.
type NodeID [33]byte

func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// Idx returns our canonical side index relative to another node: 0 if n
// lexically precedes other, else 1. Used to compute the "direction" field
// on the channel read-model.
func (n NodeID) Idx(other NodeID) int {
	for i := range n {
		if n[i] != other[i] {
			if n[i] < other[i] {
				return 0
			}
			return 1
		}
	}
	return 0
}

// NodeIDFromHex parses a hex-encoded 33-byte compressed pubkey.
func NodeIDFromHex(s string) (NodeID, error) {
	var id NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("node id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Outpoint is a funding transaction output reference.
type Outpoint struct {
	Txid  chainhash.Hash
	Index uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid.String(), o.Index)
}

// ChannelID is the SHA-256 of the funding outpoint, used in wire messages
// and as the primary handle callers use to select a channel over RPC.
//
// channel_id = SHA256(funding_txid || u16_be(funding_outnum))
type ChannelID [32]byte

func (c ChannelID) String() string {
	return hex.EncodeToString(c[:])
}

// DeriveChannelID computes the channel-id for a funding outpoint. This must
// stay consistent across every surface that exposes a channel-id (§8).
func DeriveChannelID(op Outpoint) ChannelID {
	var buf [34]byte
	copy(buf[:32], op.Txid[:])
	binary.BigEndian.PutUint16(buf[32:], uint16(op.Index))
	return ChannelID(chainhash.HashB(buf[:]))
}

// ShortChannelID is the compact (block_height, tx_index, output_index)
// triple used for routing once a channel is sufficiently buried.
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	OutputIndex uint32
}

// NewShortChannelID validates and constructs a short-channel-id. Block
// height and tx index must fit in 24 bits and the output index in 16 bits,
// matching the wire encoding used throughout the Lightning protocol.
func NewShortChannelID(blockHeight, txIndex, outputIndex uint32) (ShortChannelID, error) {
	if blockHeight > 0xffffff {
		return ShortChannelID{}, fmt.Errorf("block height %d overflows 24 bits", blockHeight)
	}
	if txIndex > 0xffffff {
		return ShortChannelID{}, fmt.Errorf("tx index %d overflows 24 bits", txIndex)
	}
	if outputIndex > 0xffff {
		return ShortChannelID{}, fmt.Errorf("output index %d overflows 16 bits", outputIndex)
	}
	return ShortChannelID{blockHeight, txIndex, outputIndex}, nil
}

func (s ShortChannelID) String() string {
	return fmt.Sprintf("%dx%dx%d", s.BlockHeight, s.TxIndex, s.OutputIndex)
}

func (s ShortChannelID) Equal(o ShortChannelID) bool {
	return s == o
}

// ParseShortChannelID parses the "BLOCKxTXxOUTPUT" selector format accepted
// by the RPC adapter's channel selectors.
func ParseShortChannelID(s string) (ShortChannelID, error) {
	parts := strings.Split(s, "x")
	if len(parts) != 3 {
		return ShortChannelID{}, fmt.Errorf("short channel id %q must have the form BLOCKxTXxOUTPUT", s)
	}
	var vals [3]uint32
	for i, p := range parts {
		var v uint32
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil {
			return ShortChannelID{}, fmt.Errorf("short channel id %q: %w", s, err)
		}
		vals[i] = v
	}
	return NewShortChannelID(vals[0], vals[1], vals[2])
}

// ChannelIDFromHex parses a hex-encoded 32-byte channel-id.
func ChannelIDFromHex(s string) (ChannelID, error) {
	var id ChannelID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("channel id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// U64 packs the short-channel-id into its canonical 64-bit wire form.
func (s ShortChannelID) U64() uint64 {
	return uint64(s.BlockHeight)<<40 | uint64(s.TxIndex)<<16 | uint64(s.OutputIndex)
}
