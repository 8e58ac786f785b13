// Package signerclient defines the wire contract for the hardware-signer
// daemon (§6.3): a synchronous request/reply over a dedicated socket that
// signs a commitment transaction. The daemon itself is out of scope; this
// package fixes the request/reply shapes and the Client interface
// drop_to_chain programs against.
package signerclient

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// SignCommitmentRequest is sent to the signer to obtain our signature
// over a channel's current commitment/close transaction.
type SignCommitmentRequest struct {
	PeerID              string
	ChannelDBID         uint64
	Tx                  *wire.MsgTx
	RemoteFundingPubkey *btcec.PublicKey
	FundingSats         uint64
}

// SignCommitmentReply carries the signer's DER-encoded, sighash-type-
// suffixed signature over the transaction's single funding input.
type SignCommitmentReply struct {
	Signature []byte
}

// Client is the synchronous signer contract this node consumes. A real
// implementation writes the request and blocks reading the reply over a
// dedicated file descriptor, matching the source's single-outstanding-
// request oracle model (§5: "requests are synchronous write-then-read on
// a dedicated file descriptor").
type Client interface {
	SignCommitment(req SignCommitmentRequest) (SignCommitmentReply, error)
}
