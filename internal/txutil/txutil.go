// Package txutil assembles and tears down the raw transactions the control
// plane needs to reason about: the funding multisig witness script, the
// 2-of-2 witness stack attached at broadcast time, and txid/hex helpers.
// It is grounded directly on the teacher's qln/buildtx.go and qln/close.go,
// which build the same shapes by hand against github.com/btcsuite/btcd/wire
// and github.com/btcsuite/btcutil/txsort — here we lean on the upstream
// btcsuite packages throughout instead of a hand-rolled fork.
package txutil

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// MultisigScript builds the bare 2-of-2 multisig script for a funding
// output, returning the script plus whether the two pubkeys needed to be
// swapped into canonical (lexically ascending) order. Signatures must
// later be supplied to AssembleWitness in that same order.
func MultisigScript(pubA, pubB *btcec.PublicKey) (script []byte, swapped bool, err error) {
	a := pubA.SerializeCompressed()
	b := pubB.SerializeCompressed()
	first, second := a, b
	swapped = false
	if bytes.Compare(a, b) > 0 {
		first, second = b, a
		swapped = true
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(first)
	builder.AddData(second)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	script, err = builder.Script()
	return script, swapped, err
}

// P2WSH wraps a witness script in its P2WSH pkScript.
func P2WSH(script []byte) ([]byte, error) {
	h := chainhash.HashB(script)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_0)
	builder.AddData(h)
	return builder.Script()
}

// SigHash computes the BIP143 witness signature hash for the funding input
// of tx, given the witness script and input value.
func SigHash(tx *wire.MsgTx, script []byte, inputValue int64) ([]byte, error) {
	hashes := txscript.NewTxSigHashes(tx, txscript.NewCannedPrevOutputFetcher(script, inputValue))
	return txscript.CalcWitnessSigHash(script, hashes, txscript.SigHashAll, tx, 0, inputValue)
}

// AssembleWitness builds the final 2-of-2 P2WSH witness stack from both
// DER signatures (already suffixed with the sighash-type byte), ordered to
// match the canonical pubkey order MultisigScript reported.
func AssembleWitness(script []byte, sigLocal, sigRemote []byte, swapped bool) wire.TxWitness {
	first, second := sigLocal, sigRemote
	if swapped {
		first, second = sigRemote, sigLocal
	}
	// OP_CHECKMULTISIG's off-by-one bug requires a leading dummy element.
	return wire.TxWitness{nil, first, second, script}
}

// StripWitness clears the funding input's witness so the in-memory
// commitment transaction always sits in the same canonical, unsigned
// shape; the signature is re-requested from the signer on every broadcast.
func StripWitness(tx *wire.MsgTx) {
	if len(tx.TxIn) > 0 {
		tx.TxIn[0].Witness = nil
	}
}

// HasWitness reports whether the funding input currently carries a
// witness.
func HasWitness(tx *wire.MsgTx) bool {
	return len(tx.TxIn) > 0 && len(tx.TxIn[0].Witness) > 0
}

// Txid returns the double-SHA256 transaction id.
func Txid(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}

// ToHex serializes tx (including witness data) to a hex string, the shape
// the "close" RPC and dev-sign-last-tx return to callers.
func ToHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
