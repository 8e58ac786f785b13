package signerclient

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/chainlatch/coreld/internal/txutil"
)

// wireRequest/wireReply are the JSON shapes exchanged with the signer over
// its dedicated socket (§6.3: "synchronous request/reply ... request =
// (peer_id, channel_db_id, last_tx, remote_funding_pubkey, funding_sats);
// reply = (signature)").
type wireRequest struct {
	PeerID              string `json:"peer_id"`
	ChannelDBID         uint64 `json:"channel_db_id"`
	LastTxHex           string `json:"last_tx_hex"`
	RemoteFundingPubkey string `json:"remote_funding_pubkey"`
	FundingSats         uint64 `json:"funding_sats"`
}

type wireReply struct {
	SignatureHex string `json:"signature_hex"`
	Error        string `json:"error,omitempty"`
}

// SocketClient is a Client that reaches the hardware signer over a
// dedicated, already-connected socket, writing one JSON request per line
// and reading one JSON reply per line -- a serialized oracle, per §5's
// "shared-resource policy" for the signer.
type SocketClient struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to the signer at addr (a unix socket path or host:port).
func Dial(network, addr string) (*SocketClient, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("signerclient: dialing %s: %w", addr, err)
	}
	return &SocketClient{conn: conn, r: bufio.NewReader(conn)}, nil
}

// SignCommitment implements Client.
func (c *SocketClient) SignCommitment(req SignCommitmentRequest) (SignCommitmentReply, error) {
	txHex, err := txutil.ToHex(req.Tx)
	if err != nil {
		return SignCommitmentReply{}, fmt.Errorf("signerclient: serializing tx: %w", err)
	}

	var remoteHex string
	if req.RemoteFundingPubkey != nil {
		remoteHex = hex.EncodeToString(req.RemoteFundingPubkey.SerializeCompressed())
	}

	wire := wireRequest{
		PeerID:              req.PeerID,
		ChannelDBID:         req.ChannelDBID,
		LastTxHex:           txHex,
		RemoteFundingPubkey: remoteHex,
		FundingSats:         req.FundingSats,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	enc, err := json.Marshal(wire)
	if err != nil {
		return SignCommitmentReply{}, err
	}
	if _, err := c.conn.Write(append(enc, '\n')); err != nil {
		return SignCommitmentReply{}, fmt.Errorf("signerclient: writing request: %w", err)
	}

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return SignCommitmentReply{}, fmt.Errorf("signerclient: reading reply: %w", err)
	}

	var reply wireReply
	if err := json.Unmarshal(line, &reply); err != nil {
		return SignCommitmentReply{}, fmt.Errorf("signerclient: decoding reply: %w", err)
	}
	if reply.Error != "" {
		return SignCommitmentReply{}, fmt.Errorf("signerclient: %s", reply.Error)
	}

	sig, err := hex.DecodeString(reply.SignatureHex)
	if err != nil {
		return SignCommitmentReply{}, fmt.Errorf("signerclient: decoding signature: %w", err)
	}
	return SignCommitmentReply{Signature: sig}, nil
}
