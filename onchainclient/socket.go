package onchainclient

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/btcsuite/btcd/wire"

	"github.com/chainlatch/coreld/internal/txutil"
)

// wireResolveSpend is the outbound payload handed to the resolver worker
// once a tracked funding outpoint is confirmed spent (§6.5).
type wireResolveSpend struct {
	ChannelDBID uint64 `json:"channel_db_id"`
	TxHex       string `json:"tx_hex"`
	BlockHeight uint32 `json:"block_height"`
}

// SocketClient hands a confirmed funding-spend off to the resolver worker
// over a dedicated socket, one JSON line per call. Like
// transportclient.SocketClient, it only writes and never reads a reply.
type SocketClient struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the resolver worker's socket at addr.
func Dial(network, addr string) (*SocketClient, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("onchainclient: dialing %s: %w", addr, err)
	}
	return &SocketClient{conn: conn}, nil
}

// ResolveSpend implements Client.
func (c *SocketClient) ResolveSpend(channelDBID uint64, tx *wire.MsgTx, blockHeight uint32) error {
	txHex, err := txutil.ToHex(tx)
	if err != nil {
		return fmt.Errorf("onchainclient: serializing spend tx: %w", err)
	}

	enc, err := json.Marshal(wireResolveSpend{
		ChannelDBID: channelDBID,
		TxHex:       txHex,
		BlockHeight: blockHeight,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(append(enc, '\n'))
	return err
}
