package hookclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// SocketClient dispatches the peer_connected hook to a plugin listening on
// a dedicated socket, one JSON line per call (§6.2).
type SocketClient struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a plugin's hook socket at addr.
func Dial(network, addr string) (*SocketClient, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("hookclient: dialing %s: %w", addr, err)
	}
	return &SocketClient{conn: conn, r: bufio.NewReader(conn)}, nil
}

// PeerConnected implements Client.
func (c *SocketClient) PeerConnected(payload PeerConnectedPayload) (Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	enc, err := json.Marshal(payload)
	if err != nil {
		return Verdict{}, err
	}
	if _, err := c.conn.Write(append(enc, '\n')); err != nil {
		return Verdict{}, fmt.Errorf("hookclient: writing payload: %w", err)
	}

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return Verdict{}, fmt.Errorf("hookclient: reading verdict: %w", err)
	}

	return ParseVerdict(line)
}

// NoopClient always answers "continue", the default when no plugin is
// configured -- every connecting peer is accepted.
type NoopClient struct{}

func (NoopClient) PeerConnected(PeerConnectedPayload) (Verdict, error) {
	return Verdict{Result: VerdictContinue}, nil
}
