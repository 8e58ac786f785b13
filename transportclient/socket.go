package transportclient

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// wireConnectRequest is the outbound connect_to_peer shape (§6.4).
type wireConnectRequest struct {
	ID      string `json:"id"`
	Addr    string `json:"addr"`
	Seconds int    `json:"seconds"`
}

// SocketClient asks connectd to dial a peer over a dedicated control
// socket. The inbound half of the connectd contract -- peer_connected
// notifications, which arrive with three handed-off file descriptors --
// is out of scope here: connectd is a collaborator process this core only
// consumes typed messages from (§1), and passing live socket descriptors
// between processes is connectd's own concern, not the control plane's.
type SocketClient struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to connectd's control socket at addr.
func Dial(network, addr string) (*SocketClient, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("transportclient: dialing %s: %w", addr, err)
	}
	return &SocketClient{conn: conn}, nil
}

// ConnectToPeer implements Client.
func (c *SocketClient) ConnectToPeer(req ConnectRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	enc, err := json.Marshal(wireConnectRequest{
		ID:      req.ID.String(),
		Addr:    req.Addr,
		Seconds: req.Seconds,
	})
	if err != nil {
		return err
	}
	_, err = c.conn.Write(append(enc, '\n'))
	return err
}
