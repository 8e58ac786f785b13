// Package transportclient defines the wire contract for the connection
// daemon ("connectd", §6.4): the inbound peer_connected notification
// (with its three handed-off file descriptors) and the outbound
// connect_to_peer request. The daemon itself is out of scope.
package transportclient

import (
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/subprocess"
)

// PeerConnected is the inbound notification delivered when connectd
// establishes (or accepts) a connection to a peer.
type PeerConnected struct {
	ID             ids.NodeID
	Addr           string
	Transport      subprocess.Transport
	GlobalFeatures []byte
	LocalFeatures  []byte
}

// ConnectRequest is the outbound request asking connectd to attempt a
// connection, with a maximum wait in seconds before giving up.
type ConnectRequest struct {
	ID      ids.NodeID
	Addr    string
	Seconds int
}

// Client is the outbound half of the connectd contract.
type Client interface {
	ConnectToPeer(req ConnectRequest) error
}

// PeerConnectedHandler is implemented by the connect orchestrator to
// receive inbound notifications; a real transport wiring calls this for
// every peer_connected it decodes off connectd's control socket.
type PeerConnectedHandler interface {
	HandlePeerConnected(pc PeerConnected) error
}
