package control

import (
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/internal/eventbus"
)

// ConnectEvent is published whenever a peer successfully connects,
// mirroring the source's notify_connect hook point.
type ConnectEvent struct {
	PeerID ids.NodeID
	Addr   string
}

func (ConnectEvent) Name() string { return "connect" }
func (ConnectEvent) Flags() uint8 { return eventbus.FlagAsync }

// DisconnectEvent is published whenever a channel's worker reports an
// error that terminates the connection, mirroring notify_disconnect.
type DisconnectEvent struct {
	PeerID ids.NodeID
}

func (DisconnectEvent) Name() string { return "disconnect" }
func (DisconnectEvent) Flags() uint8 { return eventbus.FlagAsync }
