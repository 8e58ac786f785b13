package control

import (
	"fmt"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/ids"
	"github.com/chainlatch/coreld/peer"
)

// FindPeer resolves an RPC "id" selector to a peer: either its hex node-id,
// or the hex channel-id / short-channel-id of a channel it owns.
func (n *Node) FindPeer(selector string) (*peer.Peer, error) {
	if nodeID, err := ids.NodeIDFromHex(selector); err == nil {
		if p, ok := n.Registry.FindByID(nodeID); ok {
			return p, nil
		}
	}

	_, p, err := n.FindChannelBySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("no peer matching %q", selector)
	}
	return p, nil
}

// FindChannelBySelector resolves an RPC "id" selector naming a channel:
// its derived channel-id (hex sha256 of the funding outpoint) or its
// short-channel-id ("BLOCKxTXxOUTPUT").
func (n *Node) FindChannelBySelector(selector string) (*channel.Channel, *peer.Peer, error) {
	if cid, err := ids.ChannelIDFromHex(selector); err == nil {
		for _, p := range n.Registry.All() {
			if c, ok := p.Channel(cid); ok {
				return c, p, nil
			}
		}
	}

	if scid, err := ids.ParseShortChannelID(selector); err == nil {
		for _, p := range n.Registry.All() {
			for _, c := range p.Channels() {
				if s := c.SCID(); s != nil && s.Equal(scid) {
					return c, p, nil
				}
			}
		}
	}

	return nil, nil, fmt.Errorf("no channel matching %q", selector)
}
