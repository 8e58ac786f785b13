package rpcsrv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/control"
	"github.com/chainlatch/coreld/internal/logging"
	"github.com/chainlatch/coreld/peer"
)

const defaultCloseTimeoutSeconds = 30

func ok(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// logLine is one entry of a peer's dumped log ring.
type logLine struct {
	Level string `json:"level"`
	Line  string `json:"line"`
}

// peerPayload is one entry of listpeers' result.
type peerPayload struct {
	ID                 string             `json:"id"`
	Address            string             `json:"address,omitempty"`
	Channels           []*channel.Snapshot `json:"channels"`
	UncommittedChannel *channel.Snapshot  `json:"uncommitted_channel,omitempty"`
	Log                []logLine          `json:"log,omitempty"`
}

type listPeersParams struct {
	ID    string `json:"id"`
	Level string `json:"level"`
}

// handleListPeers implements `listpeers [id] [level]` (§4.9).
func handleListPeers(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params listPeersParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return userError(id, ErrCodeInvalidParams, "invalid listpeers params: %v", err)
		}
	}

	var minLevel logging.Level
	dumpLog := params.Level != ""
	if dumpLog {
		lvl, ok := btclog.LevelFromString(params.Level)
		if !ok {
			return userError(id, ErrCodeInvalidParams, "unrecognized log level %q", params.Level)
		}
		minLevel = lvl
	}

	var peers []*peer.Peer
	if params.ID != "" {
		p, err := node.FindPeer(params.ID)
		if err != nil {
			return userError(id, ErrCodeGeneric, "%v", err)
		}
		peers = []*peer.Peer{p}
	} else {
		peers = node.Registry.All()
	}

	out := make([]peerPayload, 0, len(peers))
	for _, p := range peers {
		pp := peerPayload{ID: p.ID().String(), Address: p.LastAddr()}

		for _, c := range p.Channels() {
			snap, err := c.Snapshot(node.Log(), node.OurID)
			if err != nil {
				return userError(id, ErrCodeGeneric, "snapshotting channel %s: %v", c.ID(), err)
			}
			pp.Channels = append(pp.Channels, snap)
		}

		if uc := p.Uncommitted(); uc != nil {
			snap, err := uc.Snapshot(node.Log(), node.OurID)
			if err != nil {
				return userError(id, ErrCodeGeneric, "snapshotting uncommitted channel: %v", err)
			}
			pp.UncommittedChannel = snap
		}

		if dumpLog {
			for _, e := range p.Log().Dump(minLevel) {
				pp.Log = append(pp.Log, logLine{Level: e.Level.String(), Line: e.Line})
			}
		}

		out = append(out, pp)
	}

	return ok(id, map[string]interface{}{"peers": out})
}

type closeParams struct {
	ID      string `json:"id"`
	Force   bool   `json:"force"`
	Timeout int    `json:"timeout"`
}

// handleClose implements `close id [force=false] [timeout=30]` (§4.9, §4.6).
func handleClose(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params closeParams
	params.Timeout = defaultCloseTimeoutSeconds
	if err := json.Unmarshal(raw, &params); err != nil {
		return userError(id, ErrCodeInvalidParams, "invalid close params: %v", err)
	}
	if params.ID == "" {
		return userError(id, ErrCodeInvalidParams, "missing id")
	}

	c, _, err := node.FindChannelBySelector(params.ID)
	if err != nil {
		// No committed channel; maybe only an uncommitted one in progress.
		if p2, perr := node.FindPeer(params.ID); perr == nil && p2.Uncommitted() != nil {
			_ = p2.SetUncommitted(nil)
			return ok(id, nil)
		}
		return userError(id, ErrCodeGeneric, "Peer has no active channel")
	}

	switch c.State() {
	case channel.StateNormal, channel.StateAwaitingLockin, channel.StateShuttingDown, channel.StateClosingSigExchange:
	default:
		return userError(id, ErrCodeGeneric, "Channel is in state %s", c.State())
	}

	if c.State() == channel.StateNormal || c.State() == channel.StateAwaitingLockin {
		if err := c.SetState(channel.StateShuttingDown); err != nil {
			return userError(id, ErrCodeGeneric, "%v", err)
		}
		_ = node.Supervisor.Send(c.DBID(), []byte("channel_send_shutdown"), nil)
	}

	cmd := node.CloseCoord.Register(c.DBID(), params.Force, time.Duration(params.Timeout)*time.Second)
	res := <-cmd.Result()
	if res.Err != nil {
		return userError(id, ErrCodeGeneric, "%s", res.Err.Error())
	}

	return ok(id, map[string]interface{}{
		"tx":   res.Outcome.TxHex,
		"txid": res.Outcome.Txid,
		"type": res.Outcome.Type,
	})
}

type disconnectParams struct {
	ID    string `json:"id"`
	Force bool   `json:"force"`
}

// handleDisconnect implements `disconnect id [force=false]` (§4.9).
func handleDisconnect(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params disconnectParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return userError(id, ErrCodeInvalidParams, "invalid disconnect params: %v", err)
	}

	p, err := node.FindPeer(params.ID)
	if err != nil {
		return userError(id, ErrCodeGeneric, "Peer not connected")
	}

	channels := p.Channels()
	if len(channels) == 0 {
		if uc := p.Uncommitted(); uc != nil {
			_ = p.SetUncommitted(nil)
		}
		return ok(id, nil)
	}

	active := channels[0]
	if !params.Force {
		return userError(id, ErrCodeGeneric, "Peer is in state %s", active.State())
	}

	if err := node.FailTransient(active.DBID(), "disconnected by user request"); err != nil {
		return userError(id, ErrCodeGeneric, "%v", err)
	}
	return ok(id, nil)
}

type setChannelFeeParams struct {
	ID   string `json:"id"`
	Base string `json:"base"`
	PPM  uint32 `json:"ppm"`
}

// handleSetChannelFee implements `setchannelfee id base ppm` (§4.9).
func handleSetChannelFee(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params setChannelFeeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return userError(id, ErrCodeInvalidParams, "invalid setchannelfee params: %v", err)
	}

	base, err := parseMsatField(params.Base)
	if err != nil {
		return userError(id, ErrCodeInvalidParams, "%v", err)
	}

	eligible := func(c *channel.Channel) bool {
		switch c.State() {
		case channel.StateNormal, channel.StateAwaitingLockin:
			return true
		default:
			return false
		}
	}

	var targets []*channel.Channel
	if params.ID == "all" {
		for _, p := range node.Registry.All() {
			for _, c := range p.Channels() {
				if eligible(c) {
					targets = append(targets, c)
				}
			}
		}
	} else {
		c, _, err := node.FindChannelBySelector(params.ID)
		if err != nil {
			return userError(id, ErrCodeGeneric, "%v", err)
		}
		if !eligible(c) {
			return userError(id, ErrCodeGeneric, "Channel is in state %s", c.State())
		}
		targets = []*channel.Channel{c}
	}

	snaps := make([]*channel.Snapshot, 0, len(targets))
	for _, c := range targets {
		c.SetRoutingFee(base, params.PPM)
		_ = node.Supervisor.Send(c.DBID(), []byte("channel_update"), nil)
		snap, err := c.Snapshot(node.Log(), node.OurID)
		if err != nil {
			return userError(id, ErrCodeGeneric, "snapshotting channel %s: %v", c.ID(), err)
		}
		snaps = append(snaps, snap)
	}

	return ok(id, map[string]interface{}{"channels": snaps})
}

// parseMsatField accepts either a bare integer or an "Nmsat"-suffixed
// string and validates it fits a uint32 (§4.9: "base ... must fit in a
// 32-bit unsigned; fail otherwise").
func parseMsatField(s string) (uint32, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "msat")
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fee base %q: %w", s, err)
	}
	if v > 0xffffffff {
		return 0, fmt.Errorf("fee base %d overflows a 32-bit unsigned", v)
	}
	return uint32(v), nil
}

// handleGetInfo implements `getinfo` (§4.9).
func handleGetInfo(node *control.Node, id json.RawMessage, _ json.RawMessage) *Response {
	peers := node.Registry.All()

	activeChannels := 0
	pendingChannels := 0
	for _, p := range peers {
		for _, c := range p.Channels() {
			switch {
			case c.State().Active():
				activeChannels++
			case c.State() == channel.StateAwaitingLockin:
				pendingChannels++
			}
		}
	}

	result := map[string]interface{}{
		"id":                      node.OurID.String(),
		"num_peers":               len(peers),
		"num_active_channels":     activeChannels,
		"num_pending_channels":    pendingChannels,
		"msatoshi_fees_collected": node.Metrics.ForwardFeeMsatTotal(),
	}

	if node.Config != nil {
		result["network"] = node.Config.Network
		result["binding"] = []map[string]interface{}{
			{"type": "tcp", "address": node.Config.RPCHost, "port": node.Config.RPCPort},
		}
	}

	return ok(id, result)
}
