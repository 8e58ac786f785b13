package rpcsrv

import (
	"encoding/json"
	"runtime"

	"github.com/awalterschulze/gographviz"

	"github.com/chainlatch/coreld/channel"
	"github.com/chainlatch/coreld/control"
)

// Developer commands (§4.9: "gated by a build flag ... testable but not
// load-bearing"). rpcsrv only registers these when constructed with
// developer=true, mirroring config.Developer.

type devSignLastTxParams struct {
	ID string `json:"id"`
}

// handleDevSignLastTx forces a signAndBroadcast/drop_to_chain cycle on a
// live channel without waiting for a real failure, for manual testing.
func handleDevSignLastTx(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params devSignLastTxParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return userError(id, ErrCodeInvalidParams, "invalid dev-sign-last-tx params: %v", err)
	}

	c, _, err := node.FindChannelBySelector(params.ID)
	if err != nil {
		return userError(id, ErrCodeGeneric, "%v", err)
	}

	if err := node.DropToChain(c, false); err != nil {
		return userError(id, ErrCodeGeneric, "%v", err)
	}
	return ok(id, nil)
}

type devFailParams struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// handleDevFail injects a synthetic permanent failure on a channel.
func handleDevFail(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params devFailParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return userError(id, ErrCodeInvalidParams, "invalid dev-fail params: %v", err)
	}
	if params.Reason == "" {
		params.Reason = "dev-fail"
	}

	c, _, err := node.FindChannelBySelector(params.ID)
	if err != nil {
		return userError(id, ErrCodeGeneric, "%v", err)
	}

	if err := node.FailPermanent(c.DBID(), params.Reason); err != nil {
		return userError(id, ErrCodeGeneric, "%v", err)
	}
	return ok(id, nil)
}

type devReenableCommitParams struct {
	ID string `json:"id"`
}

// handleDevReenableCommit clears a channel's latched future-commitment-point
// safety latch, letting drop_to_chain broadcast again. Only useful in
// testing: in production that latch should never be cleared by hand.
func handleDevReenableCommit(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params devReenableCommitParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return userError(id, ErrCodeInvalidParams, "invalid dev-reenable-commit params: %v", err)
	}

	c, _, err := node.FindChannelBySelector(params.ID)
	if err != nil {
		return userError(id, ErrCodeGeneric, "%v", err)
	}
	c.SetFutureCommitPoint(nil)
	return ok(id, nil)
}

type devForgetChannelParams struct {
	ID    string `json:"id"`
	Force bool   `json:"force"`
}

// handleDevForgetChannel drops a channel's record outright without going
// through drop_to_chain, forcing any pending close commands down the
// channel-destroyed path (§8 property 3).
func handleDevForgetChannel(node *control.Node, id json.RawMessage, raw json.RawMessage) *Response {
	var params devForgetChannelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return userError(id, ErrCodeInvalidParams, "invalid dev-forget-channel params: %v", err)
	}

	c, p, err := node.FindChannelBySelector(params.ID)
	if err != nil {
		return userError(id, ErrCodeGeneric, "%v", err)
	}
	if !params.Force && c.State().Active() {
		return userError(id, ErrCodeGeneric, "refusing to forget active channel %s without force", c.ID())
	}

	if node.CloseCoord != nil {
		node.CloseCoord.ChannelDestroyed(c.DBID())
	}
	p.RemoveChannel(c.ID())
	_, _ = node.Registry.MaybeDelete(p.ID())
	node.Metrics.Peers.Set(float64(len(node.Registry.All())))

	return ok(id, nil)
}

// handleDevMemleak reports a basic heap/goroutine snapshot, standing in
// for the source's memory-leak probe developer command.
func handleDevMemleak(node *control.Node, id json.RawMessage, _ json.RawMessage) *Response {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return ok(id, map[string]interface{}{
		"heap_alloc_bytes": stats.HeapAlloc,
		"heap_objects":     stats.HeapObjects,
		"goroutines":       runtime.NumGoroutine(),
		"leak_detected":    false,
	})
}

// handleDevChannelStateGraph renders the legal channel lifecycle
// transition table (§4.4) as a graphviz .dot document. Repurposes
// gographviz, which the teacher uses for its gossip routing-graph dump
// (qln/routing.go's VisualiseGraph) -- routing is an explicit Non-goal
// here, so the same library is pointed at the channel state machine
// instead.
func handleDevChannelStateGraph(node *control.Node, id json.RawMessage, _ json.RawMessage) *Response {
	graph := gographviz.NewGraph()
	graph.SetName("channel_states")
	graph.SetDir(true)

	states := []channel.State{
		channel.StateOpening, channel.StateAwaitingLockin, channel.StateNormal,
		channel.StateShuttingDown, channel.StateClosingSigExchange, channel.StateClosingComplete,
		channel.StateAwaitingUnilateral, channel.StateFundingSpendSeen, channel.StateOnchain,
	}

	for _, s := range states {
		graph.AddNode("channel_states", s.String(), nil)
	}
	for _, from := range states {
		for _, to := range states {
			if from == to || !channel.CanTransition(from, to) {
				continue
			}
			graph.AddEdge(from.String(), to.String(), true, nil)
		}
	}

	return ok(id, map[string]interface{}{"dot": graph.String()})
}
