// Package hookclient defines the wire contract for the peer_connected
// plugin hook (§6.2): the payload sent to a plugin and the verdict shapes
// it may reply with. The plugin transport itself is out of scope; this
// package only fixes the shapes so the control plane and any transport
// implementation agree on them.
package hookclient

import "encoding/json"

// PeerInfo is the peer description sent to the plugin.
type PeerInfo struct {
	ID              string `json:"id"`
	Addr            string `json:"addr"`
	GlobalFeatures  string `json:"globalfeatures"`
	LocalFeatures   string `json:"localfeatures"`
}

// PeerConnectedPayload is the outbound hook call.
type PeerConnectedPayload struct {
	Peer PeerInfo `json:"peer"`
}

// Verdict is a plugin's reply to peer_connected.
type Verdict struct {
	Result       string `json:"result"`
	ErrorMessage string `json:"error_message,omitempty"`
}

const (
	VerdictContinue   = "continue"
	VerdictDisconnect = "disconnect"
)

// Client dispatches the peer_connected hook and parses its reply. The
// actual RPC/transport used to reach a plugin process is out of scope;
// this is the interface the connect orchestrator programs against.
type Client interface {
	PeerConnected(payload PeerConnectedPayload) (Verdict, error)
}

// ParseVerdict validates a raw plugin reply against the two shapes the
// hook contract allows. Any other shape is a fatal, per §4.8 step 5.
func ParseVerdict(raw []byte) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, err
	}
	if v.Result != VerdictContinue && v.Result != VerdictDisconnect {
		return Verdict{}, &UnknownVerdictError{Raw: string(raw)}
	}
	return v, nil
}

// UnknownVerdictError signals a plugin returned a hook verdict this core
// does not understand. The connect orchestrator treats this as fatal.
type UnknownVerdictError struct {
	Raw string
}

func (e *UnknownVerdictError) Error() string {
	return "peer_connected hook returned an unrecognized verdict: " + e.Raw
}
