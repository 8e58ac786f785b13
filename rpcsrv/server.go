package rpcsrv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/btcsuite/btclog"

	"github.com/chainlatch/coreld/control"
)

// Handler answers one RPC method against node, given its raw params.
type Handler func(node *control.Node, id json.RawMessage, params json.RawMessage) *Response

// Server is the JSON-RPC 2.0 listener described in §6.1. It owns no
// channel/peer state itself; every handler call is a pass-through to the
// *control.Node it was constructed with.
type Server struct {
	log       btclog.Logger
	node      *control.Node
	developer bool
	handlers  map[string]Handler
}

// New builds a Server with the standard command surface (§4.9) registered,
// plus the developer command surface if developer is true.
func New(log btclog.Logger, node *control.Node, developer bool) *Server {
	s := &Server{
		log:       log,
		node:      node,
		developer: developer,
		handlers:  map[string]Handler{},
	}

	s.handlers["listpeers"] = handleListPeers
	s.handlers["close"] = handleClose
	s.handlers["disconnect"] = handleDisconnect
	s.handlers["setchannelfee"] = handleSetChannelFee
	s.handlers["getinfo"] = handleGetInfo

	if developer {
		s.handlers["dev-sign-last-tx"] = handleDevSignLastTx
		s.handlers["dev-fail"] = handleDevFail
		s.handlers["dev-reenable-commit"] = handleDevReenableCommit
		s.handlers["dev-forget-channel"] = handleDevForgetChannel
		s.handlers["dev-memleak"] = handleDevMemleak
		s.handlers["dev-channel-state-graph"] = handleDevChannelStateGraph
	}

	return s
}

// ListenAndServe accepts connections on network/addr (e.g. "unix",
// "/path/to/coreld.sock", or "tcp", "localhost:9835") until the listener
// is closed or an Accept error occurs.
func (s *Server) ListenAndServe(network, addr string) error {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("rpcsrv: listening on %s %s: %w", network, addr, err)
	}
	defer ln.Close()

	s.log.Infof("rpc listening on %s %s", network, addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serveConn(conn)
	}
}

// serveConn reads line-framed requests off conn until it closes, dispatching
// each to its handler and writing back a "\n\n"-terminated response.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.dispatch(append([]byte(nil), line...))

		out, err := json.Marshal(resp)
		if err != nil {
			s.log.Errorf("rpc: marshaling response: %v", err)
			continue
		}
		if _, err := conn.Write(append(out, '\n', '\n')); err != nil {
			s.log.Errorf("rpc: writing response: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return userError(nil, ErrCodeParse, "invalid JSON-RPC request: %v", err)
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		return userError(req.ID, ErrCodeUnknownMethod, "unknown method %q", req.Method)
	}

	return h(s.node, req.ID, req.Params)
}
