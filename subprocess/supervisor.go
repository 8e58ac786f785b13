// Package subprocess defines the contract the core consumes from the
// per-channel worker supervisor (§4.3): spawning a named worker role,
// framed request/response messaging, and termination delivery. The
// supervisor itself is an out-of-scope collaborator in the original
// design -- here it is realized as goroutines communicating over
// channels rather than real OS subprocesses, the idiomatic Go
// replacement for the source's subprocess-per-worker/IPC model.
package subprocess

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/btcsuite/btclog"
)

// Role names the protocol phase a worker drives for one channel.
type Role string

const (
	RoleChannel Role = "channel"
	RoleClosing Role = "closing"
	RoleOpening Role = "opening"
	RoleOnchain Role = "onchain"
)

// Transport is the triple of file-descriptor-like handles a worker needs:
// the peer's own connection, the gossip broadcast connection, and the
// append-only gossip store. Any of GossipConn/GossipStore may be nil for
// workers (e.g. closing, onchain) that don't participate in gossip.
type Transport struct {
	PeerConn    net.Conn
	GossipConn  net.Conn
	GossipStore *os.File
}

// ErrMsg is delivered to the channel's registered termination callback
// when its worker exits. A nil Transport means the worker crashed or the
// peer disconnected -- always a transient failure. A non-nil Transport
// carries the still-live peer connection alongside a protocol error the
// worker decided to report, which may or may not be recoverable. Closing
// is set instead when a closing-role worker terminated after reporting
// cooperative-close progress rather than a protocol error.
type ErrMsg struct {
	ChannelDBID uint64
	Transport   *Transport
	Message     []byte
	Closing     *ClosingReport
}

// ClosingReport is what a RoleClosing worker hands back on termination:
// either the shutdown handshake finished and sig-exchange can begin, or
// sig-exchange itself finished and FinalTxWire/CounterpartySig carry the
// negotiated mutual-close transaction. Kept as raw wire bytes rather than
// a *wire.MsgTx so this package stays free of Bitcoin-specific imports,
// matching ErrMsg.Message's own byte-oriented style.
type ClosingReport struct {
	ShutdownComplete bool
	FinalTxWire      []byte
	CounterpartySig  []byte
}

// Callback is invoked with a worker's reply to a request, plus any file
// handles it returned alongside it.
type Callback func(reply []byte, handles []*os.File)

type terminationSignal struct {
	transport *Transport
	message   []byte
	closing   *ClosingReport
}

type workerMsg struct {
	payload  []byte
	callback Callback
}

// Worker is a handle to one running (goroutine-backed) worker.
type Worker struct {
	Role        Role
	ChannelDBID uint64

	mu    sync.Mutex
	alive bool

	transport Transport
	inbox     chan workerMsg
	term      chan terminationSignal
}

// Alive reports whether the worker is still running.
func (w *Worker) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive
}

// Supervisor is the contract §4.3 describes: spawn typed workers, send
// them framed messages, and learn when they terminate.
type Supervisor interface {
	Spawn(role Role, channelDBID uint64, t Transport, onTerminate func(ErrMsg)) (*Worker, error)
	Send(channelDBID uint64, payload []byte, cb Callback) error
	Terminate(channelDBID uint64, errMsg []byte)
	ReportProtocolError(channelDBID uint64, msg []byte) error
	ReportShutdownComplete(channelDBID uint64) error
	ReportClosingComplete(channelDBID uint64, finalTxWire, counterpartySig []byte) error
}

// LocalSupervisor is the goroutine-backed Supervisor implementation this
// node actually runs: each "worker" is a goroutine waiting on a
// termination signal, standing in for what would otherwise be a real
// subprocess speaking a length-prefixed wire protocol over its own
// socket.
type LocalSupervisor struct {
	log btclog.Logger

	mu      sync.Mutex
	workers map[uint64]*Worker
	onTerm  map[uint64]func(ErrMsg)
}

// NewLocalSupervisor creates an empty supervisor.
func NewLocalSupervisor(log btclog.Logger) *LocalSupervisor {
	return &LocalSupervisor{
		log:     log,
		workers: map[uint64]*Worker{},
		onTerm:  map[uint64]func(ErrMsg){},
	}
}

// Spawn starts a worker goroutine for channelDBID under the given role,
// owning t for the worker's lifetime. Only one worker may be attached to
// a channel at a time.
func (s *LocalSupervisor) Spawn(role Role, channelDBID uint64, t Transport, onTerminate func(ErrMsg)) (*Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workers[channelDBID]; exists {
		return nil, fmt.Errorf("channel %d already has a worker attached", channelDBID)
	}

	w := &Worker{
		Role:        role,
		ChannelDBID: channelDBID,
		alive:       true,
		transport:   t,
		inbox:       make(chan workerMsg, 8),
		term:        make(chan terminationSignal, 1),
	}
	s.workers[channelDBID] = w
	s.onTerm[channelDBID] = onTerminate

	s.log.Debugf("spawned %s worker for channel %d", role, channelDBID)

	go s.run(w)

	return w, nil
}

func (s *LocalSupervisor) run(w *Worker) {
	sig := <-w.term

	w.mu.Lock()
	w.alive = false
	w.mu.Unlock()

	s.mu.Lock()
	cb := s.onTerm[w.ChannelDBID]
	delete(s.workers, w.ChannelDBID)
	delete(s.onTerm, w.ChannelDBID)
	s.mu.Unlock()

	if cb != nil {
		cb(ErrMsg{ChannelDBID: w.ChannelDBID, Transport: sig.transport, Message: sig.message, Closing: sig.closing})
	}
}

// Send delivers payload to the worker attached to channelDBID, invoking
// cb with its reply once available. Returns an error if no worker is
// attached.
//
// LocalSupervisor's worker goroutine never drains inbox -- it only ever
// blocks on term -- so today every Send (channel_send_shutdown,
// channel_update) just buffers in the channel until the worker
// terminates and its callback and payload are discarded. A real
// subprocess-backed worker would consume inbox and reply over cb.
func (s *LocalSupervisor) Send(channelDBID uint64, payload []byte, cb Callback) error {
	s.mu.Lock()
	w, ok := s.workers[channelDBID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no worker attached to channel %d", channelDBID)
	}
	if !w.Alive() {
		return fmt.Errorf("worker for channel %d already terminated", channelDBID)
	}
	select {
	case w.inbox <- workerMsg{payload: payload, callback: cb}:
		return nil
	default:
		return fmt.Errorf("worker for channel %d is not draining its inbox", channelDBID)
	}
}

// Terminate tears a worker down, delivering errMsg to the channel's
// termination callback with no live transport -- the crash/disconnect
// path, always transient.
func (s *LocalSupervisor) Terminate(channelDBID uint64, errMsg []byte) {
	s.mu.Lock()
	w, ok := s.workers[channelDBID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.term <- terminationSignal{message: errMsg}:
	default:
	}
}

// ReportProtocolError tears a worker down while handing its still-live
// transport back to the core, the path taken when a worker detects a
// protocol violation rather than crashing outright. The caller decides,
// from the channel's state and the message content, whether this is
// recoverable (transient) or fatal to the channel (permanent).
func (s *LocalSupervisor) ReportProtocolError(channelDBID uint64, msg []byte) error {
	s.mu.Lock()
	w, ok := s.workers[channelDBID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no worker attached to channel %d", channelDBID)
	}
	select {
	case w.term <- terminationSignal{transport: &w.transport, message: msg}:
		return nil
	default:
		return fmt.Errorf("worker for channel %d already terminating", channelDBID)
	}
}

// ReportShutdownComplete tears a worker down after it finishes the
// cooperative-close shutdown handshake, handing the still-live transport
// back so the core can spawn the RoleClosing worker that drives
// sig-exchange (§4.4 SHUTTING_DOWN -> CLOSING_SIGEXCHANGE).
func (s *LocalSupervisor) ReportShutdownComplete(channelDBID uint64) error {
	s.mu.Lock()
	w, ok := s.workers[channelDBID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no worker attached to channel %d", channelDBID)
	}
	select {
	case w.term <- terminationSignal{transport: &w.transport, closing: &ClosingReport{ShutdownComplete: true}}:
		return nil
	default:
		return fmt.Errorf("worker for channel %d already terminating", channelDBID)
	}
}

// ReportClosingComplete tears a RoleClosing worker down once it has
// negotiated the final mutual-close transaction, handing the signed wire
// bytes and counterparty signature back so the core can finish
// CLOSING_SIGEXCHANGE -> CLOSING_COMPLETE and drop to chain cooperatively
// (§4.4, §4.5, §4.6 "mutual" outcome).
func (s *LocalSupervisor) ReportClosingComplete(channelDBID uint64, finalTxWire, counterpartySig []byte) error {
	s.mu.Lock()
	w, ok := s.workers[channelDBID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no worker attached to channel %d", channelDBID)
	}
	select {
	case w.term <- terminationSignal{closing: &ClosingReport{FinalTxWire: finalTxWire, CounterpartySig: counterpartySig}}:
		return nil
	default:
		return fmt.Errorf("worker for channel %d already terminating", channelDBID)
	}
}
