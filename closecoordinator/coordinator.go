// Package closecoordinator tracks user "close" requests against channels,
// resolving each one exactly once along exactly one of three mutually
// exclusive paths: success, channel-destroyed, or timeout (§4.6). It
// replaces the original's parent-arena destructor chains with an explicit
// per-command state machine, per the "arena-scoped destructors -> explicit
// lifecycle" design note.
package closecoordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
)

// Outcome is what a close command resolves to on success.
type Outcome struct {
	TxHex string
	Txid  string
	Type  string // "mutual" or "unilateral"
}

// Result is delivered exactly once on a Command's result channel.
type Result struct {
	Outcome *Outcome
	Err     error
}

// PermanentFailer is the slice of the control plane a timed-out, forced
// close command needs: the ability to drive a channel to AWAITING_UNILATERAL
// and drop to chain. Declared locally so this package never imports the
// central control package; control implements this interface structurally.
type PermanentFailer interface {
	FailPermanent(channelDBID uint64, reason string) error
}

// Command is one registered close request.
type Command struct {
	ChannelDBID uint64
	Force       bool
	Deadline    time.Time

	mu       sync.Mutex
	resolved bool
	resultCh chan Result

	timer *time.Timer
}

func (c *Command) resolve(res Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return false
	}
	c.resolved = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.resultCh <- res
	close(c.resultCh)
	return true
}

// Result returns the channel the command's eventual (single) result will
// arrive on.
func (c *Command) Result() <-chan Result {
	return c.resultCh
}

// Coordinator owns every currently-pending close command, keyed by the
// channel it targets.
type Coordinator struct {
	log    btclog.Logger
	failer PermanentFailer

	mu        sync.Mutex
	byChannel map[uint64][]*Command
}

// New creates a Coordinator. failer is consulted only by timed-out,
// forced commands.
func New(log btclog.Logger, failer PermanentFailer) *Coordinator {
	return &Coordinator{
		log:       log,
		failer:    failer,
		byChannel: map[uint64][]*Command{},
	}
}

// Register attaches a new close command to channelDBID with the given
// force flag and deadline, and arms its timeout timer.
func (co *Coordinator) Register(channelDBID uint64, force bool, timeout time.Duration) *Command {
	cmd := &Command{
		ChannelDBID: channelDBID,
		Force:       force,
		Deadline:    time.Now().Add(timeout),
		resultCh:    make(chan Result, 1),
	}

	co.mu.Lock()
	co.byChannel[channelDBID] = append(co.byChannel[channelDBID], cmd)
	co.mu.Unlock()

	cmd.timer = time.AfterFunc(timeout, func() { co.timeout(cmd) })

	return cmd
}

// Cancel detaches cmd without resolving it with any result, the path
// taken when the issuing RPC connection's cancellation should not itself
// be treated as a failure (§5: "A dropped RPC connection does not kill
// its pending command").
func (co *Coordinator) Cancel(cmd *Command) {
	co.detach(cmd)
}

func (co *Coordinator) detach(cmd *Command) {
	co.mu.Lock()
	defer co.mu.Unlock()
	cmds := co.byChannel[cmd.ChannelDBID]
	for i, c := range cmds {
		if c == cmd {
			co.byChannel[cmd.ChannelDBID] = append(cmds[:i], cmds[i+1:]...)
			break
		}
	}
	if len(co.byChannel[cmd.ChannelDBID]) == 0 {
		delete(co.byChannel, cmd.ChannelDBID)
	}
}

// Resolve completes every pending command against channelDBID with the
// given outcome, atomically within one call (§5: "either all pending
// commands for that channel are resolved in the same loop turn, or
// none").
func (co *Coordinator) Resolve(channelDBID uint64, outcome Outcome) {
	co.mu.Lock()
	cmds := append([]*Command(nil), co.byChannel[channelDBID]...)
	delete(co.byChannel, channelDBID)
	co.mu.Unlock()

	for _, cmd := range cmds {
		o := outcome
		cmd.resolve(Result{Outcome: &o})
	}
}

// ChannelDestroyed fails every pending command against channelDBID with
// "Channel forgotten before proper close", the destructor-on-channel path.
func (co *Coordinator) ChannelDestroyed(channelDBID uint64) {
	co.mu.Lock()
	cmds := append([]*Command(nil), co.byChannel[channelDBID]...)
	delete(co.byChannel, channelDBID)
	co.mu.Unlock()

	for _, cmd := range cmds {
		cmd.resolve(Result{Err: fmt.Errorf("Channel forgotten before proper close")})
	}
}

// timeout is invoked by a command's timer. If the command was registered
// with force=true, it drives the channel to permanent failure (which will
// eventually call Resolve via drop_to_chain); otherwise it fails the
// command directly while leaving the channel's own close negotiation to
// continue.
func (co *Coordinator) timeout(cmd *Command) {
	cmd.mu.Lock()
	alreadyResolved := cmd.resolved
	cmd.mu.Unlock()
	if alreadyResolved {
		return
	}

	if cmd.Force {
		co.log.Infof("close command for channel %d timed out with force, failing channel permanently", cmd.ChannelDBID)
		if err := co.failer.FailPermanent(cmd.ChannelDBID, "Forcibly closed by 'close' command timeout"); err != nil {
			co.log.Errorf("failing channel %d permanently after close timeout: %v", cmd.ChannelDBID, err)
		}
		return
	}

	co.detach(cmd)
	cmd.resolve(Result{Err: fmt.Errorf("Channel close negotiation not finished before timeout")})
}
