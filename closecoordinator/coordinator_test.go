package closecoordinator

import (
	"testing"
	"time"

	"github.com/btcsuite/btclog"
)

type fakeFailer struct {
	calls chan uint64
}

func (f *fakeFailer) FailPermanent(channelDBID uint64, reason string) error {
	f.calls <- channelDBID
	return nil
}

func TestResolveSuccess(t *testing.T) {
	co := New(btclog.Disabled, &fakeFailer{calls: make(chan uint64, 1)})
	cmd := co.Register(1, false, time.Minute)

	co.Resolve(1, Outcome{Txid: "abc", Type: "mutual"})

	res := <-cmd.Result()
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Outcome.Type != "mutual" {
		t.Fail()
	}
}

func TestChannelDestroyedFailsCommand(t *testing.T) {
	co := New(btclog.Disabled, &fakeFailer{calls: make(chan uint64, 1)})
	cmd := co.Register(1, false, time.Minute)

	co.ChannelDestroyed(1)

	res := <-cmd.Result()
	if res.Err == nil {
		t.Fail()
	}
}

func TestTimeoutWithoutForce(t *testing.T) {
	co := New(btclog.Disabled, &fakeFailer{calls: make(chan uint64, 1)})
	cmd := co.Register(1, false, 10*time.Millisecond)

	select {
	case res := <-cmd.Result():
		if res.Err == nil {
			t.Fail()
		}
	case <-time.After(time.Second):
		t.Fatal("command never resolved")
	}
}

func TestTimeoutWithForceFailsChannel(t *testing.T) {
	failer := &fakeFailer{calls: make(chan uint64, 1)}
	co := New(btclog.Disabled, failer)
	co.Register(1, true, 10*time.Millisecond)

	select {
	case id := <-failer.calls:
		if id != 1 {
			t.Fail()
		}
	case <-time.After(time.Second):
		t.Fatal("failer never invoked")
	}
}

func TestResolveIsExclusiveOfTimeout(t *testing.T) {
	co := New(btclog.Disabled, &fakeFailer{calls: make(chan uint64, 1)})
	cmd := co.Register(1, false, 20*time.Millisecond)

	co.Resolve(1, Outcome{Type: "mutual"})

	select {
	case res := <-cmd.Result():
		if res.Err != nil {
			t.Fail()
		}
	case <-time.After(time.Second):
		t.Fatal("command never resolved")
	}

	// Give the timer a chance to fire too; it must be a no-op since the
	// result channel already delivered and closed.
	time.Sleep(50 * time.Millisecond)
	if _, ok := <-cmd.Result(); ok {
		t.Fatal("command resolved twice")
	}
}
