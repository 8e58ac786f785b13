package eventbus

import (
	"testing"
	"time"

	"github.com/btcsuite/btclog"
)

type fooEvent struct {
	msg   string
	async bool
}

func (fooEvent) Name() string { return "foo" }

func (e fooEvent) Flags() uint8 {
	if e.async {
		return FlagAsync
	}
	return FlagNormal
}

func TestBusSimple(t *testing.T) {
	bus := New(btclog.Disabled)
	m := "Hello, World!"
	x := ""

	bus.Subscribe("foo", func(e Event) HandleResult {
		x = e.(fooEvent).msg
		return HandleOK
	})

	ok, err := bus.Publish(fooEvent{msg: m})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fail()
	}
	if x != m {
		t.Fail()
	}
}

func TestBusCancel(t *testing.T) {
	bus := New(btclog.Disabled)

	bus.Subscribe("foo", func(e Event) HandleResult {
		return HandleCancel
	})

	ok, err := bus.Publish(fooEvent{msg: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fail()
	}
}

func TestBusAsync(t *testing.T) {
	bus := New(btclog.Disabled)
	c := make(chan uint8, 2)

	bus.Subscribe("foo", func(e Event) HandleResult {
		c <- 42
		return HandleOK
	})

	if _, err := bus.Publish(fooEvent{msg: "asdf", async: true}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-c:
		if r != 42 {
			t.Fail()
		}
	case <-time.After(time.Second):
		t.Errorf("async handler never ran")
	}
}

func TestBusUnknownEventIsNoop(t *testing.T) {
	bus := New(btclog.Disabled)
	ok, err := bus.Publish(fooEvent{msg: "nobody listening"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fail()
	}
}
