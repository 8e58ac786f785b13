// Package eventbus is a small synchronous/async pub-sub bus used to carry
// node-wide notifications (peer connect/disconnect) to subscribers without making the control plane depend on them directly.
// It mirrors the teacher's eventbus package almost verbatim — that package
// already generalizes cleanly to any event-name-keyed fan-out, Lightning
// peer messages or otherwise.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btclog"
)

// HandleResult tells the bus whether a handler wants to veto the event.
type HandleResult uint8

const (
	// HandleOK means the event should proceed.
	HandleOK HandleResult = 0

	// HandleCancel means the event should be cancelled, if cancellable.
	HandleCancel HandleResult = 1
)

type handler struct {
	fn  func(Event) HandleResult
	mtx sync.Mutex
}

// Bus dispatches published events to registered handlers by event name.
type Bus struct {
	log      btclog.Logger
	mtx      sync.Mutex
	handlers map[string][]*handler
	evMtx    map[string]*sync.Mutex
}

// New creates an empty Bus.
func New(log btclog.Logger) *Bus {
	return &Bus{
		log:      log,
		handlers: map[string][]*handler{},
		evMtx:    map[string]*sync.Mutex{},
	}
}

// Subscribe registers a handler for the named event.
func (b *Bus) Subscribe(name string, fn func(Event) HandleResult) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if _, ok := b.handlers[name]; !ok {
		b.handlers[name] = nil
		b.evMtx[name] = &sync.Mutex{}
	}
	b.handlers[name] = append(b.handlers[name], &handler{fn: fn})
}

// Publish dispatches event to every handler registered for its name and
// returns whether it survived (true) or was cancelled by some handler
// (false). Async events always report true immediately.
func (b *Bus) Publish(event Event) (bool, error) {
	if err := sanityCheck(event); err != nil {
		return true, err
	}

	name := event.Name()

	b.mtx.Lock()
	evMtx, ok := b.evMtx[name]
	if !ok {
		b.mtx.Unlock()
		return true, nil
	}
	hs := append([]*handler(nil), b.handlers[name]...)
	b.mtx.Unlock()

	flags := event.Flags()
	async := flags&FlagAsync == FlagAsync
	uncancellable := flags&FlagUncancellable != 0

	if async {
		for _, h := range hs {
			go runHandler(h, event)
		}
		return true, nil
	}

	evMtx.Lock()
	defer evMtx.Unlock()

	ok2 := true
	for _, h := range hs {
		res := runHandlerSync(h, event)
		if res == HandleCancel && !uncancellable {
			ok2 = false
		}
	}
	return ok2, nil
}

func runHandler(h *handler, event Event) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.fn(event)
}

func runHandlerSync(h *handler, event Event) HandleResult {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.fn(event)
}

func sanityCheck(e Event) error {
	f := e.Flags()
	if f&FlagAsync == (FlagAsync &^ FlagUncancellable) {
		return fmt.Errorf("event %s flagged async but cancellable, that's invalid", e.Name())
	}
	return nil
}
