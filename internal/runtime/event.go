package runtime

import (
	"context"
	"sync"
)

// OneShotEvent is an awaitable completion that can be observed by multiple
// waiters and carries a value once notified. Unlike a raw channel close (a
// completion can only be consumed once per goroutine without extra
// bookkeeping), Wait may be called repeatedly and always sees the latched
// value once Notify has fired — this is the "completion that can be
// awaited by multiple observers and carries a value, created fresh for
// each activation" primitive called out in the design notes.
//
// A fresh OneShotEvent should be created for each WAITING→RUNNING
// activation rather than reused, matching that guidance.
type OneShotEvent struct {
	mu       sync.Mutex
	ch       chan struct{}
	fired    bool
	value    interface{}
	autoFire bool
}

// NewOneShotEvent creates an event. If autoReset is true, Notify always
// replaces the channel so a subsequent Wait blocks again until the next
// Notify — this is the "optionally auto-reset" variant from the spec.
func NewOneShotEvent(autoReset bool) *OneShotEvent {
	return &OneShotEvent{ch: make(chan struct{}), autoFire: autoReset}
}

// Wait blocks until Notify is called (or ctx is done), returning the value
// passed to Notify.
func (e *OneShotEvent) Wait(ctx context.Context) (interface{}, error) {
	e.mu.Lock()
	ch := e.ch
	if e.fired && !e.autoFire {
		v := e.value
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	select {
	case <-ch:
		e.mu.Lock()
		v := e.value
		e.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify wakes every current waiter with value, once. For an auto-reset
// event, it also rearms the event so the next Wait blocks until the
// following Notify.
func (e *OneShotEvent) Notify(value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.value = value
	e.fired = true
	close(e.ch)

	if e.autoFire {
		e.ch = make(chan struct{})
		e.fired = false
	}
}

// Pulse wakes current waiters without latching any state: waiters blocked
// in Wait right now are released with a nil value, but a Wait call made
// afterwards blocks again regardless of whether Notify/Pulse was ever
// called before.
func (e *OneShotEvent) Pulse() {
	e.mu.Lock()
	old := e.ch
	alreadyClosed := e.fired
	e.ch = make(chan struct{})
	e.fired = false
	e.value = nil
	e.mu.Unlock()

	if !alreadyClosed {
		close(old)
	}
}
