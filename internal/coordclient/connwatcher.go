package coordclient

import "sync"

// SessionState mirrors the coordination-service session states a client
// exposes to its observer, per spec.md §4.B.
type SessionState int

const (
	Initialized SessionState = iota
	Connecting
	Connected
	Suspended
	Closed
	Reconnecting
	ConnectionFailed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Suspended:
		return "suspended"
	case Closed:
		return "closed"
	case Reconnecting:
		return "reconnecting"
	case ConnectionFailed:
		return "connection_failed"
	default:
		return "initialized"
	}
}

// Observer receives the coordination client's session-state transitions,
// marshalled onto the primary loop before being invoked. Every field is
// optional.
type Observer struct {
	OnConnectionOpened    func()
	OnConnectionLost      func()
	OnConnectionSuspended func()
	OnConnectionFailed    func()
}

// connWatcher is the pure connection-state state machine, split out from
// Client so it can be driven and unit-tested without a live etcd server —
// the split the original's ZookeeperObserver/ZookeeperClient pairing made
// between "decide what the state transition means" and "own the network
// connection", carried forward here (see the supplemented-features note).
type connWatcher struct {
	mu       sync.Mutex
	state    SessionState
	observer Observer
}

func newConnWatcher(observer Observer) *connWatcher {
	return &connWatcher{state: Initialized, observer: observer}
}

func (w *connWatcher) current() SessionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// onDialing records that a connect attempt is in flight. No observer
// callback fires on this transition: only terminal outcomes (opened,
// suspended, lost, failed) are observable per spec.md §4.B.
func (w *connWatcher) onDialing() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Connected || w.state == Suspended {
		w.state = Reconnecting
	} else {
		w.state = Connecting
	}
}

// onOpened fires OnConnectionOpened unless this is a no-op transition (the
// session was already Connected).
func (w *connWatcher) onOpened() (fire bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Connected {
		return false
	}
	w.state = Connected
	return true
}

// onSuspended fires OnConnectionSuspended exactly once per Connected→lost
// transition that the client believes is recoverable (a lease-TTL-length
// gap between keepalive responses, without the keepalive channel itself
// closing).
func (w *connWatcher) onSuspended() (fire bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Connected {
		return false
	}
	w.state = Suspended
	return true
}

// onLost fires OnConnectionLost: the session is gone and a fresh connect
// (not a resume) is required.
func (w *connWatcher) onLost() (fire bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Closed {
		return false
	}
	w.state = Initialized
	return true
}

// onFailed fires OnConnectionFailed: a connect attempt (first-connect or
// reconnect) did not succeed.
func (w *connWatcher) onFailed() (fire bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Closed {
		return false
	}
	w.state = ConnectionFailed
	return true
}

func (w *connWatcher) onClosed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = Closed
}
