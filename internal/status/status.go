// Package status implements the server status controller: the event-driven
// state machine that tracks a service through
// UNKNOWN → WAITING → STARTING → RUNNING → STOPPING → STOPPED, per
// spec.md §4.D. Events are processed strictly one at a time off a buffered
// channel drained by a single goroutine, matching the "single-consumer
// event queue" requirement and the channel/goroutine idiom used by the
// rest of this codebase's processing loops.
package status

import (
	"sync"

	"github.com/liguopeng80/clustercore/internal/logging"
	"github.com/liguopeng80/clustercore/internal/service"
)

// State is one value of the ServerStatus enum.
type State int

const (
	Unknown State = iota
	Waiting
	Starting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive reports whether s is one of WAITING, STARTING, RUNNING.
func (s State) IsActive() bool {
	return s == Waiting || s == Starting || s == Running
}

// IsStandby reports whether s is one of STOPPING, STOPPED.
func (s State) IsStandby() bool {
	return s == Stopping || s == Stopped
}

// Event is one value of the ServerEvent enum.
type Event int

const (
	EventActive Event = iota
	EventStop
	EventExternalServiceChanged
	EventExternalServiceReady
	EventStartFailed
	EventStarted
	EventStopped
)

// Hooks are the application-supplied callbacks the controller invokes
// during transitions. All are optional; a nil hook is simply skipped.
type Hooks struct {
	// Init is the application start-up hook run on WAITING→STARTING. A
	// returned error produces a StartFailed event; success produces
	// Started.
	Init func() error
	// OnStatusChanged fires each time a handler sets the state, with the
	// new state. Events that leave the state unchanged do not fire it.
	OnStatusChanged func(State)
}

// Controller is the server status state machine. It owns an external
// service Registry to decide when EventExternalServiceReady should fire.
type Controller struct {
	log      logging.Logger
	registry *service.Registry
	hooks    Hooks

	events chan Event

	mu    sync.Mutex
	state State
}

// NewController creates a Controller in state UNKNOWN.
func NewController(registry *service.Registry, hooks Hooks, log logging.Logger) *Controller {
	c := &Controller{
		log:      log,
		registry: registry,
		hooks:    hooks,
		events:   make(chan Event, 64),
		state:    Unknown,
	}

	for _, svc := range registry.All() {
		c.WatchService(svc)
	}

	return c
}

// WatchService subscribes svc's status changes to this controller.
func (c *Controller) WatchService(svc *service.ExternalService) {
	svc.Subscribe(func(*service.ExternalService) {
		c.Submit(EventExternalServiceChanged)
	})
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether the controller is in RUNNING.
func (c *Controller) IsRunning() bool { return c.State() == Running }

// Submit enqueues an event for processing. Safe to call from any
// goroutine; never blocks the caller's own event handling since events
// queue rather than re-entering Run.
func (c *Controller) Submit(evt Event) {
	select {
	case c.events <- evt:
	default:
		// Queue saturated: the event is dropped, whatever its kind. Only
		// ExternalServiceChanged is harmless to lose this way, since
		// handling it re-evaluates current dependency state.
		c.log.Warnf("status event queue full, dropping event %d", evt)
	}
}

// Run drains the event queue until done fires. Exactly one handler runs at
// a time; a handler panic is recovered and logged and the event is
// considered consumed. A state change the handler made before the panic is
// not rolled back: a panic raised from OnStatusChanged leaves the
// controller in the state it was just moved to.
func (c *Controller) Run(done <-chan struct{}) {
	for {
		select {
		case evt := <-c.events:
			c.handle(evt)
		case <-done:
			return
		}
	}
}

func (c *Controller) handle(evt Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("status handler panic on event %d: %v", evt, r)
		}
	}()

	c.mu.Lock()
	current := c.state
	c.mu.Unlock()

	switch current {
	case Unknown:
		c.handleUnknown(evt)
	case Waiting:
		c.handleWaiting(evt)
	case Starting:
		c.handleStarting(evt)
	case Running:
		c.handleRunning(evt)
	case Stopping:
		c.handleStopping(evt)
	case Stopped:
		c.handleStopped(evt)
	}
}

func (c *Controller) handleUnknown(evt Event) {
	switch evt {
	case EventActive:
		c.activate()
	case EventStop:
		c.setState(Stopped)
	}
}

func (c *Controller) handleWaiting(evt Event) {
	switch evt {
	case EventStop:
		c.setState(Stopping)
	case EventExternalServiceChanged:
		if c.registry.AllCrucialGood() {
			c.Submit(EventExternalServiceReady)
		}
	case EventExternalServiceReady:
		c.setState(Starting)
		c.runInitHook()
	}
}

func (c *Controller) handleStarting(evt Event) {
	switch evt {
	case EventStop:
		c.setState(Stopping)
	case EventStarted:
		c.setState(Running)
	case EventStartFailed:
		// retry deps: drop back to WAITING and re-evaluate immediately.
		c.setState(Waiting)
		if c.registry.AllCrucialGood() {
			c.Submit(EventExternalServiceReady)
		}
	}
}

func (c *Controller) handleRunning(evt Event) {
	switch evt {
	case EventStop:
		c.setState(Stopping)
	case EventExternalServiceChanged:
		if !c.registry.AllCrucialGood() {
			c.setState(Waiting)
		}
	}
}

func (c *Controller) handleStopping(evt Event) {
	if evt == EventStopped {
		c.setState(Stopped)
	}
}

func (c *Controller) handleStopped(evt Event) {
	if evt == EventActive {
		c.activate()
	}
}

// activate enters WAITING and re-evaluates readiness, submitting
// ExternalServiceReady when every crucial dependency is already Good. It
// does not start any dependency and resets no other state: dependency
// startup is the caller's responsibility, and this controller only reacts
// to Enable/Disable.
func (c *Controller) activate() {
	c.setState(Waiting)
	if c.registry.AllCrucialGood() {
		c.Submit(EventExternalServiceReady)
	}
}

func (c *Controller) runInitHook() {
	if c.hooks.Init == nil {
		c.Submit(EventStarted)
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Errorf("init hook panic: %v", r)
				c.Submit(EventStartFailed)
			}
		}()

		if err := c.hooks.Init(); err != nil {
			c.log.Errorf("init hook failed: %v", err)
			c.Submit(EventStartFailed)
			return
		}
		c.Submit(EventStarted)
	}()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	if c.hooks.OnStatusChanged != nil {
		c.hooks.OnStatusChanged(s)
	}
}
