package status

import (
	"errors"
	"testing"
	"time"

	"github.com/liguopeng80/clustercore/internal/logging"
	"github.com/liguopeng80/clustercore/internal/service"
)

var errBoom = errors.New("boom")

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("controller never reached %s, stuck at %s", want, c.State())
}

func newTestController(t *testing.T, registry *service.Registry, hooks Hooks) (*Controller, func()) {
	t.Helper()
	c := NewController(registry, hooks, logging.Nop())
	done := make(chan struct{})
	go c.Run(done)
	return c, func() { close(done) }
}

func TestActivationWithNoDependenciesReachesRunning(t *testing.T) {
	registry := service.NewRegistry()
	c, stop := newTestController(t, registry, Hooks{})
	defer stop()

	c.Submit(EventActive)
	waitForState(t, c, Running)
}

func TestWaitsForCrucialDependency(t *testing.T) {
	registry := service.NewRegistry()
	dep := service.New("db", service.Crucial)
	registry.Register(dep)

	c, stop := newTestController(t, registry, Hooks{})
	defer stop()

	c.Submit(EventActive)
	waitForState(t, c, Waiting)

	dep.Enable()
	waitForState(t, c, Running)
}

func TestTrivialDependencyDoesNotBlockRunning(t *testing.T) {
	registry := service.NewRegistry()
	registry.Register(service.New("cache", service.Trivial))

	c, stop := newTestController(t, registry, Hooks{})
	defer stop()

	c.Submit(EventActive)
	waitForState(t, c, Running)
}

func TestCrucialDependencyBadDropsRunningToWaiting(t *testing.T) {
	registry := service.NewRegistry()
	dep := service.New("db", service.Crucial)
	registry.Register(dep)
	dep.Enable()

	c, stop := newTestController(t, registry, Hooks{})
	defer stop()

	c.Submit(EventActive)
	waitForState(t, c, Running)

	dep.Disable(&service.Issue{Name: "db", Desc: "connection reset"})
	waitForState(t, c, Waiting)
}

func TestInitHookFailureRetriesFromWaiting(t *testing.T) {
	registry := service.NewRegistry()
	attempts := 0
	hooks := Hooks{Init: func() error {
		attempts++
		if attempts == 1 {
			return errBoom
		}
		return nil
	}}

	c, stop := newTestController(t, registry, hooks)
	defer stop()

	c.Submit(EventActive)
	waitForState(t, c, Running)

	if attempts < 2 {
		t.Fatalf("expected init hook to be retried after failure, ran %d times", attempts)
	}
}

func TestStopTransitionsThroughStopping(t *testing.T) {
	registry := service.NewRegistry()
	c, stop := newTestController(t, registry, Hooks{})
	defer stop()

	c.Submit(EventActive)
	waitForState(t, c, Running)

	c.Submit(EventStop)
	waitForState(t, c, Stopping)

	c.Submit(EventStopped)
	waitForState(t, c, Stopped)
}

func TestHandlerPanicIsSwallowed(t *testing.T) {
	registry := service.NewRegistry()
	hooks := Hooks{OnStatusChanged: func(State) { panic("boom") }}

	c, stop := newTestController(t, registry, hooks)
	defer stop()

	c.Submit(EventActive)
	// The panic happens inside setState, called from handleUnknown via
	// activate; the controller's Run loop must survive it and keep
	// draining subsequent events.
	c.Submit(EventStop)
	c.Submit(EventStopped)
	waitForState(t, c, Stopped)
}
