package runtime

import (
	"errors"
	"testing"

	"github.com/liguopeng80/clustercore/internal/clustererr"
)

func TestScopedGuardRejectsReentry(t *testing.T) {
	g := NewScopedGuard("test")

	if err := g.Enter(); err != nil {
		t.Fatalf("first Enter: %v", err)
	}
	if err := g.Enter(); !errors.Is(err, clustererr.ErrAlreadyRunning) {
		t.Fatalf("second Enter = %v, want ErrAlreadyRunning", err)
	}

	g.Exit()
	if err := g.Enter(); err != nil {
		t.Fatalf("Enter after Exit: %v", err)
	}
}

func TestScopedGuardRunClearsOnPanic(t *testing.T) {
	g := NewScopedGuard("test")

	func() {
		defer func() { _ = recover() }()
		_ = g.Run(func() error { panic("boom") })
	}()

	if err := g.Enter(); err != nil {
		t.Fatalf("guard should be released after a panicking Run: %v", err)
	}
}

func TestScopedGuardRunPropagatesError(t *testing.T) {
	g := NewScopedGuard("test")
	sentinel := errors.New("sentinel")

	err := g.Run(func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run error = %v, want sentinel", err)
	}

	if err := g.Enter(); err != nil {
		t.Fatalf("guard should be released after Run returns: %v", err)
	}
}
