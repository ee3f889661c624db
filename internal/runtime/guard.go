package runtime

import (
	"sync"

	"github.com/liguopeng80/clustercore/internal/clustererr"
)

// ScopedGuard is a named, non-reentrant mutual-exclusion guard. Entering it
// while another entry is live fails fast with clustererr.ErrAlreadyRunning
// rather than blocking, matching the spec's "AlreadyRunning" semantics;
// Exit always clears the held state, even if the protected work panics.
type ScopedGuard struct {
	name string
	mu   sync.Mutex
	held bool
}

// NewScopedGuard creates a guard identified by name (used only for error
// messages and logging).
func NewScopedGuard(name string) *ScopedGuard {
	return &ScopedGuard{name: name}
}

// Enter claims the guard or returns clustererr.ErrAlreadyRunning.
func (g *ScopedGuard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held {
		return clustererr.ErrAlreadyRunning
	}
	g.held = true
	return nil
}

// Exit releases the guard. Safe to call even if Enter was never
// successfully called; state is always left clear.
func (g *ScopedGuard) Exit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
}

// Run claims the guard, runs fn, and always releases it afterward,
// regardless of panic — the "guaranteed release on all exit paths"
// scoped-acquisition pattern from the spec.
func (g *ScopedGuard) Run(fn func() error) error {
	if err := g.Enter(); err != nil {
		return err
	}
	defer g.Exit()
	return fn()
}
