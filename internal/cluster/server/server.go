// Package server implements the cluster server role: the join protocol by
// which a process claims a gap-free integer slot inside a named working
// cluster, per spec.md §4.F.
package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/liguopeng80/clustercore/internal/cluster/config"
	"github.com/liguopeng80/clustercore/internal/clustererr"
	"github.com/liguopeng80/clustercore/internal/coordclient"
	"github.com/liguopeng80/clustercore/internal/logging"
	"github.com/liguopeng80/clustercore/internal/runtime"
)

// lockAcquireTimeout bounds how long a single slot-pick attempt waits on
// the cluster lock before giving up and waiting for the next watch fire,
// per spec.md §4.F's "if lock acquisition times out" failure semantics.
const lockAcquireTimeout = 10 * time.Second

// CoordClient is the subset of *coordclient.Client the join protocol
// depends on, narrow enough to substitute a fake coordination service in
// tests without a live etcd server.
type CoordClient interface {
	EnsureNode(ctx context.Context, path string) error
	ChildrenWatch(ctx context.Context, root string, fn func(children []string)) (cancel func(), err error)
	CreateEphemeralSequential(ctx context.Context, root, name string) (string, error)
	Children(ctx context.Context, root string) ([]string, error)
	Get(ctx context.Context, path string) ([]byte, bool, error)
	PutData(ctx context.Context, path string, data []byte) error
	CreateLock(root, name string) coordclient.Locker
}

// Hooks are the application callbacks a Role drives, per spec.md §6's
// onClusterReady/onClusterLost control events.
type Hooks struct {
	// OnReady fires once per activation, with the claimed slot index.
	OnReady func(slot int)
	// OnLost fires when OnSessionLost is called while the member is
	// RUNNING. Watch fires received while RUNNING are ignored and never
	// fire it.
	OnLost func()
}

// Role drives the join protocol for one process. Create with New, then
// Start once the coordination client is connected.
type Role struct {
	cfg       *config.ClusterConfig
	clusterID string
	client    CoordClient
	loop      *runtime.Loop
	hooks     Hooks
	log       logging.Logger

	guard *runtime.ScopedGuard

	running bool
	slot    int
}

// New creates a Role for clusterID under cfg, using client as the
// coordination-service handle and loop to marshal join-protocol outcomes
// back onto the primary loop (lock acquisition and slot computation run on
// their own goroutine, matching the spec's "lock acquire() is a suspension
// point" rule — it must never block the primary loop).
func New(cfg *config.ClusterConfig, clusterID string, client CoordClient, loop *runtime.Loop, hooks Hooks, log logging.Logger) *Role {
	return &Role{
		cfg:       cfg,
		clusterID: clusterID,
		client:    client,
		loop:      loop,
		hooks:     hooks,
		log:       log,
		guard:     runtime.NewScopedGuard("join-protocol"),
		slot:      -1,
	}
}

// Start runs steps 1–3 of the join protocol: ensure the coordination-service
// paths exist, publish an alive marker, install the working-root
// children-watch, and create this process's own candidate node.
func (r *Role) Start(ctx context.Context) error {
	if err := r.client.EnsureNode(ctx, r.cfg.WorkingRoot); err != nil {
		return err
	}
	if err := r.client.EnsureNode(ctx, r.cfg.AliveRoot); err != nil {
		return err
	}

	if err := r.ensureAliveNode(ctx); err != nil {
		r.log.Warnf("alive marker publish failed: %v", err)
	}

	cancel, err := r.client.ChildrenWatch(ctx, r.cfg.WorkingRoot, func(children []string) {
		r.onChildrenChanged(ctx, children)
	})
	if err != nil {
		return fmt.Errorf("watch working root: %w", err)
	}
	_ = cancel

	if _, err := r.client.CreateEphemeralSequential(ctx, r.cfg.WorkingRoot, r.clusterID); err != nil {
		return fmt.Errorf("create working candidate: %w", err)
	}

	children, err := r.client.Children(ctx, r.cfg.WorkingRoot)
	if err != nil {
		return fmt.Errorf("list working root: %w", err)
	}
	r.onChildrenChanged(ctx, children)

	return nil
}

// ensureAliveNode publishes an ephemeral liveness marker under alive_root,
// independent of working-queue status. Supplements spec.md: the original
// implementation's zk_create_alive_node does this unconditionally on
// coordination-service connect, giving operators a liveness signal
// distinct from "is a working member" — dropped by the distillation but
// cheap and natural to carry here.
func (r *Role) ensureAliveNode(ctx context.Context) error {
	_, err := r.client.CreateEphemeralSequential(ctx, r.cfg.AliveRoot, r.clusterID)
	return err
}

// IsRunning reports whether this role currently holds a claimed slot.
func (r *Role) IsRunning() bool {
	return r.running
}

// Slot returns the currently-claimed slot index, or -1 if not running.
func (r *Role) Slot() int {
	return r.slot
}

func (r *Role) onChildrenChanged(ctx context.Context, children []string) {
	if r.running {
		return
	}

	if len(children) > r.cfg.MaxWorkingNodes {
		children = children[:r.cfg.MaxWorkingNodes]
	}

	activeNames := make(map[string]string) // name -> full child
	var order []string
	for _, child := range children {
		name := coordclient.NamePart(child)
		activeNames[name] = child
		order = append(order, name)
	}

	if _, ok := activeNames[r.clusterID]; !ok {
		return
	}

	go r.pickSlot(ctx, order, activeNames)
}

// pickSlot runs the lock-guarded slot-selection work on its own goroutine
// (lock Acquire blocks, a suspension point that must never run on the
// primary loop) and marshals the outcome back via loop.PostToPrimary.
func (r *Role) pickSlot(ctx context.Context, activeOrder []string, activeNames map[string]string) {
	if err := r.guard.Enter(); err != nil {
		return // a slot-pick attempt is already in flight
	}
	defer r.guard.Exit()

	lockCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	lock := r.client.CreateLock(r.cfg.LockPath("working-mode"), r.clusterID)

	var chosen = -1
	err := lock.Run(lockCtx, func(ctx context.Context) error {
		slots := make([]string, r.cfg.MaxWorkingNodes)
		for _, name := range activeOrder {
			if name == r.clusterID {
				continue
			}
			child := activeNames[name]
			data, exists, err := r.client.Get(ctx, r.cfg.WorkingRoot+"/"+child)
			if err != nil {
				return fmt.Errorf("read peer data for %s: %w", name, err)
			}
			if !exists || len(data) == 0 {
				continue
			}
			idx, perr := strconv.Atoi(string(data))
			if perr != nil || idx < 0 || idx >= len(slots) {
				r.log.Warnf("%v: peer %s published %q", clustererr.ErrInvalidSlotData, name, string(data))
				continue
			}
			slots[idx] = name
		}

		for i, holder := range slots {
			if holder == "" {
				chosen = i
				break
			}
		}
		if chosen < 0 {
			return fmt.Errorf("no free slot among %d", len(slots))
		}

		ownChild := activeNames[r.clusterID]
		return r.client.PutData(ctx, r.cfg.WorkingRoot+"/"+ownChild, []byte(strconv.Itoa(chosen)))
	})

	if err != nil {
		r.log.Warnf("slot pick attempt failed, will retry on next watch fire: %v", err)
		return
	}

	r.loop.PostToPrimary(func() {
		if r.running {
			return // an earlier slot-pick attempt already activated this role
		}
		r.running = true
		r.slot = chosen
		if r.hooks.OnReady != nil {
			r.hooks.OnReady(chosen)
		}
	})
}

// OnSessionLost must be called when the coordination-service session is
// lost: every ephemeral node this process owned is gone, so the role
// resets to WAITING and the application is notified via OnLost. The join
// protocol is re-run from Start on reconnect.
func (r *Role) OnSessionLost() {
	wasRunning := r.running
	r.running = false
	r.slot = -1
	if wasRunning && r.hooks.OnLost != nil {
		r.hooks.OnLost()
	}
}
