// Package client implements the cluster client role: maintaining a
// routing table of currently-active working members by watching the
// coordination-service working root, per spec.md §4.G.
package client

import (
	"context"
	"fmt"
	"strconv"

	"github.com/liguopeng80/clustercore/internal/cluster/allocator"
	"github.com/liguopeng80/clustercore/internal/cluster/config"
	"github.com/liguopeng80/clustercore/internal/clustererr"
	"github.com/liguopeng80/clustercore/internal/coordclient"
	"github.com/liguopeng80/clustercore/internal/logging"
)

// CoordClient is the subset of *coordclient.Client routing-table
// maintenance depends on, narrow enough to substitute a fake coordination
// service in tests without a live etcd server.
type CoordClient interface {
	EnsureNode(ctx context.Context, path string) error
	ChildrenWatch(ctx context.Context, root string, fn func(children []string)) (cancel func(), err error)
	Children(ctx context.Context, root string) ([]string, error)
	Get(ctx context.Context, path string) ([]byte, bool, error)
	DataWatch(ctx context.Context, path string, fn func(data []byte, exists bool)) (cancel func(), err error)
}

// Hooks are the application callbacks a Role drives. OnNodesChanged is
// advisory, per spec.md §6's onClusterNodesChanged.
type Hooks struct {
	OnNodesChanged func(names []string)
}

// Role maintains allocator's managed-node set by watching the
// coordination-service working root, per spec.md §4.G. Start should be
// called once the coordination client reports Connected (step 1: "wait
// for coordination-service Good").
type Role struct {
	cfg       *config.ClusterConfig
	client    CoordClient
	allocator allocator.NodeSet
	hooks     Hooks
	log       logging.Logger

	childOf map[string]string // managed name -> full child (with sequence suffix)
	cancels map[string]func() // managed name -> data-watch cancel
}

// New creates a Role that maintains nodeSet against cfg's working root.
func New(cfg *config.ClusterConfig, client CoordClient, nodeSet allocator.NodeSet, hooks Hooks, log logging.Logger) *Role {
	return &Role{
		cfg:       cfg,
		client:    client,
		allocator: nodeSet,
		hooks:     hooks,
		log:       log,
		childOf:   make(map[string]string),
		cancels:   make(map[string]func()),
	}
}

// Start ensures the coordination-service paths exist and installs the
// working-root children-watch, per spec.md §4.G steps 2–3.
func (r *Role) Start(ctx context.Context) error {
	if err := r.client.EnsureNode(ctx, r.cfg.WorkingRoot); err != nil {
		return err
	}
	if err := r.client.EnsureNode(ctx, r.cfg.AliveRoot); err != nil {
		return err
	}

	_, err := r.client.ChildrenWatch(ctx, r.cfg.WorkingRoot, func(children []string) {
		r.onChildrenChanged(ctx, children)
	})
	if err != nil {
		return fmt.Errorf("watch working root: %w", err)
	}

	children, err := r.client.Children(ctx, r.cfg.WorkingRoot)
	if err != nil {
		return fmt.Errorf("list working root: %w", err)
	}
	r.onChildrenChanged(ctx, children)

	return nil
}

func (r *Role) onChildrenChanged(ctx context.Context, children []string) {
	if len(children) > r.cfg.MaxWorkingNodes {
		children = children[:r.cfg.MaxWorkingNodes]
	}

	newChildOf := make(map[string]string, len(children))
	for _, child := range children {
		newChildOf[coordclient.NamePart(child)] = child
	}

	for oldName := range r.childOf {
		if _, stillActive := newChildOf[oldName]; stillActive {
			continue
		}
		r.allocator.Remove(oldName)
		if cancel, ok := r.cancels[oldName]; ok {
			cancel()
			delete(r.cancels, oldName)
		}
		delete(r.childOf, oldName)
	}

	var addedNames []string
	for name, child := range newChildOf {
		if _, known := r.childOf[name]; known {
			continue
		}
		if err := r.allocator.Add(name, allocator.UnknownSlot); err != nil {
			r.log.Warnf("add managed node %s: %v", name, err)
			continue
		}
		r.childOf[name] = child
		addedNames = append(addedNames, name)

		path := r.cfg.WorkingRoot + "/" + child
		cancel, err := r.client.DataWatch(ctx, path, func(data []byte, exists bool) {
			r.onDataChanged(name, data, exists)
		})
		if err != nil {
			r.log.Warnf("data-watch %s: %v", path, err)
			continue
		}
		r.cancels[name] = cancel

		if data, exists, err := r.client.Get(ctx, path); err == nil {
			r.onDataChanged(name, data, exists)
		}
	}

	if len(addedNames) > 0 && r.hooks.OnNodesChanged != nil {
		r.hooks.OnNodesChanged(r.allocator.Names())
	}
}

func (r *Role) onDataChanged(name string, data []byte, exists bool) {
	if !exists || len(data) == 0 {
		return
	}

	idx, err := strconv.Atoi(string(data))
	if err != nil || idx < 0 {
		r.log.Warnf("%v: member %s published %q", clustererr.ErrInvalidSlotData, name, string(data))
		return
	}

	if !r.allocator.IsManaged(name) {
		return
	}
	if err := r.allocator.Update(name, idx); err != nil {
		r.log.Warnf("update managed node %s: %v", name, err)
	}
}
