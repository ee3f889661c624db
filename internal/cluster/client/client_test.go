package client

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liguopeng80/clustercore/internal/cluster/allocator"
	"github.com/liguopeng80/clustercore/internal/cluster/config"
	"github.com/liguopeng80/clustercore/internal/logging"
)

// fakeCoord is an in-memory stand-in for *coordclient.Client covering only
// the operations routing-table maintenance uses: children listing/watch
// and per-child data read/watch/write.
type fakeCoord struct {
	mu          sync.Mutex
	data        map[string]string
	children    map[string][]string // root -> full child names
	childWatch  map[string][]func([]string)
	dataWatch   map[string][]func([]byte, bool)
}

func newFakeCoord() *fakeCoord {
	return &fakeCoord{
		data:       make(map[string]string),
		children:   make(map[string][]string),
		childWatch: make(map[string][]func([]string)),
		dataWatch:  make(map[string][]func([]byte, bool)),
	}
}

func (f *fakeCoord) EnsureNode(ctx context.Context, path string) error { return nil }

func (f *fakeCoord) ChildrenWatch(ctx context.Context, root string, fn func([]string)) (func(), error) {
	f.mu.Lock()
	f.childWatch[root] = append(f.childWatch[root], fn)
	f.mu.Unlock()
	return func() {}, nil
}

func (f *fakeCoord) Children(ctx context.Context, root string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return relative(root, f.children[root]), nil
}

func (f *fakeCoord) Get(ctx context.Context, path string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[path]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (f *fakeCoord) DataWatch(ctx context.Context, path string, fn func([]byte, bool)) (func(), error) {
	f.mu.Lock()
	f.dataWatch[path] = append(f.dataWatch[path], fn)
	f.mu.Unlock()
	return func() {}, nil
}

// addChild registers a new child under root and fires that root's
// children-watch callbacks, the way a server Role joining would.
func (f *fakeCoord) addChild(root, full string) {
	f.mu.Lock()
	f.children[root] = append(f.children[root], full)
	snapshot := append([]string(nil), f.children[root]...)
	watchers := append([]func([]string){}, f.childWatch[root]...)
	f.mu.Unlock()

	for _, w := range watchers {
		w(relative(root, snapshot))
	}
}

// putData writes a child's data and fires that path's data-watch callbacks.
func (f *fakeCoord) putData(path string, value string) {
	f.mu.Lock()
	f.data[path] = value
	watchers := append([]func([]byte, bool){}, f.dataWatch[path]...)
	f.mu.Unlock()

	for _, w := range watchers {
		w([]byte(value), true)
	}
}

func relative(root string, full []string) []string {
	rel := make([]string, len(full))
	for i, c := range full {
		rel[i] = strings.TrimPrefix(c, root+"/")
	}
	return rel
}

func testConfig(maxWorkingNodes int) *config.ClusterConfig {
	return &config.ClusterConfig{
		ServiceName:     "svcA",
		MaxWorkingNodes: maxWorkingNodes,
		WorkingRoot:     "/working/svcA",
		AliveRoot:       "/alive/svcA",
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestNewMemberIsAddedAndSeeded(t *testing.T) {
	coord := newFakeCoord()
	cfg := testConfig(3)
	nodeSet := allocator.NewModulo(cfg.MaxWorkingNodes)

	var notified []string
	var mu sync.Mutex
	role := New(cfg, coord, nodeSet, Hooks{
		OnNodesChanged: func(names []string) {
			mu.Lock()
			notified = append(notified, names...)
			mu.Unlock()
		},
	}, logging.Nop())

	if err := role.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	full := cfg.WorkingRoot + "/node-a.0000000001"
	coord.putData(full, "0")
	coord.addChild(cfg.WorkingRoot, full)

	waitUntil(t, time.Second, func() bool { return nodeSet.IsManaged("node-a") })

	if got := nodeSet.Get(0); got != "node-a" {
		t.Errorf("Get(0) = %q, want node-a", got)
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, n := range notified {
		if n == "node-a" {
			found = true
		}
	}
	if !found {
		t.Errorf("OnNodesChanged never reported node-a, got %v", notified)
	}
}

func TestRemovedMemberStopsBeingManaged(t *testing.T) {
	coord := newFakeCoord()
	cfg := testConfig(3)
	nodeSet := allocator.NewModulo(cfg.MaxWorkingNodes)

	role := New(cfg, coord, nodeSet, Hooks{}, logging.Nop())
	if err := role.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fullA := cfg.WorkingRoot + "/node-a.0000000001"
	coord.putData(fullA, "0")
	coord.addChild(cfg.WorkingRoot, fullA)
	waitUntil(t, time.Second, func() bool { return nodeSet.IsManaged("node-a") })

	// node-a drops out: the children-watch now reports an empty set.
	coord.mu.Lock()
	coord.children[cfg.WorkingRoot] = nil
	watchers := append([]func([]string){}, coord.childWatch[cfg.WorkingRoot]...)
	coord.mu.Unlock()
	for _, w := range watchers {
		w(nil)
	}

	waitUntil(t, time.Second, func() bool { return !nodeSet.IsManaged("node-a") })
}

func TestMalformedSlotDataIsIgnored(t *testing.T) {
	coord := newFakeCoord()
	cfg := testConfig(3)
	nodeSet := allocator.NewModulo(cfg.MaxWorkingNodes)

	role := New(cfg, coord, nodeSet, Hooks{}, logging.Nop())
	if err := role.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	full := cfg.WorkingRoot + "/node-a.0000000001"
	coord.putData(full, "not-an-int")
	coord.addChild(cfg.WorkingRoot, full)

	waitUntil(t, time.Second, func() bool { return nodeSet.IsManaged("node-a") })

	for i := 0; i < cfg.MaxWorkingNodes; i++ {
		if got := nodeSet.Get(i); got == "node-a" {
			t.Fatalf("node-a should not occupy slot %d after publishing malformed data %q", i, "not-an-int")
		}
	}

	// A later, well-formed update must still take effect.
	coord.putData(full, strconv.Itoa(1))
	waitUntil(t, time.Second, func() bool { return nodeSet.Get(1) == "node-a" })
}
