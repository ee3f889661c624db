// Package coordclient wraps an etcd client as the coordination service the
// rest of this repository depends on, re-expressing etcd's lease/watch
// primitives in the ZooKeeper-flavored vocabulary spec.md §4.B specifies:
// ephemeral and ephemeral-sequential nodes, children/data watches, and
// session loss/suspend/reconnect observer callbacks. The client runs its
// own worker goroutine (the underlying etcd client is itself asynchronous,
// but session bookkeeping — lease keep-alive, reconnect back-off — needs a
// dedicated owner exactly as the spec's "own worker thread because the
// underlying library is synchronous" requirement describes) and marshals
// every observer callback onto the primary loop via runtime.PostToPrimary.
package coordclient

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/liguopeng80/clustercore/internal/clustererr"
	"github.com/liguopeng80/clustercore/internal/logging"
	"github.com/liguopeng80/clustercore/internal/runtime"
)

// DefaultReconnectInterval is RECONNECTION_INTERVAL from spec.md §4.B.
const DefaultReconnectInterval = 3 * time.Second

// defaultLeaseTTLSeconds bounds how long an ephemeral node survives a
// session that never explicitly closes it (process crash, network
// partition); kept well above the keepalive period so transient hiccups
// don't expire a live session's nodes.
const defaultLeaseTTLSeconds = 10

// Config configures a Client.
type Config struct {
	Endpoints         []string
	DialTimeout       time.Duration
	ReconnectInterval time.Duration
	LeaseTTLSeconds   int64
}

// Client is the coordination-service handle. Create one with New, then
// Start it; Stop tears down the session and its worker goroutine.
type Client struct {
	cfg      Config
	loop     *runtime.Loop
	log      logging.Logger
	observer Observer
	watcher  *connWatcher

	mu        sync.Mutex
	etcd      *clientv3.Client
	leaseID   clientv3.LeaseID
	keepAlive <-chan *clientv3.LeaseKeepAliveResponse

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Client bound to loop (used to marshal observer callbacks)
// and log. Start must be called before any other method is used.
func New(cfg Config, loop *runtime.Loop, observer Observer, log logging.Logger) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.LeaseTTLSeconds <= 0 {
		cfg.LeaseTTLSeconds = defaultLeaseTTLSeconds
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	return &Client{
		cfg:      cfg,
		loop:     loop,
		log:      log,
		observer: observer,
		watcher:  newConnWatcher(observer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// State returns the client's current session state.
func (c *Client) State() SessionState { return c.watcher.current() }

// IsConnected reports whether the session currently holds a usable lease.
func (c *Client) IsConnected() bool { return c.State() == Connected }

// Start launches the worker goroutine and attempts the first connect. It
// returns immediately; connect outcomes surface via the Observer.
func (c *Client) Start() {
	go c.run()
}

// Stop tears down the session: the lease is revoked (so every ephemeral
// node this process owns disappears immediately rather than waiting out
// its TTL) and the worker goroutine exits.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

func (c *Client) run() {
	defer close(c.doneCh)

	for {
		c.watcher.onDialing()
		if err := c.connect(); err != nil {
			c.log.Warnf("coordination client connect failed: %v", err)
			if fire := c.watcher.onFailed(); fire {
				c.postObserver(c.observer.OnConnectionFailed)
			}
		} else {
			if fire := c.watcher.onOpened(); fire {
				c.postObserver(c.observer.OnConnectionOpened)
			}

			c.watchSession()

			if c.watcher.current() != Closed {
				if fire := c.watcher.onLost(); fire {
					c.postObserver(c.observer.OnConnectionLost)
				}
			}
		}

		select {
		case <-c.stopCh:
			c.teardown()
			return
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

func (c *Client) connect() error {
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   c.cfg.Endpoints,
		DialTimeout: c.cfg.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("dial coordination service: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	lease, err := etcdClient.Grant(ctx, c.cfg.LeaseTTLSeconds)
	if err != nil {
		etcdClient.Close()
		return fmt.Errorf("grant session lease: %w", err)
	}

	keepAlive, err := etcdClient.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		etcdClient.Close()
		return fmt.Errorf("start lease keepalive: %w", err)
	}

	c.mu.Lock()
	c.etcd = etcdClient
	c.leaseID = lease.ID
	c.keepAlive = keepAlive
	c.mu.Unlock()

	return nil
}

// watchSession blocks until the keepalive channel closes (session lost) or
// Stop is requested. A gap of at least one lease TTL between keepalive
// responses is treated as Suspended — connectivity trouble the client
// believes is recoverable without tearing down the session — per spec.md
// §4.B; a subsequent response resumes straight back to Connected. Only the
// keepalive channel actually closing (etcd gave up on the lease) is
// treated as Lost.
func (c *Client) watchSession() {
	suspendAfter := time.Duration(c.cfg.LeaseTTLSeconds) * time.Second
	ticker := time.NewTicker(suspendAfter)
	defer ticker.Stop()

	lastSeen := time.Now()
	for {
		select {
		case _, ok := <-c.keepAlive:
			if !ok {
				return
			}
			lastSeen = time.Now()
			if fire := c.watcher.onOpened(); fire {
				c.postObserver(c.observer.OnConnectionOpened)
			}
		case <-ticker.C:
			if time.Since(lastSeen) >= suspendAfter {
				if fire := c.watcher.onSuspended(); fire {
					c.postObserver(c.observer.OnConnectionSuspended)
				}
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) teardown() {
	c.watcher.onClosed()

	c.mu.Lock()
	cli := c.etcd
	lease := c.leaseID
	c.mu.Unlock()

	if cli == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = cli.Revoke(ctx, lease)
	cli.Close()
}

func (c *Client) postObserver(fn func()) {
	if fn == nil {
		return
	}
	c.loop.PostToPrimary(fn)
}

func (c *Client) etcdClient() (*clientv3.Client, clientv3.LeaseID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.etcd == nil {
		return nil, 0, clustererr.ErrNotConnected
	}
	return c.etcd, c.leaseID, nil
}

// EnsureNode creates path as a persistent (non-ephemeral) empty node if it
// does not already exist. Used for working_root/alive_root existence, per
// spec.md §4.F step 1 and §4.G step 2.
func (c *Client) EnsureNode(ctx context.Context, path string) error {
	cli, _, err := c.etcdClient()
	if err != nil {
		return err
	}

	_, err = cli.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(path), "=", 0)).
		Then(clientv3.OpPut(path, "")).
		Commit()
	if err != nil {
		return fmt.Errorf("ensure node %s: %w", path, err)
	}
	return nil
}

// CreateEphemeralSequential creates a node at root/name.<sequence>, bound
// to this session's lease, and returns its full path. The sequence suffix
// is the mod-revision etcd assigns on the creating Put — monotonic and
// globally ordered, exactly analogous to ZooKeeper's sequence counter.
func (c *Client) CreateEphemeralSequential(ctx context.Context, root, name string) (string, error) {
	cli, leaseID, err := c.etcdClient()
	if err != nil {
		return "", err
	}

	provisional := root + "/" + name + ".tmp-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	resp, err := cli.Put(ctx, provisional, "", clientv3.WithLease(leaseID))
	if err != nil {
		return "", fmt.Errorf("create ephemeral-sequential candidate: %w", err)
	}

	final := fmt.Sprintf("%s/%s.%010d", root, name, resp.Header.Revision)
	_, err = cli.Txn(ctx).
		Then(
			clientv3.OpPut(final, "", clientv3.WithLease(leaseID)),
			clientv3.OpDelete(provisional),
		).
		Commit()
	if err != nil {
		return "", fmt.Errorf("finalize ephemeral-sequential candidate: %w", err)
	}

	return final, nil
}

// PutData writes data to an existing node owned by this session's lease
// (e.g. publishing a claimed slot index onto a working-candidate node).
func (c *Client) PutData(ctx context.Context, path string, data []byte) error {
	cli, leaseID, err := c.etcdClient()
	if err != nil {
		return err
	}
	_, err = cli.Put(ctx, path, string(data), clientv3.WithLease(leaseID))
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Get reads a single key's value, reporting false if it does not exist.
func (c *Client) Get(ctx context.Context, path string) ([]byte, bool, error) {
	cli, _, err := c.etcdClient()
	if err != nil {
		return nil, false, err
	}

	resp, err := cli.Get(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", path, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

// Delete removes path. Deleting an already-absent key is not an error.
func (c *Client) Delete(ctx context.Context, path string) error {
	cli, _, err := c.etcdClient()
	if err != nil {
		return err
	}
	if _, err := cli.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Children lists the immediate child names under root, sorted ascending by
// their sequence suffix (the decimal integer after the last '.'), per
// spec.md §4.F/§4.G.
func (c *Client) Children(ctx context.Context, root string) ([]string, error) {
	cli, _, err := c.etcdClient()
	if err != nil {
		return nil, err
	}

	resp, err := cli.Get(ctx, root+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", root, err)
	}

	children := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		full := string(kv.Key)
		name := strings.TrimPrefix(full, root+"/")
		children = append(children, name)
	}
	sortBySequence(children)
	return children, nil
}

// sortBySequence orders full child names ascending by the decimal integer
// after their last '.', per spec.md §4.F step 4.b.
func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(childName string) int64 {
	idx := strings.LastIndex(childName, ".")
	if idx < 0 {
		return 0
	}
	seq, err := strconv.ParseInt(childName[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

// NamePart strips a child's sequence suffix, returning the name portion it
// was created with (the part before the last '.').
func NamePart(childName string) string {
	idx := strings.LastIndex(childName, ".")
	if idx < 0 {
		return childName
	}
	return childName[:idx]
}

// ChildrenWatch installs a watch on root (WithPrefix), invoking fn with the
// full current children list (sorted by sequence) each time the set
// changes, marshalled onto the primary loop. The returned cancel function
// stops the watch; it does not block waiting for the watch goroutine to
// exit.
func (c *Client) ChildrenWatch(ctx context.Context, root string, fn func(children []string)) (cancel func(), err error) {
	cli, _, err := c.etcdClient()
	if err != nil {
		return nil, err
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	watchCh := cli.Watch(watchCtx, root+"/", clientv3.WithPrefix())

	go func() {
		for range watchCh {
			children, err := c.Children(context.Background(), root)
			if err != nil {
				c.log.Warnf("children-watch refresh on %s failed: %v", root, err)
				continue
			}
			c.loop.PostToPrimary(func() { fn(children) })
		}
	}()

	return watchCancel, nil
}

// DataWatch installs a watch on a single key, invoking fn with its current
// value (and whether it exists) each time it changes, marshalled onto the
// primary loop.
func (c *Client) DataWatch(ctx context.Context, path string, fn func(data []byte, exists bool)) (cancel func(), err error) {
	cli, _, err := c.etcdClient()
	if err != nil {
		return nil, err
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	watchCh := cli.Watch(watchCtx, path)

	go func() {
		for resp := range watchCh {
			for _, ev := range resp.Events {
				data, exists, gerr := c.Get(context.Background(), path)
				if gerr != nil {
					c.log.Warnf("data-watch refresh on %s failed: %v", path, gerr)
					continue
				}
				_ = ev
				c.loop.PostToPrimary(func() { fn(data, exists) })
			}
		}
	}()

	return watchCancel, nil
}

// CreateLock returns a distributed lock scoped under root with the given
// name, per spec.md §4.E.
func (c *Client) CreateLock(root, name string) Locker {
	return newLock(c, root, name)
}
