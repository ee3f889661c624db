// Package allocator implements the two node-allocation strategies a
// cluster client uses to map a request key to a working member: modulo
// (slot index → member) and a consistent hash ring, per spec.md §4.H.
//
// The two strategies share mutator/introspection methods (NodeSet) but
// deliberately do not share a single Get signature: modulo routing is
// keyed by integer (the slot-index domain the spec calls out), hash-ring
// routing is keyed by an arbitrary string. Forcing both behind one Get
// would mean boxing every key through interface{} for no real benefit —
// callers already know which strategy a given ClusterConfig selected.
package allocator

// NodeSet is the mutation/introspection contract both allocators satisfy.
type NodeSet interface {
	// SetNodes bulk-replaces the managed node set.
	SetNodes(nodes []NodeDesc) error
	// Add registers a new node, optionally with a known slot (UnknownSlot
	// means "known member, slot not yet observed").
	Add(name string, slot int) error
	// Remove unregisters a node. A no-op if name is not managed.
	Remove(name string)
	// Update changes an existing managed node's slot.
	Update(name string, slot int) error
	// IsManaged reports whether name is currently a managed node.
	IsManaged(name string) bool
	// Names returns every currently-managed node name.
	Names() []string
}

// NodeDesc is a client-side allocator record: a managed member name and
// the slot index it last published, or UnknownSlot if not yet observed.
type NodeDesc struct {
	Name string
	Slot int
}

// UnknownSlot marks a managed node whose slot has not yet been observed.
const UnknownSlot = -1
