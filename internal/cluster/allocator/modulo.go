package allocator

import (
	"fmt"
	"sync"

	"github.com/liguopeng80/clustercore/internal/clustererr"
)

// Modulo routes an integer key to slot_table[key mod max_working_nodes].
// State mirrors the original: a list of managed nodes (name, slot) plus a
// dense slot_table of size max_working_nodes initialised to "".
//
// There is no implicit fallback when the target slot is empty (§9's open
// question: "some callers may prefer a fallback to the nearest occupied
// slot — not specified"); Get simply returns "" in that case, matching
// the design's explicit choice.
type Modulo struct {
	mu              sync.RWMutex
	maxWorkingNodes int
	nodes           []NodeDesc
	slotTable       []string // index -> node name, "" if unclaimed
}

// NewModulo creates a Modulo allocator sized for maxWorkingNodes slots.
func NewModulo(maxWorkingNodes int) *Modulo {
	return &Modulo{
		maxWorkingNodes: maxWorkingNodes,
		slotTable:       make([]string, maxWorkingNodes),
	}
}

var _ NodeSet = (*Modulo)(nil)

// SetNodes bulk-replaces the managed node set.
func (m *Modulo) SetNodes(nodes []NodeDesc) error {
	m.mu.Lock()
	m.nodes = nil
	m.slotTable = make([]string, m.maxWorkingNodes)
	m.mu.Unlock()

	for _, n := range nodes {
		if err := m.Add(n.Name, n.Slot); err != nil {
			return err
		}
	}
	return nil
}

// Add registers name with the given slot (UnknownSlot if not yet known).
// name must be unique; a non-negative slot must be unique and within
// range.
func (m *Modulo) Add(name string, slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOfLocked(name) >= 0 {
		return fmt.Errorf("%w: %s", clustererr.ErrDuplicateNode, name)
	}
	if slot >= 0 {
		if slot >= m.maxWorkingNodes {
			return fmt.Errorf("%w: slot %d for %s (max %d)", clustererr.ErrIndexOutOfRange, slot, name, m.maxWorkingNodes)
		}
		if m.slotTable[slot] != "" {
			return fmt.Errorf("%w: slot %d already held by %s", clustererr.ErrDuplicateIndex, slot, m.slotTable[slot])
		}
	}

	m.nodes = append(m.nodes, NodeDesc{Name: name, Slot: slot})
	if slot >= 0 {
		m.slotTable[slot] = name
	}
	return nil
}

// Remove unregisters name, clearing its slot if it held one.
func (m *Modulo) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOfLocked(name)
	if idx < 0 {
		return
	}

	node := m.nodes[idx]
	m.nodes = append(m.nodes[:idx], m.nodes[idx+1:]...)
	if node.Slot >= 0 && node.Slot < len(m.slotTable) && m.slotTable[node.Slot] == name {
		m.slotTable[node.Slot] = ""
	}
}

// Update changes name's claimed slot. A no-op if name is not managed.
func (m *Modulo) Update(name string, slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOfLocked(name)
	if idx < 0 {
		return nil
	}
	if slot < 0 || slot >= m.maxWorkingNodes {
		return fmt.Errorf("%w: slot %d for %s (max %d)", clustererr.ErrIndexOutOfRange, slot, name, m.maxWorkingNodes)
	}

	if old := m.nodes[idx].Slot; old >= 0 && old < len(m.slotTable) && m.slotTable[old] == name {
		m.slotTable[old] = ""
	}
	m.nodes[idx].Slot = slot
	m.slotTable[slot] = name
	return nil
}

// IsManaged reports whether name is a currently-managed node.
func (m *Modulo) IsManaged(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexOfLocked(name) >= 0
}

// Names returns every managed node name.
func (m *Modulo) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.nodes))
	for i, n := range m.nodes {
		names[i] = n.Name
	}
	return names
}

// Get returns the member claiming slot (key mod max_working_nodes), or ""
// if that slot is currently unclaimed.
func (m *Modulo) Get(key int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := ((key % m.maxWorkingNodes) + m.maxWorkingNodes) % m.maxWorkingNodes
	return m.slotTable[idx]
}

func (m *Modulo) indexOfLocked(name string) int {
	for i, n := range m.nodes {
		if n.Name == name {
			return i
		}
	}
	return -1
}
