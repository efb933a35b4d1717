package lsim

// NodeID identifies one electrical node: a maximal set of pins tied
// together by wires. Ids are compact, assigned in pin creation order,
// and stay stable until connectivity changes.
type NodeID int32

// NodeInvalid is returned for pins unknown to the netlist.
const NodeInvalid = NodeID(-1)

// A Netlist partitions pins into electrical nodes with a disjoint-set
// structure. Wire additions merge incrementally through Union; wire
// removal and pin disconnection re-derive connectivity with Rebuild,
// since a removal may split a node into several.
type Netlist struct {
	slots  map[PinID]int
	pins   []PinID
	parent []int
	size   []int

	// compacted view, rebuilt lazily after edits
	stale   bool
	nodeOf  []NodeID
	members [][]PinID
}

// NewNetlist returns an empty netlist.
func NewNetlist() *Netlist {
	return &Netlist{slots: make(map[PinID]int)}
}

// AddPin registers a pin as its own singleton node. Adding a known pin
// is a no-op.
func (n *Netlist) AddPin(pin PinID) {
	n.slot(pin)
}

func (n *Netlist) slot(pin PinID) int {
	if s, ok := n.slots[pin]; ok {
		return s
	}
	s := len(n.pins)
	n.slots[pin] = s
	n.pins = append(n.pins, pin)
	n.parent = append(n.parent, s)
	n.size = append(n.size, 1)
	n.stale = true
	return s
}

// Union ties two pins into the same node, registering them as needed.
func (n *Netlist) Union(a, b PinID) {
	ra, rb := n.find(n.slot(a)), n.find(n.slot(b))
	if ra == rb {
		return
	}
	// union by size
	if n.size[ra] < n.size[rb] {
		ra, rb = rb, ra
	}
	n.parent[rb] = ra
	n.size[ra] += n.size[rb]
	n.stale = true
}

// MergeWire unions all member pins of one wire.
func (n *Netlist) MergeWire(pins []PinID) {
	for i := 1; i < len(pins); i++ {
		n.Union(pins[0], pins[i])
	}
}

// Rebuild re-derives the whole partition from the given pin universe
// and wire list, discarding all previous state.
func (n *Netlist) Rebuild(pins []PinID, wires [][]PinID) {
	n.slots = make(map[PinID]int, len(pins))
	n.pins = n.pins[:0]
	n.parent = n.parent[:0]
	n.size = n.size[:0]
	for _, p := range pins {
		n.slot(p)
	}
	for _, w := range wires {
		n.MergeWire(w)
	}
	n.stale = true
}

// find with path compression.
func (n *Netlist) find(s int) int {
	for n.parent[s] != s {
		n.parent[s] = n.parent[n.parent[s]]
		s = n.parent[s]
	}
	return s
}

func (n *Netlist) compact() {
	if !n.stale {
		return
	}
	n.nodeOf = make([]NodeID, len(n.pins))
	n.members = n.members[:0]
	rootNode := make(map[int]NodeID, len(n.pins))
	for s := range n.pins {
		r := n.find(s)
		id, ok := rootNode[r]
		if !ok {
			id = NodeID(len(n.members))
			rootNode[r] = id
			n.members = append(n.members, nil)
		}
		n.nodeOf[s] = id
		n.members[id] = append(n.members[id], n.pins[s])
	}
	n.stale = false
}

// NodeOf returns the node holding the given pin, or NodeInvalid.
func (n *Netlist) NodeOf(pin PinID) NodeID {
	s, ok := n.slots[pin]
	if !ok {
		return NodeInvalid
	}
	n.compact()
	return n.nodeOf[s]
}

// Members returns the pins of a node, ordered by registration.
func (n *Netlist) Members(id NodeID) []PinID {
	n.compact()
	if id < 0 || int(id) >= len(n.members) {
		return nil
	}
	return n.members[id]
}

// NumNodes returns the current node count.
func (n *Netlist) NumNodes() int {
	n.compact()
	return len(n.members)
}

// NumPins returns the number of registered pins.
func (n *Netlist) NumPins() int { return len(n.pins) }
