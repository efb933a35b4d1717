package lsim

import (
	"sort"

	"github.com/pkg/errors"
)

// DefaultMaxPasses bounds the scheduler passes run for one step before
// the circuit is reported as non-converging.
const DefaultMaxPasses = 100

// node is the runtime state of one electrical node.
type node struct {
	value    Value
	conflict bool  // sticky error, cleared at the start of each step
	drivers  []int // slots of driving output pins (pull resistors excluded)
	pulls    []int // slots of pull resistor pins
	readers  []ComponentID
}

// A CircuitInstance is the runtime form of a circuit description: a
// dense pin value arena, the pin to node mapping with per-node driver
// lists and resolved values, and one nested instance per sub-circuit
// component. Instances are created by Instantiate and discarded after
// any structural edit of the description.
type CircuitInstance struct {
	desc  *CircuitDescription
	comps []*Component // creation order snapshot

	slots  map[PinID]int
	pins   []PinID
	pinVal []Value

	nodeOf []NodeID // per slot
	nodes  []node

	nested map[ComponentID]*CircuitInstance

	dirty     map[ComponentID]struct{}
	order     []ComponentID // scratch for pass scheduling
	cleared   []NodeID      // conflicts cleared this step, pending re-resolution
	nestedOK  bool
	maxPasses int
}

// Instantiate builds a runtime instance of the description, resolving
// nested sub-circuits recursively through the library. It fails
// without side effects on structural errors: unknown nested circuits,
// cyclic nesting, or port mappings that drifted since the sub-circuit
// component was created.
func (d *CircuitDescription) Instantiate() (*CircuitInstance, error) {
	if d == nil {
		panic("lsim: instantiate from nil description")
	}
	return d.instantiate(nil)
}

func (d *CircuitDescription) instantiate(path []string) (*CircuitInstance, error) {
	for _, name := range path {
		if name == d.name {
			return nil, errors.Errorf("cyclic nesting: circuit %q embeds itself through %v", d.name, path)
		}
	}
	path = append(path, d.name)

	inst := &CircuitInstance{
		desc:      d,
		slots:     make(map[PinID]int),
		nested:    make(map[ComponentID]*CircuitInstance),
		dirty:     make(map[ComponentID]struct{}),
		maxPasses: DefaultMaxPasses,
	}

	// pin arena, creation order
	for _, id := range d.compOrder {
		c := d.comps[id]
		inst.comps = append(inst.comps, c)
		for i := 0; i < c.NumPins(); i++ {
			p := c.Pin(i)
			inst.slots[p] = len(inst.pins)
			inst.pins = append(inst.pins, p)
		}
	}
	inst.pinVal = make([]Value, len(inst.pins))
	for i := range inst.pinVal {
		inst.pinVal[i] = ValueUndefined
	}

	// node partition: full rebuild from the wire set.
	net := NewNetlist()
	wires := make([][]PinID, 0, len(d.wireOrder))
	for _, id := range d.wireOrder {
		wires = append(wires, d.wires[id].pins)
	}
	net.Rebuild(inst.pins, wires)

	inst.nodeOf = make([]NodeID, len(inst.pins))
	inst.nodes = make([]node, net.NumNodes())
	for s, p := range inst.pins {
		inst.nodeOf[s] = net.NodeOf(p)
	}
	for i := range inst.nodes {
		inst.nodes[i].value = ValueUndefined
	}

	// classify pins into per-node driver, pull and reader lists.
	for _, c := range inst.comps {
		for i := 0; i < c.inputs; i++ {
			s := inst.slots[c.InputPin(i)]
			nd := &inst.nodes[inst.nodeOf[s]]
			nd.readers = append(nd.readers, c.id)
		}
		for i := 0; i < c.outputs; i++ {
			s := inst.slots[c.OutputPin(i)]
			nd := &inst.nodes[inst.nodeOf[s]]
			if c.typ == TypePullResistor {
				nd.pulls = append(nd.pulls, s)
			} else {
				nd.drivers = append(nd.drivers, s)
			}
		}
		for i := 0; i < c.controls; i++ {
			s := inst.slots[c.ControlPin(i)]
			nd := &inst.nodes[inst.nodeOf[s]]
			nd.readers = append(nd.readers, c.id)
		}
	}

	// nested instances
	for _, c := range inst.comps {
		if c.typ != TypeSubCircuit {
			continue
		}
		name := c.StringProperty(PropCircuit, "")
		sub := d.lib.Circuit(name)
		if sub == nil {
			return nil, errors.Errorf("circuit %q: unknown nested circuit %q", d.name, name)
		}
		if got := len(sub.portPins(true)); got != c.inputs {
			return nil, errors.Errorf("circuit %q: sub-circuit %q input ports changed (%d pins, component has %d)",
				d.name, name, got, c.inputs)
		}
		if got := len(sub.portPins(false)); got != c.outputs {
			return nil, errors.Errorf("circuit %q: sub-circuit %q output ports changed (%d pins, component has %d)",
				d.name, name, got, c.outputs)
		}
		ni, err := sub.instantiate(path)
		if err != nil {
			return nil, errors.Wrapf(err, "circuit %q", d.name)
		}
		inst.nested[c.id] = ni
	}

	return inst, nil
}

// Description returns the static description this instance was built
// from.
func (inst *CircuitInstance) Description() *CircuitDescription { return inst.desc }

// Nested returns the instance owned by the given sub-circuit
// component, or nil.
func (inst *CircuitInstance) Nested(id ComponentID) *CircuitInstance {
	return inst.nested[id]
}

// SetMaxPasses changes the per-step pass bound for this instance and
// all nested instances.
func (inst *CircuitInstance) SetMaxPasses(n int) {
	if n < 1 {
		panic("lsim: pass bound must be positive")
	}
	inst.maxPasses = n
	for _, ni := range inst.nested {
		ni.SetMaxPasses(n)
	}
}

func (inst *CircuitInstance) slotOf(pin PinID) int {
	s, ok := inst.slots[pin]
	if !ok {
		panic("lsim: pin does not belong to this instance")
	}
	return s
}

// ReadPin returns the current value held by a pin.
func (inst *CircuitInstance) ReadPin(pin PinID) Value {
	return inst.pinVal[inst.slotOf(pin)]
}

// NodeOf returns the node the pin belongs to.
func (inst *CircuitInstance) NodeOf(pin PinID) NodeID {
	return inst.nodeOf[inst.slotOf(pin)]
}

// NodeValue returns the resolved value of the pin's node.
func (inst *CircuitInstance) NodeValue(pin PinID) Value {
	return inst.nodes[inst.NodeOf(pin)].value
}

// NodeConflict reports whether the pin's node is in a driver conflict
// in the current step. A conflicted node reads ValueError, which is
// distinct from an undriven (undefined) node.
func (inst *CircuitInstance) NodeConflict(pin PinID) bool {
	return inst.nodes[inst.NodeOf(pin)].conflict
}

// WritePin asserts an externally driven value on a pin, typically the
// output pin of an input connector, and marks affected components for
// re-evaluation.
func (inst *CircuitInstance) WritePin(pin PinID, v Value) {
	inst.writeSlot(inst.slotOf(pin), v)
}

// writeSlot updates one pin value and, if it changed, re-resolves the
// pin's node. It reports whether the pin value changed.
func (inst *CircuitInstance) writeSlot(s int, v Value) bool {
	if inst.pinVal[s] == v {
		return false
	}
	inst.pinVal[s] = v
	inst.refreshNode(inst.nodeOf[s])
	return true
}

// refreshNode re-resolves a node and marks its readers dirty when the
// resolved value changed.
func (inst *CircuitInstance) refreshNode(id NodeID) {
	nd := &inst.nodes[id]
	v := inst.resolveNode(nd)
	if v == nd.value {
		return
	}
	nd.value = v
	for _, r := range nd.readers {
		inst.dirty[r] = struct{}{}
	}
}

// resolveNode combines all driver contributions on a node. An
// undefined contribution floats; an error asserted by any active
// driver, or two active drivers asserting opposite defined values,
// resolve to a sticky error. With no active driver the node falls back
// to its pull resistors, then to undefined.
func (inst *CircuitInstance) resolveNode(nd *node) Value {
	if nd.conflict {
		return ValueError
	}
	v := ValueUndefined
	for _, s := range nd.drivers {
		v = combineDrivers(v, inst.pinVal[s])
	}
	if v == ValueUndefined {
		for _, s := range nd.pulls {
			v = combineDrivers(v, inst.pinVal[s])
		}
	}
	if v == ValueError {
		nd.conflict = true
	}
	return v
}

// clearConflicts resets the sticky conflict flags, recursively. Called
// at the start of every step. The node value is not recomputed here:
// driver pins still hold last step's values, so an immediate resolve
// would re-latch the conflict before the drivers had a chance to
// release. Instead the driving components are scheduled, and the node
// re-resolves after the pass through refreshCleared.
func (inst *CircuitInstance) clearConflicts() {
	inst.cleared = inst.cleared[:0]
	for i := range inst.nodes {
		nd := &inst.nodes[i]
		if !nd.conflict {
			continue
		}
		nd.conflict = false
		inst.cleared = append(inst.cleared, NodeID(i))
		for _, s := range nd.drivers {
			inst.dirty[inst.pins[s].Component()] = struct{}{}
		}
		for _, s := range nd.pulls {
			inst.dirty[inst.pins[s].Component()] = struct{}{}
		}
	}
	for id, ni := range inst.nested {
		ni.clearConflicts()
		if len(ni.dirty) > 0 {
			inst.dirty[id] = struct{}{}
		}
	}
}

// refreshCleared re-resolves nodes whose conflict flag was cleared at
// step start. Drivers that kept their pin values never trigger a
// refresh through writeSlot, so a persisting conflict is re-latched
// here; a released node recovers and wakes its readers.
func (inst *CircuitInstance) refreshCleared() {
	for _, id := range inst.cleared {
		inst.refreshNode(id)
	}
	inst.cleared = inst.cleared[:0]
}

// init resets every pin to undefined, re-applies constants and pull
// resistors, resolves all nodes and marks every component dirty.
func (inst *CircuitInstance) init() {
	for s := range inst.pinVal {
		inst.pinVal[s] = ValueUndefined
	}
	for _, c := range inst.comps {
		switch c.typ {
		case TypeConstant:
			inst.pinVal[inst.slots[c.OutputPin(0)]] = Value(c.IntProperty(PropValue, int64(ValueFalse)))
		case TypePullResistor:
			inst.pinVal[inst.slots[c.OutputPin(0)]] = Value(c.IntProperty(PropPullTo, int64(ValueFalse)))
		}
	}
	for i := range inst.nodes {
		nd := &inst.nodes[i]
		nd.conflict = false
		nd.value = inst.resolveNode(nd)
	}
	inst.cleared = inst.cleared[:0]
	inst.dirty = make(map[ComponentID]struct{}, len(inst.comps))
	for _, c := range inst.comps {
		inst.dirty[c.id] = struct{}{}
	}
	for _, ni := range inst.nested {
		ni.init()
	}
}

// runPass pops the current dirty set and evaluates it, lowest priority
// value first, ties broken by creation order. Components marked dirty
// during the pass wait for the next one.
func (inst *CircuitInstance) runPass() {
	inst.order = inst.order[:0]
	for id := range inst.dirty {
		inst.order = append(inst.order, id)
	}
	inst.dirty = make(map[ComponentID]struct{})
	sort.Slice(inst.order, func(i, j int) bool {
		a, b := inst.desc.comps[inst.order[i]], inst.desc.comps[inst.order[j]]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.id < b.id
	})
	for _, id := range inst.order {
		inst.evaluate(inst.desc.comps[id])
	}
}

// settle runs scheduler passes until the dirty set drains or the pass
// bound is hit. It reports the pass count and whether the instance
// (including nested instances evaluated along the way) is stable.
func (inst *CircuitInstance) settle(maxPasses int) (passes int, stable bool) {
	inst.nestedOK = true
	for len(inst.dirty) > 0 {
		if passes >= maxPasses {
			return passes, false
		}
		inst.runPass()
		passes++
		inst.refreshCleared()
	}
	return passes, inst.nestedOK
}
