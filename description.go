package lsim

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// ComponentID identifies a component within one circuit description.
type ComponentID uint32

// WireID identifies a wire within one circuit description.
type WireID uint32

// PinID identifies a single connection point: the owning component id
// in the high half, the pin's local index in the low half. Local
// indices are partitioned into input, output and control pins, in that
// order.
type PinID uint64

// PinInvalid is returned by lookups that found no pin.
const PinInvalid = PinID(1<<64 - 1)

func makePinID(c ComponentID, index int) PinID {
	return PinID(c)<<32 | PinID(uint32(index))
}

// Component returns the id of the component owning the pin.
func (p PinID) Component() ComponentID { return ComponentID(p >> 32) }

// Index returns the pin's local index within its component.
func (p PinID) Index() int { return int(uint32(p)) }

// ComponentType enumerates the closed set of component kinds the
// simulator knows how to evaluate.
type ComponentType uint8

const (
	TypeConnectorIn ComponentType = iota
	TypeConnectorOut
	TypeConstant
	TypePullResistor
	TypeBuffer
	TypeTriStateBuffer
	TypeAndGate
	TypeOrGate
	TypeNotGate
	TypeNandGate
	TypeNorGate
	TypeXorGate
	TypeXnorGate
	TypeSubCircuit
)

func (t ComponentType) String() string {
	switch t {
	case TypeConnectorIn:
		return "connector_in"
	case TypeConnectorOut:
		return "connector_out"
	case TypeConstant:
		return "constant"
	case TypePullResistor:
		return "pull_resistor"
	case TypeBuffer:
		return "buffer"
	case TypeTriStateBuffer:
		return "tristate_buffer"
	case TypeAndGate:
		return "and"
	case TypeOrGate:
		return "or"
	case TypeNotGate:
		return "not"
	case TypeNandGate:
		return "nand"
	case TypeNorGate:
		return "nor"
	case TypeXorGate:
		return "xor"
	case TypeXnorGate:
		return "xnor"
	case TypeSubCircuit:
		return "sub_circuit"
	}
	return "unknown"
}

// Priority orders component evaluation within one scheduler pass.
// Lower runs first; ties break on creation order.
type Priority uint8

const (
	PriorityNormal Priority = iota
	// PriorityDeferred components run after all normal ones in a pass,
	// so sub-circuits see settled parent inputs.
	PriorityDeferred
)

// Well-known property keys.
const (
	PropName     = "name"     // connector name (string)
	PropTriState = "tri_state" // connector rendering hint (bool)
	PropValue    = "value"    // constant output value (int)
	PropPullTo   = "pull_to"  // pull resistor level (int)
	PropCircuit  = "circuit"  // nested circuit reference (string)
)

// A Component is a typed entity with a fixed pin layout. Pin counts
// never change after creation; layout edits go through explicit
// re-creation (see CircuitDescription.ChangePortPinCount).
type Component struct {
	id       ComponentID
	typ      ComponentType
	inputs   int
	outputs  int
	controls int
	priority Priority
	props    map[string]*Property
}

// ID returns the component id within its description.
func (c *Component) ID() ComponentID { return c.id }

// Type returns the component kind.
func (c *Component) Type() ComponentType { return c.typ }

// NumInputs returns the input pin count.
func (c *Component) NumInputs() int { return c.inputs }

// NumOutputs returns the output pin count.
func (c *Component) NumOutputs() int { return c.outputs }

// NumControls returns the control pin count.
func (c *Component) NumControls() int { return c.controls }

// NumPins returns the total pin count.
func (c *Component) NumPins() int { return c.inputs + c.outputs + c.controls }

// Pin returns the pin with the given local index.
func (c *Component) Pin(index int) PinID {
	if index < 0 || index >= c.NumPins() {
		panic("lsim: pin index out of range")
	}
	return makePinID(c.id, index)
}

// InputPin returns the i-th input pin.
func (c *Component) InputPin(i int) PinID {
	if i < 0 || i >= c.inputs {
		panic("lsim: input pin index out of range")
	}
	return makePinID(c.id, i)
}

// OutputPin returns the i-th output pin.
func (c *Component) OutputPin(i int) PinID {
	if i < 0 || i >= c.outputs {
		panic("lsim: output pin index out of range")
	}
	return makePinID(c.id, c.inputs+i)
}

// ControlPin returns the i-th control pin.
func (c *Component) ControlPin(i int) PinID {
	if i < 0 || i >= c.controls {
		panic("lsim: control pin index out of range")
	}
	return makePinID(c.id, c.inputs+c.outputs+i)
}

// Priority returns the component's scheduling priority.
func (c *Component) Priority() Priority { return c.priority }

// SetPriority overrides the component's scheduling priority.
func (c *Component) SetPriority(p Priority) { c.priority = p }

// Property returns the named property or nil.
func (c *Component) Property(key string) *Property {
	return c.props[key]
}

// SetProperty creates or replaces a property.
func (c *Component) SetProperty(key string, val interface{}) {
	if p, ok := c.props[key]; ok {
		p.Set(val)
		return
	}
	p := newProperty(key, nil)
	p.Set(val)
	c.props[key] = p
}

// StringProperty returns the named property as a string, or def when
// the property does not exist.
func (c *Component) StringProperty(key, def string) string {
	if p := c.props[key]; p != nil {
		return p.AsString()
	}
	return def
}

// IntProperty returns the named property as an integer, or def.
func (c *Component) IntProperty(key string, def int64) int64 {
	if p := c.props[key]; p != nil {
		return p.AsInt()
	}
	return def
}

// BoolProperty returns the named property as a boolean, or def.
func (c *Component) BoolProperty(key string, def bool) bool {
	if p := c.props[key]; p != nil {
		return p.AsBool()
	}
	return def
}

// A Wire declares a set of pins electrically tied together. It carries
// no value of its own and only contributes connectivity.
type Wire struct {
	id   WireID
	pins []PinID
}

// ID returns the wire id within its description.
func (w *Wire) ID() WireID { return w.id }

// Pins returns the wire's member pins.
func (w *Wire) Pins() []PinID { return w.pins }

// A Library holds named circuit descriptions so circuits can embed
// each other by name.
type Library struct {
	circuits map[string]*CircuitDescription
}

// NewLibrary returns an empty circuit library.
func NewLibrary() *Library {
	return &Library{circuits: make(map[string]*CircuitDescription)}
}

// NewCircuit creates an empty circuit description and registers it
// under the given name.
func (l *Library) NewCircuit(name string) (*CircuitDescription, error) {
	if name == "" {
		return nil, errors.New("empty circuit name")
	}
	if _, ok := l.circuits[name]; ok {
		return nil, errors.Errorf("circuit %q already exists", name)
	}
	d := &CircuitDescription{
		lib:   l,
		name:  name,
		comps: make(map[ComponentID]*Component),
		wires: make(map[WireID]*Wire),
		net:   NewNetlist(),
	}
	l.circuits[name] = d
	return d, nil
}

// Circuit returns the named description or nil.
func (l *Library) Circuit(name string) *CircuitDescription {
	return l.circuits[name]
}

// Names returns the registered circuit names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.circuits))
	for n := range l.circuits {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// port is a named connector exposed when the circuit is embedded.
type port struct {
	name string
	comp ComponentID
	bits int
}

// A CircuitDescription owns the components and wires of one named
// circuit. It is the write surface of the editor and serialization
// layers; the simulator only ever reads it, through Instantiate.
type CircuitDescription struct {
	lib  *Library
	name string

	nextComp  ComponentID
	comps     map[ComponentID]*Component
	compOrder []ComponentID

	nextWire  WireID
	wires     map[WireID]*Wire
	wireOrder []WireID

	// net tracks pin connectivity incrementally as the description is
	// edited; destructive edits fall back to a full rebuild.
	net *Netlist

	inPorts  []port
	outPorts []port
}

// Name returns the circuit name.
func (d *CircuitDescription) Name() string { return d.name }

// Rename changes the circuit name, keeping its library registration.
func (d *CircuitDescription) Rename(name string) error {
	if name == "" {
		return errors.New("empty circuit name")
	}
	if name == d.name {
		return nil
	}
	if _, ok := d.lib.circuits[name]; ok {
		return errors.Errorf("circuit %q already exists", name)
	}
	delete(d.lib.circuits, d.name)
	d.lib.circuits[name] = d
	d.name = name
	return nil
}

// Library returns the library this description is registered in.
func (d *CircuitDescription) Library() *Library { return d.lib }

func (d *CircuitDescription) createComponent(typ ComponentType, inputs, outputs, controls int) *Component {
	c := &Component{
		id:       d.nextComp,
		typ:      typ,
		inputs:   inputs,
		outputs:  outputs,
		controls: controls,
		props:    make(map[string]*Property),
	}
	d.nextComp++
	d.comps[c.id] = c
	d.compOrder = append(d.compOrder, c.id)

	switch typ {
	case TypeConnectorIn, TypeConnectorOut:
		c.SetProperty(PropName, "c#"+strconv.Itoa(int(c.id)))
		c.SetProperty(PropTriState, false)
	case TypeConstant:
		c.SetProperty(PropValue, int64(ValueFalse))
	case TypePullResistor:
		c.SetProperty(PropPullTo, int64(ValueFalse))
	case TypeSubCircuit:
		c.SetProperty(PropCircuit, "unknown")
		c.priority = PriorityDeferred
	}

	for i := 0; i < c.NumPins(); i++ {
		d.net.AddPin(c.Pin(i))
	}
	return c
}

// AddConnectorIn adds a named input connector with the given bit width.
// Its output pins are the circuit's externally driven inputs.
func (d *CircuitDescription) AddConnectorIn(name string, bits int) *Component {
	if bits < 1 {
		panic("lsim: connector needs at least one bit")
	}
	c := d.createComponent(TypeConnectorIn, 0, bits, 0)
	c.SetProperty(PropName, name)
	d.rebuildPorts()
	return c
}

// AddConnectorOut adds a named output connector with the given bit
// width. Its input pins are read externally.
func (d *CircuitDescription) AddConnectorOut(name string, bits int) *Component {
	if bits < 1 {
		panic("lsim: connector needs at least one bit")
	}
	c := d.createComponent(TypeConnectorOut, bits, 0, 0)
	c.SetProperty(PropName, name)
	d.rebuildPorts()
	return c
}

// AddConstant adds a component driving a fixed value.
func (d *CircuitDescription) AddConstant(v Value) *Component {
	c := d.createComponent(TypeConstant, 0, 1, 0)
	c.SetProperty(PropValue, int64(v))
	return c
}

// AddPullResistor adds a component that pulls its node to the given
// value whenever no active driver asserts one.
func (d *CircuitDescription) AddPullResistor(pullTo Value) *Component {
	c := d.createComponent(TypePullResistor, 0, 1, 0)
	c.SetProperty(PropPullTo, int64(pullTo))
	return c
}

// AddBuffer adds a bit-for-bit buffer.
func (d *CircuitDescription) AddBuffer(bits int) *Component {
	if bits < 1 {
		panic("lsim: buffer needs at least one bit")
	}
	return d.createComponent(TypeBuffer, bits, bits, 0)
}

// AddTriStateBuffer adds a buffer gated by a single control pin: while
// the control node reads true the input is passed through, otherwise
// the outputs float.
func (d *CircuitDescription) AddTriStateBuffer(bits int) *Component {
	if bits < 1 {
		panic("lsim: buffer needs at least one bit")
	}
	return d.createComponent(TypeTriStateBuffer, bits, bits, 1)
}

// AddAndGate adds an AND gate with the given input count.
func (d *CircuitDescription) AddAndGate(numInputs int) *Component {
	return d.addGate(TypeAndGate, numInputs)
}

// AddOrGate adds an OR gate with the given input count.
func (d *CircuitDescription) AddOrGate(numInputs int) *Component {
	return d.addGate(TypeOrGate, numInputs)
}

// AddNandGate adds a NAND gate with the given input count.
func (d *CircuitDescription) AddNandGate(numInputs int) *Component {
	return d.addGate(TypeNandGate, numInputs)
}

// AddNorGate adds a NOR gate with the given input count.
func (d *CircuitDescription) AddNorGate(numInputs int) *Component {
	return d.addGate(TypeNorGate, numInputs)
}

// AddNotGate adds an inverter.
func (d *CircuitDescription) AddNotGate() *Component {
	return d.createComponent(TypeNotGate, 1, 1, 0)
}

// AddXorGate adds a two-input XOR gate.
func (d *CircuitDescription) AddXorGate() *Component {
	return d.createComponent(TypeXorGate, 2, 1, 0)
}

// AddXnorGate adds a two-input XNOR gate.
func (d *CircuitDescription) AddXnorGate() *Component {
	return d.createComponent(TypeXnorGate, 2, 1, 0)
}

func (d *CircuitDescription) addGate(typ ComponentType, numInputs int) *Component {
	if numInputs < 2 {
		panic("lsim: gate needs at least two inputs")
	}
	return d.createComponent(typ, numInputs, 1, 0)
}

// AddSubCircuit adds an instance of the named circuit. The component's
// input pins map one to one onto the nested circuit's input port bits
// (in port order), its output pins onto the output port bits.
func (d *CircuitDescription) AddSubCircuit(circuit string) (*Component, error) {
	nested := d.lib.Circuit(circuit)
	if nested == nil {
		return nil, errors.Errorf("unknown circuit %q", circuit)
	}
	if nested == d {
		return nil, errors.Errorf("circuit %q cannot embed itself", circuit)
	}
	c := d.createComponent(TypeSubCircuit,
		len(nested.portPins(true)), len(nested.portPins(false)), 0)
	c.SetProperty(PropCircuit, circuit)
	return c, nil
}

// ComponentByID returns the component with the given id, or nil.
func (d *CircuitDescription) ComponentByID(id ComponentID) *Component {
	return d.comps[id]
}

// ComponentIDs returns all component ids in creation order.
func (d *CircuitDescription) ComponentIDs() []ComponentID {
	ids := make([]ComponentID, len(d.compOrder))
	copy(ids, d.compOrder)
	return ids
}

// ComponentIDsOfType returns the ids of all components of the given
// type, in creation order.
func (d *CircuitDescription) ComponentIDsOfType(typ ComponentType) []ComponentID {
	var ids []ComponentID
	for _, id := range d.compOrder {
		if d.comps[id].typ == typ {
			ids = append(ids, id)
		}
	}
	return ids
}

// CreateWire adds an empty wire. Pins are attached with ExtendWire.
func (d *CircuitDescription) CreateWire() *Wire {
	w := &Wire{id: d.nextWire}
	d.nextWire++
	d.wires[w.id] = w
	d.wireOrder = append(d.wireOrder, w.id)
	return w
}

// Connect ties two pins together with a new wire.
func (d *CircuitDescription) Connect(a, b PinID) *Wire {
	d.checkPin(a)
	d.checkPin(b)
	w := d.CreateWire()
	w.pins = append(w.pins, a, b)
	d.net.Union(a, b)
	return w
}

// ExtendWire attaches another pin to an existing wire.
func (d *CircuitDescription) ExtendWire(id WireID, pin PinID) error {
	w := d.wires[id]
	if w == nil {
		return errors.Errorf("unknown wire %d", id)
	}
	d.checkPin(pin)
	w.pins = append(w.pins, pin)
	if len(w.pins) > 1 {
		d.net.Union(w.pins[0], pin)
	}
	return nil
}

// WireByID returns the wire with the given id, or nil.
func (d *CircuitDescription) WireByID(id WireID) *Wire {
	return d.wires[id]
}

// WireIDs returns all wire ids in creation order.
func (d *CircuitDescription) WireIDs() []WireID {
	ids := make([]WireID, len(d.wireOrder))
	copy(ids, d.wireOrder)
	return ids
}

// RemoveWire deletes a wire. Connectivity is re-derived from the
// remaining wires: the wire's former node may split apart.
func (d *CircuitDescription) RemoveWire(id WireID) {
	if _, ok := d.wires[id]; !ok {
		return
	}
	delete(d.wires, id)
	d.removeWireOrder(id)
	d.rebuildNet()
}

// DisconnectPin detaches a pin from every wire it appears on. Wires
// left with fewer than two pins are removed. This is a connectivity
// recomputation: the pin's former node may split into several nodes.
func (d *CircuitDescription) DisconnectPin(pin PinID) {
	if !d.stripPin(pin) {
		return
	}
	d.rebuildNet()
}

// DisconnectComponent detaches all pins of a component.
func (d *CircuitDescription) DisconnectComponent(id ComponentID) {
	c := d.comps[id]
	if c == nil {
		return
	}
	changed := false
	for i := 0; i < c.NumPins(); i++ {
		if d.stripPin(c.Pin(i)) {
			changed = true
		}
	}
	if changed {
		d.rebuildNet()
	}
}

// RemoveComponent disconnects and deletes a component. Its pins are
// invalidated.
func (d *CircuitDescription) RemoveComponent(id ComponentID) {
	c := d.comps[id]
	if c == nil {
		return
	}
	for i := 0; i < c.NumPins(); i++ {
		d.stripPin(c.Pin(i))
	}
	delete(d.comps, id)
	for i, cid := range d.compOrder {
		if cid == id {
			d.compOrder = append(d.compOrder[:i], d.compOrder[i+1:]...)
			break
		}
	}
	d.rebuildPorts()
	d.rebuildNet()
}

// stripPin removes pin from all wires, deleting degenerate wires, and
// reports whether anything changed. The caller rebuilds the netlist.
func (d *CircuitDescription) stripPin(pin PinID) bool {
	changed := false
	for _, id := range append([]WireID(nil), d.wireOrder...) {
		w := d.wires[id]
		touched := false
		for i := 0; i < len(w.pins); {
			if w.pins[i] == pin {
				w.pins = append(w.pins[:i], w.pins[i+1:]...)
				touched = true
				continue
			}
			i++
		}
		if touched {
			changed = true
			if len(w.pins) < 2 {
				delete(d.wires, id)
				d.removeWireOrder(id)
			}
		}
	}
	return changed
}

func (d *CircuitDescription) removeWireOrder(id WireID) {
	for i, wid := range d.wireOrder {
		if wid == id {
			d.wireOrder = append(d.wireOrder[:i], d.wireOrder[i+1:]...)
			return
		}
	}
}

// rebuildNet re-derives connectivity from scratch; the fallback path
// for destructive edits.
func (d *CircuitDescription) rebuildNet() {
	pins := d.allPins()
	wires := make([][]PinID, 0, len(d.wireOrder))
	for _, id := range d.wireOrder {
		wires = append(wires, d.wires[id].pins)
	}
	d.net.Rebuild(pins, wires)
}

func (d *CircuitDescription) allPins() []PinID {
	var pins []PinID
	for _, id := range d.compOrder {
		c := d.comps[id]
		for i := 0; i < c.NumPins(); i++ {
			pins = append(pins, c.Pin(i))
		}
	}
	return pins
}

// Netlist exposes the description's current connectivity for editor
// queries (node identity, wire coloring).
func (d *CircuitDescription) Netlist() *Netlist { return d.net }

func (d *CircuitDescription) checkPin(pin PinID) {
	c := d.comps[pin.Component()]
	if c == nil || pin.Index() >= c.NumPins() {
		panic("lsim: pin does not belong to this circuit")
	}
}

// rebuildPorts rescans connector components, in creation order, into
// the named port lists.
func (d *CircuitDescription) rebuildPorts() {
	d.inPorts = d.inPorts[:0]
	d.outPorts = d.outPorts[:0]
	for _, id := range d.compOrder {
		c := d.comps[id]
		switch c.typ {
		case TypeConnectorIn:
			d.inPorts = append(d.inPorts, port{c.StringProperty(PropName, ""), id, c.outputs})
		case TypeConnectorOut:
			d.outPorts = append(d.outPorts, port{c.StringProperty(PropName, ""), id, c.inputs})
		}
	}
}

// ChangePortPinCount re-creates a connector's pin layout with a new bit
// width. The old pins are disconnected and invalidated; there is no
// in-place resize visible to a live instance (which must be discarded
// and re-instantiated after any structural edit).
func (d *CircuitDescription) ChangePortPinCount(id ComponentID, bits int) error {
	c := d.comps[id]
	if c == nil {
		return errors.Errorf("unknown component %d", id)
	}
	if c.typ != TypeConnectorIn && c.typ != TypeConnectorOut {
		return errors.Errorf("component %d is not a connector", id)
	}
	if bits < 1 {
		return errors.New("connector needs at least one bit")
	}
	for i := 0; i < c.NumPins(); i++ {
		d.stripPin(c.Pin(i))
	}
	if c.typ == TypeConnectorIn {
		c.outputs = bits
	} else {
		c.inputs = bits
	}
	d.rebuildPorts()
	d.rebuildNet()
	return nil
}

// NumInputPorts returns the number of named input ports.
func (d *CircuitDescription) NumInputPorts() int { return len(d.inPorts) }

// NumOutputPorts returns the number of named output ports.
func (d *CircuitDescription) NumOutputPorts() int { return len(d.outPorts) }

// PortName returns the name of the idx-th input or output port.
func (d *CircuitDescription) PortName(input bool, idx int) string {
	return d.portAt(input, idx).name
}

func (d *CircuitDescription) portAt(input bool, idx int) port {
	ports := d.outPorts
	if input {
		ports = d.inPorts
	}
	if idx < 0 || idx >= len(ports) {
		panic("lsim: port index out of range")
	}
	return ports[idx]
}

// PortByName returns the first pin of the named port, or PinInvalid.
func (d *CircuitDescription) PortByName(name string) PinID {
	for _, p := range d.inPorts {
		if p.name == name {
			return d.comps[p.comp].OutputPin(0)
		}
	}
	for _, p := range d.outPorts {
		if p.name == name {
			return d.comps[p.comp].InputPin(0)
		}
	}
	return PinInvalid
}

// PortPinCount returns the number of port bit pins in one direction,
// counting each port's full bit width.
func (d *CircuitDescription) PortPinCount(input bool) int {
	return len(d.portPins(input))
}

// PortByIndex returns the idx-th port bit pin, counting across ports in
// creation order with each port contributing its bit width.
func (d *CircuitDescription) PortByIndex(input bool, idx int) PinID {
	pins := d.portPins(input)
	if idx < 0 || idx >= len(pins) {
		panic("lsim: port pin index out of range")
	}
	return pins[idx]
}

// portPins returns the flattened port bit pins for one direction: the
// output pins of input connectors, or the input pins of output
// connectors.
func (d *CircuitDescription) portPins(input bool) []PinID {
	var pins []PinID
	if input {
		for _, p := range d.inPorts {
			c := d.comps[p.comp]
			for i := 0; i < c.outputs; i++ {
				pins = append(pins, c.OutputPin(i))
			}
		}
		return pins
	}
	for _, p := range d.outPorts {
		c := d.comps[p.comp]
		for i := 0; i < c.inputs; i++ {
			pins = append(pins, c.InputPin(i))
		}
	}
	return pins
}
