package lsim

// evaluate re-computes one component: input node values are latched
// into the input pins, the component function runs, and changed output
// pins re-resolve their nodes, marking downstream readers dirty.
//
// Dispatch is a closed switch over ComponentType so that adding a kind
// without a behavior is caught here rather than silently ignored.
func (inst *CircuitInstance) evaluate(c *Component) {
	// latch input and control pin values from their nodes
	ins := make([]Value, c.inputs)
	for i := 0; i < c.inputs; i++ {
		s := inst.slots[c.InputPin(i)]
		ins[i] = inst.nodes[inst.nodeOf[s]].value
		inst.pinVal[s] = ins[i]
	}
	for i := 0; i < c.controls; i++ {
		s := inst.slots[c.ControlPin(i)]
		inst.pinVal[s] = inst.nodes[inst.nodeOf[s]].value
	}

	switch c.typ {
	case TypeConnectorIn:
		// outputs are driven externally through WritePin; nothing to compute.

	case TypeConnectorOut:
		// inputs were latched above for external readers; no outputs.

	case TypeConstant:
		inst.writeOutput(c, 0, Value(c.IntProperty(PropValue, int64(ValueFalse))))

	case TypePullResistor:
		// fixed contribution, applied through the node's pull list;
		// never recomputed from inputs.
		inst.writeOutput(c, 0, Value(c.IntProperty(PropPullTo, int64(ValueFalse))))

	case TypeBuffer:
		for i := 0; i < c.outputs; i++ {
			inst.writeOutput(c, i, ins[i])
		}

	case TypeTriStateBuffer:
		enabled := inst.pinVal[inst.slots[c.ControlPin(0)]] == ValueTrue
		for i := 0; i < c.outputs; i++ {
			if enabled {
				inst.writeOutput(c, i, ins[i])
			} else {
				inst.writeOutput(c, i, ValueUndefined)
			}
		}

	case TypeAndGate:
		inst.writeOutput(c, 0, foldGate(ins, ValueFalse, ValueTrue))
	case TypeNandGate:
		inst.writeOutput(c, 0, foldGate(ins, ValueFalse, ValueTrue).Negate())
	case TypeOrGate:
		inst.writeOutput(c, 0, foldGate(ins, ValueTrue, ValueFalse))
	case TypeNorGate:
		inst.writeOutput(c, 0, foldGate(ins, ValueTrue, ValueFalse).Negate())

	case TypeNotGate:
		inst.writeOutput(c, 0, ins[0].Negate())

	case TypeXorGate:
		inst.writeOutput(c, 0, xorValue(ins[0], ins[1]))
	case TypeXnorGate:
		inst.writeOutput(c, 0, xorValue(ins[0], ins[1]).Negate())

	case TypeSubCircuit:
		inst.evaluateSubCircuit(c)

	default:
		panic("lsim: no behavior for component type " + c.typ.String())
	}
}

// writeOutput asserts a value on the i-th output pin and propagates
// node changes.
func (inst *CircuitInstance) writeOutput(c *Component, i int, v Value) {
	inst.writeSlot(inst.slots[c.OutputPin(i)], v)
}

// foldGate combines gate inputs with short-circuit dominance: any
// dominant input decides the output regardless of undefined or error
// inputs; otherwise error wins over undefined, and only an all-defined
// input set produces the identity value.
func foldGate(ins []Value, dominant, identity Value) Value {
	acc := identity
	for _, v := range ins {
		switch v {
		case dominant:
			return dominant
		case ValueError:
			acc = ValueError
		case ValueUndefined:
			if acc != ValueError {
				acc = ValueUndefined
			}
		}
	}
	return acc
}

// xorValue is bitwise inequality; error dominates undefined.
func xorValue(a, b Value) Value {
	if a == ValueError || b == ValueError {
		return ValueError
	}
	if a == ValueUndefined || b == ValueUndefined {
		return ValueUndefined
	}
	return boolValue(a != b)
}

// evaluateSubCircuit forwards the component's input values into the
// nested instance's input connectors, settles the nested instance, and
// copies its output connector values back onto the component's output
// pins. One level of recursive simulation per evaluation.
func (inst *CircuitInstance) evaluateSubCircuit(c *Component) {
	nested := inst.nested[c.id]
	inPins := nested.desc.portPins(true)
	for i := 0; i < c.inputs; i++ {
		s := inst.slots[c.InputPin(i)]
		nested.WritePin(inPins[i], inst.pinVal[s])
	}
	if _, stable := nested.settle(inst.maxPasses); !stable {
		inst.nestedOK = false
	}
	outPins := nested.desc.portPins(false)
	for i := 0; i < c.outputs; i++ {
		inst.writeOutput(c, i, nested.NodeValue(outPins[i]))
	}
}
