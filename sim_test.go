package lsim_test

import (
	"testing"

	"github.com/fantasticism/lsim"
)

// Connector(in) -> Buffer -> Not -> Connector(out), driven externally.
func TestSim_bufferNotChain(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "chain")
	in := d.AddConnectorIn("in", 1)
	buf := d.AddBuffer(1)
	not := d.AddNotGate()
	out := d.AddConnectorOut("out", 1)
	d.Connect(in.OutputPin(0), buf.InputPin(0))
	d.Connect(buf.OutputPin(0), not.InputPin(0))
	d.Connect(not.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()

	sim.WritePin(in.OutputPin(0), lsim.ValueTrue)
	res := sim.RunUntilPinChange(out.InputPin(0))
	if !res.Changed {
		t.Fatal("output pin never changed")
	}
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueFalse {
		t.Fatalf("out = %v, want false", got)
	}

	sim.WritePin(in.OutputPin(0), lsim.ValueFalse)
	res = sim.RunUntilPinChange(out.InputPin(0))
	if !res.Changed {
		t.Fatal("output pin never changed back")
	}
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueTrue {
		t.Fatalf("out = %v, want true", got)
	}
}

// Two constants feeding an AND gate; all four assignments.
func TestSim_constantAnd(t *testing.T) {
	for _, c := range []struct {
		a, b, want lsim.Value
	}{
		{vF, vF, vF}, {vF, vT, vF}, {vT, vF, vF}, {vT, vT, vT},
	} {
		lib := lsim.NewLibrary()
		d := newCircuit(t, lib, "const-and")
		ca := d.AddConstant(c.a)
		cb := d.AddConstant(c.b)
		and := d.AddAndGate(2)
		out := d.AddConnectorOut("out", 1)
		d.Connect(ca.OutputPin(0), and.InputPin(0))
		d.Connect(cb.OutputPin(0), and.InputPin(1))
		d.Connect(and.OutputPin(0), out.InputPin(0))

		sim := instantiate(t, d)
		sim.Init()
		if res := sim.Step(); !res.Stable {
			t.Fatalf("%v AND %v: did not converge", c.a, c.b)
		}
		if got := sim.NodeValue(out.InputPin(0)); got != c.want {
			t.Errorf("%v AND %v = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

// Two active drivers asserting opposite values conflict to error; the
// conflict clears once one driver floats again.
func TestSim_driverConflict(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "conflict")
	a := d.AddConnectorIn("a", 1)
	b := d.AddConnectorIn("b", 1)
	out := d.AddConnectorOut("out", 1)
	d.Connect(a.OutputPin(0), out.InputPin(0))
	d.Connect(b.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()

	sim.WritePin(a.OutputPin(0), lsim.ValueTrue)
	sim.WritePin(b.OutputPin(0), lsim.ValueFalse)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueError {
		t.Fatalf("conflicting drivers resolve %v, want error", got)
	}
	if !sim.NodeConflict(out.InputPin(0)) {
		t.Fatal("conflict state not reported")
	}

	sim.WritePin(b.OutputPin(0), lsim.ValueUndefined)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueTrue {
		t.Fatalf("node stuck at %v after conflict cleared", got)
	}
	if sim.NodeConflict(out.InputPin(0)) {
		t.Fatal("conflict state survived the next step")
	}
}

// A node whose opposing drivers keep driving stays in conflict across
// steps; releasing the drivers recovers it on the very next step even
// though their pin values still held the old conflict when it began.
func TestSim_conflictRecovery(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "recover")
	a := d.AddConnectorIn("a", 1)
	b := d.AddConnectorIn("b", 1)
	out := d.AddConnectorOut("out", 1)
	d.Connect(a.OutputPin(0), out.InputPin(0))
	d.Connect(b.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()
	sim.WritePin(a.OutputPin(0), lsim.ValueTrue)
	sim.WritePin(b.OutputPin(0), lsim.ValueFalse)
	sim.Step()

	// nothing written: the conflict persists step after step
	for i := 0; i < 3; i++ {
		sim.Step()
		if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueError {
			t.Fatalf("step %d: persisting conflict = %v, want error", i, got)
		}
		if !sim.NodeConflict(out.InputPin(0)) {
			t.Fatalf("step %d: conflict state lost while drivers still oppose", i)
		}
	}

	// both drivers float: one step is enough to recover
	sim.WritePin(a.OutputPin(0), lsim.ValueUndefined)
	sim.WritePin(b.OutputPin(0), lsim.ValueUndefined)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueUndefined {
		t.Fatalf("released node = %v, want undefined", got)
	}
	if sim.NodeConflict(out.InputPin(0)) {
		t.Fatal("conflict state survived driver release")
	}
}

// A pull resistor fills in when no driver is active and yields to any
// active driver.
func TestSim_pullResistor(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "pull")
	in := d.AddConnectorIn("in", 1)
	pull := d.AddPullResistor(lsim.ValueTrue)
	out := d.AddConnectorOut("out", 1)
	d.Connect(in.OutputPin(0), out.InputPin(0))
	d.Connect(pull.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueTrue {
		t.Fatalf("undriven pulled node = %v, want true", got)
	}

	sim.WritePin(in.OutputPin(0), lsim.ValueFalse)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueFalse {
		t.Fatalf("driver did not override pull: %v", got)
	}

	sim.WritePin(in.OutputPin(0), lsim.ValueUndefined)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueTrue {
		t.Fatalf("pull did not recover after driver floated: %v", got)
	}
}

// Two pull resistors pulling one undriven node in opposite directions
// conflict to error; a single active driver settles the dispute.
func TestSim_pullConflict(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "pull-fight")
	in := d.AddConnectorIn("in", 1)
	up := d.AddPullResistor(lsim.ValueTrue)
	down := d.AddPullResistor(lsim.ValueFalse)
	out := d.AddConnectorOut("out", 1)
	d.Connect(in.OutputPin(0), out.InputPin(0))
	d.Connect(up.OutputPin(0), out.InputPin(0))
	d.Connect(down.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueError {
		t.Fatalf("opposing pulls = %v, want error", got)
	}
	if !sim.NodeConflict(out.InputPin(0)) {
		t.Fatal("opposing pulls reported no conflict")
	}

	sim.WritePin(in.OutputPin(0), lsim.ValueFalse)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueFalse {
		t.Fatalf("driven pulled node = %v, want false", got)
	}
	if sim.NodeConflict(out.InputPin(0)) {
		t.Fatal("conflict state survived an active driver")
	}
}

// Two tri-state buffers sharing an output node form a multiplexer as
// long as only one is enabled at a time.
func TestSim_triStateBus(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "bus")
	in1 := d.AddConnectorIn("in1", 1)
	in2 := d.AddConnectorIn("in2", 1)
	en1 := d.AddConnectorIn("en1", 1)
	en2 := d.AddConnectorIn("en2", 1)
	ts1 := d.AddTriStateBuffer(1)
	ts2 := d.AddTriStateBuffer(1)
	out := d.AddConnectorOut("out", 1)
	d.Connect(in1.OutputPin(0), ts1.InputPin(0))
	d.Connect(in2.OutputPin(0), ts2.InputPin(0))
	d.Connect(en1.OutputPin(0), ts1.ControlPin(0))
	d.Connect(en2.OutputPin(0), ts2.ControlPin(0))
	d.Connect(ts1.OutputPin(0), out.InputPin(0))
	d.Connect(ts2.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()
	sim.WritePin(in1.OutputPin(0), lsim.ValueTrue)
	sim.WritePin(in2.OutputPin(0), lsim.ValueFalse)

	sim.WritePin(en1.OutputPin(0), lsim.ValueTrue)
	sim.WritePin(en2.OutputPin(0), lsim.ValueFalse)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueTrue {
		t.Fatalf("bus = %v with driver 1 enabled, want true", got)
	}
	if sim.NodeConflict(out.InputPin(0)) {
		t.Fatal("disabled tri-state driver caused a conflict")
	}

	sim.WritePin(en1.OutputPin(0), lsim.ValueFalse)
	sim.WritePin(en2.OutputPin(0), lsim.ValueTrue)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueFalse {
		t.Fatalf("bus = %v with driver 2 enabled, want false", got)
	}

	// both enabled with opposing inputs: bus error
	sim.WritePin(en1.OutputPin(0), lsim.ValueTrue)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueError {
		t.Fatalf("bus = %v with two opposing drivers, want error", got)
	}

	// both disabled: bus floats
	sim.WritePin(en1.OutputPin(0), lsim.ValueFalse)
	sim.WritePin(en2.OutputPin(0), lsim.ValueFalse)
	sim.Step()
	if got := sim.NodeValue(out.InputPin(0)); got != lsim.ValueUndefined {
		t.Fatalf("bus = %v with all drivers disabled, want undefined", got)
	}
}

// Stepping a stable circuit runs zero passes and changes nothing.
func TestSim_stepIdempotent(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "idem")
	in := d.AddConnectorIn("in", 1)
	not := d.AddNotGate()
	out := d.AddConnectorOut("out", 1)
	d.Connect(in.OutputPin(0), not.InputPin(0))
	d.Connect(not.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()
	sim.WritePin(in.OutputPin(0), lsim.ValueTrue)
	if res := sim.Step(); !res.Stable {
		t.Fatal("did not converge")
	}
	before := sim.NodeValue(out.InputPin(0))

	res := sim.Step()
	if !res.Stable || res.Passes != 0 {
		t.Fatalf("idle step: passes=%d stable=%v", res.Passes, res.Stable)
	}
	if sim.NodeValue(out.InputPin(0)) != before {
		t.Fatal("idle step changed a value")
	}
}

// A NOT gate with its output tied back to its input and a pull on the
// ring oscillates; the step reports non-convergence rather than
// looping forever, and stepping again is allowed.
func TestSim_nonConverging(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "osc")
	not := d.AddNotGate()
	pull := d.AddPullResistor(lsim.ValueTrue)
	w := d.Connect(not.OutputPin(0), not.InputPin(0))
	if err := d.ExtendWire(w.ID(), pull.OutputPin(0)); err != nil {
		t.Fatal(err)
	}

	sim := instantiate(t, d)
	sim.SetMaxPasses(16)
	sim.Init()

	res := sim.Step()
	if res.Stable {
		t.Fatal("oscillating circuit reported stable")
	}
	if res.Passes != 16 {
		t.Fatalf("passes = %d, want the full bound of 16", res.Passes)
	}
	// the caller may keep stepping
	if res = sim.Step(); res.Stable {
		t.Fatal("oscillator settled unexpectedly")
	}
}

func TestSim_runUntilPinChangeStable(t *testing.T) {
	lib := lsim.NewLibrary()
	d := newCircuit(t, lib, "quiet")
	in := d.AddConnectorIn("in", 1)
	out := d.AddConnectorOut("out", 1)
	d.Connect(in.OutputPin(0), out.InputPin(0))

	sim := instantiate(t, d)
	sim.Init()
	sim.WritePin(in.OutputPin(0), lsim.ValueTrue)
	sim.Step()

	// nothing left to change: returns stable without the pin changing
	res := sim.RunUntilPinChange(out.InputPin(0))
	if res.Changed || !res.Stable {
		t.Fatalf("changed=%v stable=%v, want unchanged and stable", res.Changed, res.Stable)
	}
}

// A sub-circuit wrapping an AND circuit behaves exactly like the flat
// gate for every input assignment.
func TestSim_hierarchy(t *testing.T) {
	lib := lsim.NewLibrary()

	inner := newCircuit(t, lib, "and2")
	ia := inner.AddConnectorIn("a", 1)
	ib := inner.AddConnectorIn("b", 1)
	iand := inner.AddAndGate(2)
	io := inner.AddConnectorOut("o", 1)
	inner.Connect(ia.OutputPin(0), iand.InputPin(0))
	inner.Connect(ib.OutputPin(0), iand.InputPin(1))
	inner.Connect(iand.OutputPin(0), io.InputPin(0))

	parent := newCircuit(t, lib, "top")
	pa := parent.AddConnectorIn("a", 1)
	pb := parent.AddConnectorIn("b", 1)
	sub, err := parent.AddSubCircuit("and2")
	if err != nil {
		t.Fatal(err)
	}
	po := parent.AddConnectorOut("o", 1)
	parent.Connect(pa.OutputPin(0), sub.InputPin(0))
	parent.Connect(pb.OutputPin(0), sub.InputPin(1))
	parent.Connect(sub.OutputPin(0), po.InputPin(0))

	sim := instantiate(t, parent)
	if sim.Instance().Nested(sub.ID()) == nil {
		t.Fatal("sub-circuit component has no nested instance")
	}
	sim.Init()

	for _, c := range []struct{ a, b, want lsim.Value }{
		{vF, vF, vF}, {vF, vT, vF}, {vT, vF, vF}, {vT, vT, vT},
	} {
		sim.WritePin(pa.OutputPin(0), c.a)
		sim.WritePin(pb.OutputPin(0), c.b)
		if res := sim.Step(); !res.Stable {
			t.Fatalf("%v/%v: did not converge", c.a, c.b)
		}
		if got := sim.NodeValue(po.InputPin(0)); got != c.want {
			t.Errorf("sub(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

// Two levels of nesting: the wrapper of the wrapper still computes AND.
func TestSim_deepHierarchy(t *testing.T) {
	lib := lsim.NewLibrary()

	inner := newCircuit(t, lib, "and2")
	ia := inner.AddConnectorIn("a", 1)
	ib := inner.AddConnectorIn("b", 1)
	iand := inner.AddAndGate(2)
	io := inner.AddConnectorOut("o", 1)
	inner.Connect(ia.OutputPin(0), iand.InputPin(0))
	inner.Connect(ib.OutputPin(0), iand.InputPin(1))
	inner.Connect(iand.OutputPin(0), io.InputPin(0))

	mid := newCircuit(t, lib, "mid")
	ma := mid.AddConnectorIn("a", 1)
	mb := mid.AddConnectorIn("b", 1)
	msub, err := mid.AddSubCircuit("and2")
	if err != nil {
		t.Fatal(err)
	}
	mo := mid.AddConnectorOut("o", 1)
	mid.Connect(ma.OutputPin(0), msub.InputPin(0))
	mid.Connect(mb.OutputPin(0), msub.InputPin(1))
	mid.Connect(msub.OutputPin(0), mo.InputPin(0))

	top := newCircuit(t, lib, "top")
	ta := top.AddConnectorIn("a", 1)
	tb := top.AddConnectorIn("b", 1)
	tsub, err := top.AddSubCircuit("mid")
	if err != nil {
		t.Fatal(err)
	}
	to := top.AddConnectorOut("o", 1)
	top.Connect(ta.OutputPin(0), tsub.InputPin(0))
	top.Connect(tb.OutputPin(0), tsub.InputPin(1))
	top.Connect(tsub.OutputPin(0), to.InputPin(0))

	sim := instantiate(t, top)
	sim.Init()
	sim.WritePin(ta.OutputPin(0), vT)
	sim.WritePin(tb.OutputPin(0), vT)
	if res := sim.Step(); !res.Stable {
		t.Fatal("did not converge")
	}
	if got := sim.NodeValue(to.InputPin(0)); got != vT {
		t.Fatalf("nested AND(T,T) = %v, want true", got)
	}
}
