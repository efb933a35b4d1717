package simtest_test

import (
	"testing"

	"github.com/fantasticism/lsim"
	"github.com/fantasticism/lsim/simtest"
)

func buildAnd2(t *testing.T, lib *lsim.Library, name string) *lsim.CircuitDescription {
	t.Helper()
	d, err := lib.NewCircuit(name)
	if err != nil {
		t.Fatal(err)
	}
	a := d.AddConnectorIn("a", 1)
	b := d.AddConnectorIn("b", 1)
	and := d.AddAndGate(2)
	o := d.AddConnectorOut("o", 1)
	d.Connect(a.OutputPin(0), and.InputPin(0))
	d.Connect(b.OutputPin(0), and.InputPin(1))
	d.Connect(and.OutputPin(0), o.InputPin(0))
	return d
}

// A flat AND circuit against the same circuit wrapped one level deep.
func TestCompareCircuits_hierarchyEquivalence(t *testing.T) {
	lib := lsim.NewLibrary()
	flat := buildAnd2(t, lib, "and2")

	wrapped, err := lib.NewCircuit("wrapped")
	if err != nil {
		t.Fatal(err)
	}
	a := wrapped.AddConnectorIn("a", 1)
	b := wrapped.AddConnectorIn("b", 1)
	sub, err := wrapped.AddSubCircuit("and2")
	if err != nil {
		t.Fatal(err)
	}
	o := wrapped.AddConnectorOut("o", 1)
	wrapped.Connect(a.OutputPin(0), sub.InputPin(0))
	wrapped.Connect(b.OutputPin(0), sub.InputPin(1))
	wrapped.Connect(sub.OutputPin(0), o.InputPin(0))

	simtest.CompareCircuits(t, flat, wrapped)
}

// XOR built from four NAND gates against the builtin XOR.
func TestCompareCircuits_xorFromNands(t *testing.T) {
	lib := lsim.NewLibrary()

	ref, err := lib.NewCircuit("xor")
	if err != nil {
		t.Fatal(err)
	}
	ra := ref.AddConnectorIn("a", 1)
	rb := ref.AddConnectorIn("b", 1)
	rx := ref.AddXorGate()
	ro := ref.AddConnectorOut("o", 1)
	ref.Connect(ra.OutputPin(0), rx.InputPin(0))
	ref.Connect(rb.OutputPin(0), rx.InputPin(1))
	ref.Connect(rx.OutputPin(0), ro.InputPin(0))

	dut, err := lib.NewCircuit("xor-nand")
	if err != nil {
		t.Fatal(err)
	}
	a := dut.AddConnectorIn("a", 1)
	b := dut.AddConnectorIn("b", 1)
	n1 := dut.AddNandGate(2)
	n2 := dut.AddNandGate(2)
	n3 := dut.AddNandGate(2)
	n4 := dut.AddNandGate(2)
	o := dut.AddConnectorOut("o", 1)
	dut.Connect(a.OutputPin(0), n1.InputPin(0))
	dut.Connect(b.OutputPin(0), n1.InputPin(1))
	dut.Connect(a.OutputPin(0), n2.InputPin(0))
	dut.Connect(n1.OutputPin(0), n2.InputPin(1))
	dut.Connect(b.OutputPin(0), n3.InputPin(1))
	dut.Connect(n1.OutputPin(0), n3.InputPin(0))
	dut.Connect(n2.OutputPin(0), n4.InputPin(0))
	dut.Connect(n3.OutputPin(0), n4.InputPin(1))
	dut.Connect(n4.OutputPin(0), o.InputPin(0))

	simtest.CompareCircuits(t, ref, dut)
}
