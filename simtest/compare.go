// Package simtest provides utility functions for testing circuits.
package simtest

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/fantasticism/lsim"
)

// maxCompareInputs caps exhaustive enumeration; beyond this the test
// setup is considered a mistake.
const maxCompareInputs = 12

// CompareCircuits instantiates two circuit descriptions with the same
// port interface and drives every assignment of defined logic levels
// into their input ports, failing t on the first output port
// divergence. Both descriptions must converge on every assignment.
func CompareCircuits(t *testing.T, ref, dut *lsim.CircuitDescription) {
	t.Helper()

	if err := checkInterface(ref, dut); err != nil {
		t.Fatal(err)
	}
	nIn := ref.PortPinCount(true)
	nOut := ref.PortPinCount(false)
	if nIn > maxCompareInputs {
		t.Fatalf("%d input pins exceed the exhaustive comparison limit of %d", nIn, maxCompareInputs)
	}

	refSim := mustSim(t, ref)
	dutSim := mustSim(t, dut)
	refSim.Init()
	dutSim.Init()

	for mask := 0; mask < 1<<uint(nIn); mask++ {
		for i := 0; i < nIn; i++ {
			v := lsim.ValueFalse
			if mask>>uint(i)&1 != 0 {
				v = lsim.ValueTrue
			}
			refSim.WritePin(ref.PortByIndex(true, i), v)
			dutSim.WritePin(dut.PortByIndex(true, i), v)
		}
		if res := refSim.Step(); !res.Stable {
			t.Fatalf("%s: reference did not converge for %s", ref.Name(), assignString(mask, nIn))
		}
		if res := dutSim.Step(); !res.Stable {
			t.Fatalf("%s: candidate did not converge for %s", dut.Name(), assignString(mask, nIn))
		}
		for o := 0; o < nOut; o++ {
			want := refSim.NodeValue(ref.PortByIndex(false, o))
			got := dutSim.NodeValue(dut.PortByIndex(false, o))
			if got != want {
				t.Fatalf("%s vs %s: output pin %d = %v, want %v for %s",
					dut.Name(), ref.Name(), o, got, want, assignString(mask, nIn))
			}
		}
	}
}

func mustSim(t *testing.T, d *lsim.CircuitDescription) *lsim.Simulator {
	t.Helper()
	inst, err := d.Instantiate()
	if err != nil {
		t.Fatalf("instantiate %s: %v", d.Name(), err)
	}
	return lsim.NewSimulator(inst)
}

func checkInterface(ref, dut *lsim.CircuitDescription) error {
	if ref.NumInputPorts() != dut.NumInputPorts() || ref.NumOutputPorts() != dut.NumOutputPorts() {
		return errors.Errorf("port counts differ: %s has %d/%d, %s has %d/%d",
			ref.Name(), ref.NumInputPorts(), ref.NumOutputPorts(),
			dut.Name(), dut.NumInputPorts(), dut.NumOutputPorts())
	}
	for i := 0; i < ref.NumInputPorts(); i++ {
		if ref.PortName(true, i) != dut.PortName(true, i) {
			return errors.Errorf("input port %d: %q != %q", i, ref.PortName(true, i), dut.PortName(true, i))
		}
	}
	for i := 0; i < ref.NumOutputPorts(); i++ {
		if ref.PortName(false, i) != dut.PortName(false, i) {
			return errors.Errorf("output port %d: %q != %q", i, ref.PortName(false, i), dut.PortName(false, i))
		}
	}
	if ref.PortPinCount(true) != dut.PortPinCount(true) || ref.PortPinCount(false) != dut.PortPinCount(false) {
		return errors.New("port bit widths differ")
	}
	return nil
}

func assignString(mask, nIn int) string {
	var b strings.Builder
	for i := 0; i < nIn; i++ {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString("pin")
		b.WriteByte(byte('0' + i%10))
		b.WriteByte('=')
		if mask>>uint(i)&1 != 0 {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	}
	return b.String()
}
