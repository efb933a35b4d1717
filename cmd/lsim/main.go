package main

import (
	"log"

	"github.com/fantasticism/lsim"
)

// builds an xor gate out of four nand gates, wraps it in a sub-circuit
// and steps it through all defined input combinations.
func main() {
	lib := lsim.NewLibrary()

	xor, err := lib.NewCircuit("xor")
	if err != nil {
		log.Fatal(err)
	}
	a := xor.AddConnectorIn("a", 1)
	b := xor.AddConnectorIn("b", 1)
	q := xor.AddConnectorOut("q", 1)
	n1 := xor.AddNandGate(2)
	n2 := xor.AddNandGate(2)
	n3 := xor.AddNandGate(2)
	n4 := xor.AddNandGate(2)
	xor.Connect(a.OutputPin(0), n1.InputPin(0))
	xor.Connect(b.OutputPin(0), n1.InputPin(1))
	xor.Connect(a.OutputPin(0), n2.InputPin(0))
	xor.Connect(n1.OutputPin(0), n2.InputPin(1))
	xor.Connect(n1.OutputPin(0), n3.InputPin(0))
	xor.Connect(b.OutputPin(0), n3.InputPin(1))
	xor.Connect(n2.OutputPin(0), n4.InputPin(0))
	xor.Connect(n3.OutputPin(0), n4.InputPin(1))
	xor.Connect(n4.OutputPin(0), q.InputPin(0))

	top, err := lib.NewCircuit("top")
	if err != nil {
		log.Fatal(err)
	}
	ta := top.AddConnectorIn("a", 1)
	tb := top.AddConnectorIn("b", 1)
	tq := top.AddConnectorOut("q", 1)
	sub, err := top.AddSubCircuit("xor")
	if err != nil {
		log.Fatal(err)
	}
	top.Connect(ta.OutputPin(0), sub.InputPin(0))
	top.Connect(tb.OutputPin(0), sub.InputPin(1))
	top.Connect(sub.OutputPin(0), tq.InputPin(0))

	inst, err := top.Instantiate()
	if err != nil {
		log.Fatal(err)
	}
	sim := lsim.NewSimulator(inst)
	sim.Init()

	for _, va := range []lsim.Value{lsim.ValueFalse, lsim.ValueTrue} {
		for _, vb := range []lsim.Value{lsim.ValueFalse, lsim.ValueTrue} {
			sim.WritePin(ta.OutputPin(0), va)
			sim.WritePin(tb.OutputPin(0), vb)
			res := sim.Step()
			if !res.Stable {
				log.Fatalf("xor(%v, %v) did not settle in %d passes", va, vb, res.Passes)
			}
			log.Printf("xor(%v, %v) = %v (%d passes)", va, vb, sim.NodeValue(tq.InputPin(0)), res.Passes)
		}
	}
}
